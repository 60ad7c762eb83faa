// Package notify 发送人工通知（Telegram 或日志）
package notify

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"go.uber.org/zap"

	"skin-arbitrage-monitor/internal/config"
)

// maxTextLen Telegram 单条消息长度上限（字符）
const maxTextLen = 4096

// Notifier 通知发送接口
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// New 根据配置创建通知器
// 未配置 token 时返回仅记录日志的通知器。
func New(cfg config.NotifyConfig, logger *zap.Logger, opts ...bot.Option) (Notifier, error) {
	if cfg.TelegramToken == "" {
		logger.Warn("未配置 Telegram，通知仅写入日志")
		return NewLog(logger), nil
	}
	return NewTelegram(cfg, logger, opts...)
}

// Telegram 通过 Telegram 机器人发送通知
type Telegram struct {
	bot    *bot.Bot
	chatID int64
	logger *zap.Logger
}

// NewTelegram 创建 Telegram 通知器
func NewTelegram(cfg config.NotifyConfig, logger *zap.Logger, opts ...bot.Option) (*Telegram, error) {
	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)
	b, err := bot.New(cfg.TelegramToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("创建 Telegram 客户端失败: %w", err)
	}
	return &Telegram{
		bot:    b,
		chatID: cfg.TelegramChatID,
		logger: logger.Named("notify"),
	}, nil
}

// Notify 发送一条消息
func (t *Telegram) Notify(ctx context.Context, text string) error {
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   truncate(text, maxTextLen),
	})
	if err != nil {
		return fmt.Errorf("发送 Telegram 消息失败: %w", err)
	}
	t.logger.Debug("通知已发送", zap.Int("len", len(text)))
	return nil
}

// Log 仅记录日志的通知器
type Log struct {
	logger *zap.Logger
}

// NewLog 创建日志通知器
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger.Named("notify")}
}

// Notify 以 info 级别记录消息
func (l *Log) Notify(_ context.Context, text string) error {
	l.logger.Info("通知", zap.String("text", text))
	return nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
