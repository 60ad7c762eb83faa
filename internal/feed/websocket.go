package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"skin-arbitrage-monitor/internal/config"
	"skin-arbitrage-monitor/internal/core/model"
)

// 推送帧类型
const (
	FrameListings     = "listings"
	FramePriceHistory = "price_history"
)

// maxReconnectInterval 重连最大间隔
const maxReconnectInterval = 30 * time.Second

// Frame WebSocket 推送帧
// {"kind":"listings"|"price_history","payload":"<原始响应>"}
type Frame struct {
	// Kind 帧类型
	Kind string `json:"kind"`
	// Payload 原始响应（JSON 数组或 HTML 页面）
	Payload string `json:"payload"`
}

// WSSource WebSocket 推送数据源
// 断线后按指数退避重连；心跳使用 ping 控制帧，读超时内未收到任何帧视为断线。
type WSSource struct {
	cfg    config.FeedConfig
	sink   Sink
	logger *zap.Logger

	// reconnects 重连次数
	reconnects atomic.Int64
	// frames 已处理的帧数
	frames atomic.Int64
	// parseErrs 解析失败次数
	parseErrs atomic.Int64
	// lastParseErrLogNs 上次解析错误日志时间（纳秒）
	lastParseErrLogNs atomic.Int64
}

// NewWSSource 创建 WebSocket 数据源
func NewWSSource(cfg config.FeedConfig, sink Sink, logger *zap.Logger) *WSSource {
	return &WSSource{
		cfg:    cfg,
		sink:   sink,
		logger: logger.Named("feed.ws"),
	}
}

// Run 连接并持续读取，断线后退避重连，直到 ctx 取消
func (s *WSSource) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = maxReconnectInterval

	for {
		conn, err := s.connect(ctx)
		if err == nil {
			b.Reset()
			err = s.serve(ctx, conn)
		}
		if ctx.Err() != nil {
			return nil
		}
		s.reconnects.Add(1)

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			delay = maxReconnectInterval
		}
		s.logger.Warn("WebSocket 断开，准备重连", zap.Error(err), zap.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// connect 建立连接
func (s *WSSource) connect(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("User-Agent", "skin-arbitrage-monitor/1.0")

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.cfg.WSURL, header)
	if err != nil {
		return nil, fmt.Errorf("连接 WebSocket 失败: %w", err)
	}
	s.logger.Info("WebSocket 连接成功", zap.String("url", s.cfg.WSURL))
	return conn, nil
}

// serve 读取循环，连接出错或 ctx 取消时返回
func (s *WSSource) serve(ctx context.Context, conn *websocket.Conn) error {
	readTimeout := time.Duration(s.cfg.ReadTimeoutMs) * time.Millisecond
	extend := func() {
		if readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		}
	}
	extend()
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	connCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.heartbeatLoop(connCtx, conn)
	}()
	// ctx 取消时关闭连接以解除阻塞的读取
	go func() {
		<-connCtx.Done()
		_ = conn.Close()
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("读取 WebSocket 消息失败: %w", err)
		}
		extend()

		ev, err := decodeFrame(data)
		if err != nil {
			s.maybeLogParseError(err, data)
			continue
		}
		s.frames.Add(1)
		if err := s.sink.Submit(ctx, ev); err != nil {
			return err
		}
	}
}

// heartbeatLoop 周期发送 ping 控制帧
func (s *WSSource) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	interval := time.Duration(s.cfg.PingIntervalMs) * time.Millisecond
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// WriteControl 可与读取并发调用
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				s.logger.Warn("发送 ping 失败", zap.Error(err))
				_ = conn.Close()
				return
			}
		}
	}
}

// decodeFrame 解析推送帧为主队列事件
func decodeFrame(data []byte) (model.PrimaryEvent, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("解析推送帧失败: %w", err)
	}
	now := time.Now()
	switch f.Kind {
	case FrameListings:
		return model.ListingsResponse{Body: []byte(f.Payload), ReceivedAt: now}, nil
	case FramePriceHistory:
		return model.PriceHistoryResponse{Page: f.Payload, ReceivedAt: now.UTC()}, nil
	default:
		return nil, errors.New("未知的推送帧类型: " + f.Kind)
	}
}

// maybeLogParseError 采样记录解析错误：每 100 次记录 1 条，且至少间隔 1 分钟
func (s *WSSource) maybeLogParseError(err error, data []byte) {
	count := s.parseErrs.Add(1)
	if count != 1 && count%100 != 0 {
		return
	}
	nowNs := time.Now().UnixNano()
	last := s.lastParseErrLogNs.Load()
	if count != 1 && last > 0 && nowNs-last < int64(time.Minute) {
		return
	}
	s.lastParseErrLogNs.Store(nowNs)

	sample := data
	if len(sample) > 200 {
		sample = sample[:200]
	}
	s.logger.Warn("解析推送帧失败（采样）", zap.Error(err), zap.Int64("total", count), zap.ByteString("data", sample))
}

// Stats 返回重连次数、已处理帧数与解析失败次数
func (s *WSSource) Stats() (reconnects, frames, parseErrors int64) {
	return s.reconnects.Load(), s.frames.Load(), s.parseErrs.Load()
}
