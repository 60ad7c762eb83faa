// Package purchase 实现自动购买执行器。
// 两次购买尝试之间有冷却时间；dry-run 模式只记录，不调用下单接口。
package purchase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"skin-arbitrage-monitor/internal/config"
	"skin-arbitrage-monitor/internal/core/model"
)

// Buyer 下单接口
// 返回 true 表示平台确认购买成功。
type Buyer interface {
	Buy(ctx context.Context, listingID string, price model.Price) (bool, error)
}

// Result 购买尝试结果
type Result struct {
	// Performed 是否实际发起了尝试（冷却期内为 false）
	Performed bool
	// Purchased 平台是否确认成交
	Purchased bool
	// DryRun 是否为模拟
	DryRun bool
}

// Executor 自动购买执行器
type Executor struct {
	buyer    Buyer
	cooldown time.Duration
	dryRun   bool
	logger   *zap.Logger

	// mu 保护 nextCall
	mu       sync.Mutex
	nextCall time.Time

	now func() time.Time
}

// NewExecutor 创建自动购买执行器
// 参数 cfg: 自动购买配置
// 参数 buyer: 下单接口，dry-run 时可为 nil
// 参数 logger: 日志
func NewExecutor(cfg config.AutobuyConfig, buyer Buyer, logger *zap.Logger) *Executor {
	return &Executor{
		buyer:    buyer,
		cooldown: time.Duration(cfg.CooldownMs) * time.Millisecond,
		dryRun:   cfg.DryRun || buyer == nil,
		logger:   logger.Named("purchase"),
		now:      time.Now,
	}
}

// TryBuy 尝试以挂单价购买
// 冷却期内直接返回 Result{Performed: false}，不报错。
// 冷却从发起请求时开始计算，失败的尝试同样占用冷却时间。
func (e *Executor) TryBuy(ctx context.Context, c *model.Classification) (Result, error) {
	e.mu.Lock()
	now := e.now()
	if e.nextCall.After(now) {
		next := e.nextCall
		e.mu.Unlock()
		e.logger.Warn("本地限流，跳过购买",
			zap.String("listing_id", c.ListingID),
			zap.Time("next_call", next),
		)
		return Result{}, nil
	}
	e.nextCall = now.Add(e.cooldown)
	e.mu.Unlock()

	if e.dryRun {
		e.logger.Info("模拟购买",
			zap.String("listing_id", c.ListingID),
			zap.String("market_name", c.MarketName),
			zap.Stringer("price", c.ListingPrice),
			zap.Float64("profit_pct", c.ProfitPct),
		)
		return Result{Performed: true, DryRun: true}, nil
	}

	ok, err := e.buyer.Buy(ctx, c.ListingID, c.ListingPrice)
	if err != nil {
		return Result{Performed: true}, fmt.Errorf("购买挂单 %s 失败: %w", c.ListingID, err)
	}
	e.logger.Info("购买请求完成",
		zap.String("listing_id", c.ListingID),
		zap.Stringer("price", c.ListingPrice),
		zap.Bool("purchased", ok),
	)
	return Result{Performed: true, Purchased: ok}, nil
}

// FollowUpText 生成购买结果通知文本
func FollowUpText(c *model.Classification, r Result) string {
	return fmt.Sprintf("Tried to buy %s for $%s: %t", c.ListingID, c.ListingPrice, r.Purchased)
}
