// Package dispatch 实现事件分发核心。
// 主队列承载原始响应与挂单变化事件，由唯一的主分发 goroutine 在三把锁下处理；
// 次队列承载分类事件，由唯一的次分发 goroutine 负责通知、审计与自动购买。
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"skin-arbitrage-monitor/internal/config"
	"skin-arbitrage-monitor/internal/core/analyzer"
	"skin-arbitrage-monitor/internal/core/model"
	"skin-arbitrage-monitor/internal/core/scheduler"
	"skin-arbitrage-monitor/internal/core/signal"
	"skin-arbitrage-monitor/internal/core/store"
	"skin-arbitrage-monitor/internal/exchange/csfloat"
	"skin-arbitrage-monitor/internal/purchase"
	"skin-arbitrage-monitor/internal/stats/duration"
)

// Notifier 通知发送
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Purchaser 自动购买
type Purchaser interface {
	TryBuy(ctx context.Context, c *model.Classification) (purchase.Result, error)
}

// AuditSink 分类事件审计输出
type AuditSink interface {
	WriteClassification(c *model.Classification) error
}

// Options 可选协作者
type Options struct {
	// Notifier 通知发送，为空时只写日志
	Notifier Notifier
	// Purchaser 自动购买，为空时不购买
	Purchaser Purchaser
	// Audit 审计输出，为空时不写
	Audit AuditSink
	// Stats 处理耗时统计，为空时不统计
	Stats *duration.Tracker
	// NotifyTimeout 单条通知超时
	NotifyTimeout time.Duration
}

// Dispatcher 事件分发器
type Dispatcher struct {
	res      *Resources
	engine   *signal.Engine
	analyzer *analyzer.Analyzer

	primary   chan model.PrimaryEvent
	secondary chan model.SecondaryEvent

	opts         Options
	lockWaitWarn time.Duration
	pickupWarn   time.Duration

	// notifications 通知发送 goroutine
	notifications conc.WaitGroup

	parseErrs *sampler
	logger    *zap.Logger
	now       func() time.Time
}

// New 创建事件分发器
// 参数 res: 共享状态
// 参数 engine: 分类决策引擎
// 参数 an: 价格序列分析器
// 参数 queues: 队列容量
// 参数 st: 告警阈值
// 参数 opts: 可选协作者
// 参数 logger: 日志记录器
func New(res *Resources, engine *signal.Engine, an *analyzer.Analyzer, queues config.QueuesConfig, st config.StatsConfig, opts Options, logger *zap.Logger) *Dispatcher {
	l := logger.Named("dispatch")
	return &Dispatcher{
		res:          res,
		engine:       engine,
		analyzer:     an,
		primary:      make(chan model.PrimaryEvent, queues.PrimarySize),
		secondary:    make(chan model.SecondaryEvent, queues.SecondarySize),
		opts:         opts,
		lockWaitWarn: time.Duration(st.LockWaitWarnMs) * time.Millisecond,
		pickupWarn:   time.Duration(st.PickupWarnMs) * time.Millisecond,
		parseErrs:    newSampler(l, 100, time.Minute),
		logger:       l,
		now:          time.Now,
	}
}

// Submit 阻塞写入主队列（导入任务使用，是唯一的背压点）
func (d *Dispatcher) Submit(ctx context.Context, ev model.PrimaryEvent) error {
	select {
	case d.primary <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit 非阻塞写入主队列，队列已满时记录错误并丢弃
func (d *Dispatcher) TrySubmit(ev model.PrimaryEvent) bool {
	select {
	case d.primary <- ev:
		return true
	default:
		d.logger.Error("主队列已满，丢弃事件", zap.String("kind", ev.Kind()))
		return false
	}
}

func (d *Dispatcher) trySubmitSecondary(ev model.SecondaryEvent) bool {
	select {
	case d.secondary <- ev:
		return true
	default:
		d.logger.Error("次队列已满，丢弃事件", zap.String("kind", ev.Kind()))
		return false
	}
}

// QueueLens 返回两个队列当前长度
func (d *Dispatcher) QueueLens() (primary, secondary int) {
	return len(d.primary), len(d.secondary)
}

// Drain 等待两个队列排空，ctx 结束时返回 false
// 生产者全部停止后调用。
func (d *Dispatcher) Drain(ctx context.Context) bool {
	t := time.NewTicker(10 * time.Millisecond)
	defer t.Stop()
	for {
		if p, s := d.QueueLens(); p == 0 && s == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
		}
	}
}

// RunPrimary 主分发循环，直到 ctx 取消
func (d *Dispatcher) RunPrimary(ctx context.Context) {
	d.logger.Info("主分发器启动")
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("主分发器退出")
			return
		case ev := <-d.primary:
			d.ProcessPrimary(ev)
		}
	}
}

// RunSecondary 次分发循环，直到 ctx 取消；退出前等待进行中的通知
func (d *Dispatcher) RunSecondary(ctx context.Context) {
	d.logger.Info("次分发器启动")
	defer d.notifications.Wait()
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("次分发器退出")
			return
		case ev := <-d.secondary:
			d.ProcessSecondary(ctx, ev)
		}
	}
}

// ProcessPrimary 在三把锁下处理一个主队列事件，派生事件以非阻塞方式重新入队
func (d *Dispatcher) ProcessPrimary(ev model.PrimaryEvent) {
	start := time.Now()

	var (
		derived    []model.PrimaryEvent
		classified []model.Classification
	)
	wait := d.res.WithAll(func(listings *store.ListingStore, analyses *store.AnalysisStore, sched *scheduler.Scheduler) {
		switch e := ev.(type) {
		case model.ListingsResponse:
			d.warnPickup(e.Kind(), e.ReceivedAt)
			derived = d.handleListings(e.Body, listings, sched)
		case model.OneListingResponse:
			d.warnPickup(e.Kind(), e.ReceivedAt)
			derived = d.handleOneListing(e.Body, listings, sched)
		case model.PriceHistoryResponse:
			d.handlePriceHistory(e, analyses)
		case model.UpdatedListings:
			classified = d.engine.Evaluate(e.IDs, listings, analyses)
		default:
			panic(fmt.Sprintf("未知的主队列事件类型: %T", ev))
		}
	})
	if d.lockWaitWarn > 0 && wait > d.lockWaitWarn {
		d.logger.Warn("获取三把锁等待过久", zap.Duration("wait", wait), zap.String("kind", ev.Kind()))
	}

	for _, p := range derived {
		d.TrySubmit(p)
	}
	for _, c := range classified {
		d.trySubmitSecondary(model.ProfitableListing{Classification: c})
	}

	d.observe(ev.Kind(), time.Since(start))
}

// handleListings 批量挂单：逐条解析，坏记录跳过
func (d *Dispatcher) handleListings(body []byte, listings *store.ListingStore, sched *scheduler.Scheduler) []model.PrimaryEvent {
	parsed, skipped, err := csfloat.ParseListings(body)
	if err != nil {
		d.parseErrs.Warn("解析批量挂单失败", err, body)
		return nil
	}
	for _, e := range skipped {
		d.parseErrs.Warn("跳过无法解析的挂单", e, nil)
	}
	return d.applyListings(parsed, listings, sched)
}

// handleOneListing 单条刷新响应
func (d *Dispatcher) handleOneListing(body []byte, listings *store.ListingStore, sched *scheduler.Scheduler) []model.PrimaryEvent {
	l, err := csfloat.ParseListing(body)
	if err != nil {
		d.parseErrs.Warn("解析单条挂单失败", err, body)
		return nil
	}
	return d.applyListings([]model.Listing{l}, listings, sched)
}

// applyListings 预过滤后写入挂单存储并同步调度器
// 新增或变化的挂单 ID 汇总为一个 UpdatedListings 事件。
func (d *Dispatcher) applyListings(parsed []model.Listing, listings *store.ListingStore, sched *scheduler.Scheduler) []model.PrimaryEvent {
	now := d.now()
	var ids []string
	for i := range parsed {
		l := &parsed[i]
		if !d.engine.Prefilter(l) {
			continue
		}
		switch decision := listings.Apply(*l, now); decision {
		case model.DecisionNew, model.DecisionUpdated:
			sched.Upsert(l.ID)
			checkSizes(decision.String(), listings, sched)
			ids = append(ids, l.ID)
		case model.DecisionRemoved:
			sched.Remove(l.ID)
			checkSizes(decision.String(), listings, sched)
		case model.DecisionNotChanged:
		default:
			panic(fmt.Sprintf("未知的挂单处理结果: %d", decision))
		}
	}

	if len(ids) == 0 {
		return nil
	}
	return []model.PrimaryEvent{model.UpdatedListings{IDs: ids}}
}

// handlePriceHistory 分析价格历史并覆盖写入
// 以页面获取时间作为分析基准时间。
func (d *Dispatcher) handlePriceHistory(e model.PriceHistoryResponse, analyses *store.AnalysisStore) {
	name, err := analyzer.ExtractMarketHashName(e.Page)
	if err != nil {
		d.parseErrs.Warn("提取物品名称失败", err, []byte(e.Page))
		return
	}

	points, skipped, err := analyzer.ExtractHistory(e.Page, d.analyzer.WindowStart(e.ReceivedAt))
	if err != nil {
		d.parseErrs.Warn("提取价格历史失败", err, nil)
		return
	}
	if skipped > 0 {
		d.logger.Warn("跳过无法解析的价格点", zap.String("market_name", name), zap.Int("skipped", skipped))
	}

	res, ok := d.analyzer.AnalyzePoints(points, e.ReceivedAt)
	if !ok {
		d.logger.Debug("价格数据不足", zap.String("market_name", name), zap.Int("points", len(points)))
		return
	}
	analyses.Update(name, res)
}

// ProcessSecondary 处理一个次队列事件
func (d *Dispatcher) ProcessSecondary(ctx context.Context, ev model.SecondaryEvent) {
	start := time.Now()

	switch e := ev.(type) {
	case model.ProfitableListing:
		d.handleClassification(ctx, &e.Classification)
	default:
		panic(fmt.Sprintf("未知的次队列事件类型: %T", ev))
	}

	d.observe(ev.Kind(), time.Since(start))
}

func (d *Dispatcher) handleClassification(ctx context.Context, c *model.Classification) {
	if d.opts.Audit != nil {
		if err := d.opts.Audit.WriteClassification(c); err != nil {
			d.logger.Warn("写入分类审计失败", zap.Error(err))
		}
	}

	if d.engine.NeedsNotification(c) {
		d.notify(ctx, c.Text())
	}

	if d.opts.Purchaser == nil || !d.engine.NeedsAutobuy(c) {
		return
	}
	result, err := d.opts.Purchaser.TryBuy(ctx, c)
	if err != nil {
		d.logger.Warn("购买失败",
			zap.String("listing_id", c.ListingID),
			zap.Stringer("price", c.ListingPrice),
			zap.Error(err),
		)
	}
	d.notify(ctx, purchase.FollowUpText(c, result))
}

// notify 异步发送通知，失败只记录日志
func (d *Dispatcher) notify(ctx context.Context, text string) {
	if d.opts.Notifier == nil {
		d.logger.Info("通知", zap.String("text", text))
		return
	}
	d.notifications.Go(func() {
		sendCtx := context.WithoutCancel(ctx)
		if d.opts.NotifyTimeout > 0 {
			var cancel context.CancelFunc
			sendCtx, cancel = context.WithTimeout(sendCtx, d.opts.NotifyTimeout)
			defer cancel()
		}
		if err := d.opts.Notifier.Notify(sendCtx, text); err != nil {
			d.logger.Warn("发送通知失败", zap.Error(err))
		}
	})
}

// WaitNotifications 等待进行中的通知发送完成
func (d *Dispatcher) WaitNotifications() {
	d.notifications.Wait()
}

func (d *Dispatcher) warnPickup(kind string, receivedAt time.Time) {
	if receivedAt.IsZero() || d.pickupWarn <= 0 {
		return
	}
	if delay := d.now().Sub(receivedAt); delay > d.pickupWarn {
		d.logger.Warn("事件处理前等待过久", zap.String("kind", kind), zap.Duration("delay", delay))
	}
}

func (d *Dispatcher) observe(kind string, elapsed time.Duration) {
	if d.opts.Stats != nil {
		d.opts.Stats.Observe(kind, elapsed)
	}
}
