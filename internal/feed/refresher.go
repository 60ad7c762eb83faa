package feed

import (
	"context"
	"time"

	"go.uber.org/zap"

	"skin-arbitrage-monitor/internal/core/model"
	"skin-arbitrage-monitor/internal/core/scheduler"
)

// ListingFetcher 单条挂单获取
type ListingFetcher interface {
	GetListing(ctx context.Context, listingID string) ([]byte, error)
}

// SchedulerAccess 调度器访问（只持有调度器锁）
type SchedulerAccess interface {
	WithScheduler(fn func(sched *scheduler.Scheduler))
}

// Refresher 挂单刷新任务
// 每个周期从调度器取一个 ID，获取最新状态后非阻塞写入主队列。
type Refresher struct {
	sched    SchedulerAccess
	fetcher  ListingFetcher
	sink     Sink
	interval time.Duration
	logger   *zap.Logger
}

// NewRefresher 创建刷新任务
// 参数 sched: 调度器访问
// 参数 fetcher: 挂单获取
// 参数 sink: 主队列
// 参数 interval: 刷新间隔
// 参数 logger: 日志记录器
func NewRefresher(sched SchedulerAccess, fetcher ListingFetcher, sink Sink, interval time.Duration, logger *zap.Logger) *Refresher {
	return &Refresher{
		sched:    sched,
		fetcher:  fetcher,
		sink:     sink,
		interval: interval,
		logger:   logger.Named("refresher"),
	}
}

// Run 按间隔刷新，直到 ctx 取消
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick 刷新一条挂单
// 返回是否成功写入主队列。
func (r *Refresher) Tick(ctx context.Context) bool {
	var (
		id   string
		ok   bool
		size int
	)
	r.sched.WithScheduler(func(s *scheduler.Scheduler) {
		id, ok = s.Next()
		size = s.Len()
	})
	if !ok {
		return false
	}
	r.logger.Debug("刷新挂单", zap.String("listing_id", id), zap.Int("scheduler_size", size))

	body, err := r.fetcher.GetListing(ctx, id)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("获取挂单失败", zap.String("listing_id", id), zap.Error(err))
		}
		return false
	}

	return r.sink.TrySubmit(model.OneListingResponse{Body: body, ReceivedAt: time.Now()})
}
