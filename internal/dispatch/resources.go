package dispatch

import (
	"fmt"
	"sync"
	"time"

	"skin-arbitrage-monitor/internal/core/scheduler"
	"skin-arbitrage-monitor/internal/core/store"
)

// 锁名称，用于获取顺序追踪
const (
	LockListings  = "listings"
	LockAnalyses  = "analyses"
	LockScheduler = "scheduler"
)

// InvariantError 挂单存储与调度器大小不一致
// 由主分发器以 panic 抛出，不做恢复。
type InvariantError struct {
	// Op 触发检查的操作
	Op string
	// Listings 挂单存储大小
	Listings int
	// Scheduler 调度器大小
	Scheduler int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("挂单存储与调度器大小不一致（%s）: listings=%d scheduler=%d", e.Op, e.Listings, e.Scheduler)
}

// checkSizes 校验挂单存储与调度器大小一致
func checkSizes(op string, listings *store.ListingStore, sched *scheduler.Scheduler) {
	if listings.Len() != sched.Len() {
		panic(&InvariantError{Op: op, Listings: listings.Len(), Scheduler: sched.Len()})
	}
}

// Resources 分发器共享的状态
// 三把锁只能通过 WithAll / WithStores / WithScheduler 获取，
// 获取顺序固定为 挂单存储 → 价格分析存储 → 调度器。
type Resources struct {
	listingsMu sync.Mutex
	listings   *store.ListingStore

	analysesMu sync.Mutex
	analyses   *store.AnalysisStore

	schedulerMu sync.Mutex
	scheduler   *scheduler.Scheduler

	// trace 加锁追踪（仅测试使用，启动前设置）
	trace func(lock string)
}

// NewResources 用已加载的存储创建共享状态
// 调度器按最后更新时间从旧到新填充；填充后大小不一致返回 InvariantError。
func NewResources(listings *store.ListingStore, analyses *store.AnalysisStore) (*Resources, error) {
	sched := scheduler.New()
	for _, id := range listings.IDsByUpdateTime() {
		sched.Upsert(id)
	}
	if listings.Len() != sched.Len() {
		return nil, &InvariantError{Op: "seed", Listings: listings.Len(), Scheduler: sched.Len()}
	}

	return &Resources{
		listings:  listings,
		analyses:  analyses,
		scheduler: sched,
	}, nil
}

func (r *Resources) lock(name string, mu *sync.Mutex) {
	mu.Lock()
	if r.trace != nil {
		r.trace(name)
	}
}

// WithAll 按固定顺序持有三把锁执行 fn
// 返回获取三把锁的等待时间。
func (r *Resources) WithAll(fn func(listings *store.ListingStore, analyses *store.AnalysisStore, sched *scheduler.Scheduler)) time.Duration {
	start := time.Now()
	r.lock(LockListings, &r.listingsMu)
	defer r.listingsMu.Unlock()
	r.lock(LockAnalyses, &r.analysesMu)
	defer r.analysesMu.Unlock()
	r.lock(LockScheduler, &r.schedulerMu)
	defer r.schedulerMu.Unlock()
	wait := time.Since(start)

	fn(r.listings, r.analyses, r.scheduler)
	return wait
}

// WithStores 持有两个存储的锁执行 fn（快照保存）
func (r *Resources) WithStores(fn func(listings *store.ListingStore, analyses *store.AnalysisStore)) {
	r.lock(LockListings, &r.listingsMu)
	defer r.listingsMu.Unlock()
	r.lock(LockAnalyses, &r.analysesMu)
	defer r.analysesMu.Unlock()

	fn(r.listings, r.analyses)
}

// WithScheduler 仅持有调度器锁执行 fn（刷新任务）
func (r *Resources) WithScheduler(fn func(sched *scheduler.Scheduler)) {
	r.lock(LockScheduler, &r.schedulerMu)
	defer r.schedulerMu.Unlock()

	fn(r.scheduler)
}

// Sizes 返回挂单存储、价格分析存储与调度器的大小
func (r *Resources) Sizes() (listings, analyses, sched int) {
	r.WithAll(func(l *store.ListingStore, a *store.AnalysisStore, s *scheduler.Scheduler) {
		listings, analyses, sched = l.Len(), a.Len(), s.Len()
	})
	return listings, analyses, sched
}
