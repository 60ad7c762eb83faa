// Package duration 统计各类事件的处理耗时。
// 每类事件维护独立的滚动窗口，输出均值与 P50/P90/P95/P99。
package duration

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Stats 单类事件的耗时统计快照（滚动窗口）
type Stats struct {
	// Kind 事件类型
	Kind string
	// Count 样本总数（累计）
	Count int64
	// Samples 窗口内样本数
	Samples int
	// Mean 窗口内平均耗时
	Mean time.Duration
	// P50 中位耗时
	P50 time.Duration
	// P90 P90 耗时
	P90 time.Duration
	// P95 P95 耗时
	P95 time.Duration
	// P99 P99 耗时
	P99 time.Duration
}

// Rate 按平均耗时折算的每秒处理能力
func (s Stats) Rate() float64 {
	return rateOf(s.Mean)
}

func rateOf(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(time.Second) / float64(d)
}

type rollingWindow struct {
	size  int
	buf   []time.Duration
	pos   int
	count int64
	full  bool

	mu sync.Mutex
}

func newRollingWindow(size int) *rollingWindow {
	return &rollingWindow{size: size, buf: make([]time.Duration, 0, size)}
}

func (w *rollingWindow) add(v time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.count++
	if w.size <= 0 {
		return
	}

	if !w.full {
		w.buf = append(w.buf, v)
		if len(w.buf) == w.size {
			w.full = true
			w.pos = 0
		}
		return
	}

	w.buf[w.pos] = v
	w.pos++
	if w.pos >= w.size {
		w.pos = 0
	}
}

func (w *rollingWindow) snapshot(kind string) Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Stats{Kind: kind, Count: w.count, Samples: len(w.buf)}
	if len(w.buf) == 0 {
		return s
	}

	tmp := make([]time.Duration, len(w.buf))
	copy(tmp, w.buf)
	sort.Slice(tmp, func(i, j int) bool { return tmp[i] < tmp[j] })

	var sum time.Duration
	for _, d := range tmp {
		sum += d
	}
	s.Mean = sum / time.Duration(len(tmp))
	s.P50 = quantile(tmp, 0.50)
	s.P90 = quantile(tmp, 0.90)
	s.P95 = quantile(tmp, 0.95)
	s.P99 = quantile(tmp, 0.99)
	return s
}

// quantile 最近秩分位数，sorted 必须非空且已升序
func quantile(sorted []time.Duration, q float64) time.Duration {
	n := len(sorted)
	idx := int(float64(n-1) * q)
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

// Tracker 处理耗时追踪器
// 并发安全。
type Tracker struct {
	windowSize int

	mu      sync.Mutex
	windows map[string]*rollingWindow
}

// NewTracker 创建耗时追踪器
// 参数 windowSize: 每类事件的滚动窗口大小（默认 1000）
func NewTracker(windowSize int) *Tracker {
	return &Tracker{
		windowSize: windowSize,
		windows:    make(map[string]*rollingWindow),
	}
}

// Observe 记录一次处理耗时
func (t *Tracker) Observe(kind string, d time.Duration) {
	t.mu.Lock()
	w, ok := t.windows[kind]
	if !ok {
		w = newRollingWindow(t.windowSize)
		t.windows[kind] = w
	}
	t.mu.Unlock()

	w.add(d)
}

// Snapshot 获取所有事件类型的统计快照（按类型名排序）
func (t *Tracker) Snapshot() []Stats {
	t.mu.Lock()
	kinds := make([]string, 0, len(t.windows))
	windows := make([]*rollingWindow, 0, len(t.windows))
	for k := range t.windows {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		windows = append(windows, t.windows[k])
	}
	t.mu.Unlock()

	out := make([]Stats, len(kinds))
	for i, w := range windows {
		out[i] = w.snapshot(kinds[i])
	}
	return out
}

// Log 将统计快照写入日志
func (t *Tracker) Log(logger *zap.Logger) {
	snap := t.Snapshot()
	if len(snap) == 0 {
		logger.Info("暂无处理耗时记录")
		return
	}
	for _, s := range snap {
		logger.Info("处理耗时统计",
			zap.String("kind", s.Kind),
			zap.Int64("count", s.Count),
			zap.Int("samples", s.Samples),
			zap.Duration("mean", s.Mean),
			zap.Float64("rate_per_sec", s.Rate()),
			zap.Duration("p50", s.P50),
			zap.Duration("p90", s.P90),
			zap.Duration("p95", s.P95),
			zap.Duration("p99", s.P99),
		)
	}
}
