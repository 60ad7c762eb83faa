package dispatch

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// sampler 采样记录解析错误，避免刷屏
// 采样策略：每 every 次错误记录 1 条，且两条日志至少间隔 interval。
// 第一条错误总是记录。
type sampler struct {
	logger   *zap.Logger
	every    uint64
	interval time.Duration

	count     atomic.Uint64
	lastLogNs atomic.Int64
}

func newSampler(logger *zap.Logger, every uint64, interval time.Duration) *sampler {
	if every == 0 {
		every = 1
	}
	return &sampler{logger: logger, every: every, interval: interval}
}

// Warn 记录一次解析错误，按采样策略决定是否输出
// 返回是否实际输出。
func (s *sampler) Warn(msg string, err error, data []byte) bool {
	n := s.count.Add(1)
	if n != 1 && n%s.every != 0 {
		return false
	}

	nowNs := time.Now().UnixNano()
	last := s.lastLogNs.Load()
	if n != 1 && last > 0 && nowNs-last < int64(s.interval) {
		return false
	}
	s.lastLogNs.Store(nowNs)

	fields := []zap.Field{zap.Error(err), zap.Uint64("total", n)}
	if len(data) > 0 {
		sample := data
		if len(sample) > 200 {
			sample = sample[:200]
		}
		fields = append(fields, zap.ByteString("data", sample))
	}
	s.logger.Warn(msg+"（采样）", fields...)
	return true
}

// Count 解析错误总数
func (s *sampler) Count() uint64 {
	return s.count.Load()
}
