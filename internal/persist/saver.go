package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"skin-arbitrage-monitor/internal/core/store"
	"skin-arbitrage-monitor/internal/stats/duration"
)

// StoreAccess 在存储锁内访问两个存储（*dispatch.Resources 满足）
type StoreAccess interface {
	WithStores(fn func(listings *store.ListingStore, analyses *store.AnalysisStore))
}

// Saver 定时打印处理统计并保存快照
type Saver struct {
	res     StoreAccess
	backend Backend
	stats   *duration.Tracker
	timeout time.Duration
	logger  *zap.Logger
}

// NewSaver 创建快照保存器
// 参数 stats: 处理耗时统计，可为 nil
func NewSaver(res StoreAccess, backend Backend, stats *duration.Tracker, logger *zap.Logger) *Saver {
	return &Saver{
		res:     res,
		backend: backend,
		stats:   stats,
		timeout: time.Minute,
		logger:  logger.Named("persist"),
	}
}

// Run 按 cron 表达式周期保存，ctx 取消后等待进行中的任务结束并返回
func (s *Saver) Run(ctx context.Context, schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if err := s.SaveNow(ctx); err != nil {
			s.logger.Error("保存快照失败", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("无效的保存计划 '%s': %w", schedule, err)
	}

	c.Start()
	s.logger.Info("快照保存已启动", zap.String("schedule", schedule))
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// SaveNow 打印统计并保存两个存储
// 编码在存储锁内完成，写入在锁外进行。
func (s *Saver) SaveNow(ctx context.Context) error {
	if s.stats != nil {
		s.stats.Log(s.logger)
	}

	start := time.Now()
	var (
		listingsData, analysesData []byte
		listingsLen, analysesLen   int
		encodeErr                  error
	)
	s.res.WithStores(func(listings *store.ListingStore, analyses *store.AnalysisStore) {
		listingsLen, analysesLen = listings.Len(), analyses.Len()
		var err1, err2 error
		listingsData, err1 = listings.MarshalSnapshot()
		analysesData, err2 = analyses.MarshalSnapshot()
		encodeErr = errors.Join(err1, err2)
	})
	if encodeErr != nil {
		return fmt.Errorf("编码快照失败: %w", encodeErr)
	}

	// 关闭阶段的最终保存不受已取消的 ctx 影响
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	err := errors.Join(
		s.backend.Save(wctx, KeyListingStore, listingsData),
		s.backend.Save(wctx, KeyAnalysisStore, analysesData),
	)
	if err != nil {
		return err
	}

	s.logger.Info("快照已保存",
		zap.Int("listings", listingsLen),
		zap.Int("analyses", analysesLen),
		zap.Int("bytes", len(listingsData)+len(analysesData)),
		zap.Duration("took", time.Since(start)))
	return nil
}
