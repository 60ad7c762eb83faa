// Package persist 实现两个实体存储的快照持久化。
// 快照按固定键保存，启动时加载一次；缺失或损坏时使用空存储。
package persist

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"skin-arbitrage-monitor/internal/core/store"
)

// 快照键
const (
	KeyListingStore  = "listing_store"
	KeyAnalysisStore = "price_analysis_store"
)

// ErrNotFound 快照不存在
var ErrNotFound = errors.New("快照不存在")

// Backend 快照存储后端
type Backend interface {
	// Load 读取快照，不存在时返回 ErrNotFound
	Load(ctx context.Context, key string) ([]byte, error)
	// Save 覆盖写入快照
	Save(ctx context.Context, key string, data []byte) error
	// Close 释放后端资源
	Close() error
}

// LoadStores 加载两个存储
// 快照缺失、读取失败或无法解码时记录日志并返回空存储。
func LoadStores(ctx context.Context, backend Backend, logger *zap.Logger) (*store.ListingStore, *store.AnalysisStore) {
	log := logger.Named("persist")

	listings := store.NewListingStore()
	if data, err := load(ctx, backend, KeyListingStore, log); err == nil {
		if s, err := store.UnmarshalListingSnapshot(data); err != nil {
			log.Error("挂单快照损坏，使用空存储", zap.Error(err))
		} else {
			listings = s
		}
	}

	analyses := store.NewAnalysisStore()
	if data, err := load(ctx, backend, KeyAnalysisStore, log); err == nil {
		if s, err := store.UnmarshalAnalysisSnapshot(data); err != nil {
			log.Error("价格分析快照损坏，使用空存储", zap.Error(err))
		} else {
			analyses = s
		}
	}

	log.Info("快照加载完成", zap.Int("listings", listings.Len()), zap.Int("analyses", analyses.Len()))
	return listings, analyses
}

func load(ctx context.Context, backend Backend, key string, log *zap.Logger) ([]byte, error) {
	data, err := backend.Load(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		log.Info("快照不存在，使用空存储", zap.String("key", key))
		return nil, err
	case err != nil:
		log.Error("读取快照失败，使用空存储", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("读取快照 %s 失败: %w", key, err)
	}
	return data, nil
}
