package store

import (
	"fmt"

	json "github.com/goccy/go-json"

	"skin-arbitrage-monitor/internal/core/model"
)

// AnalysisStore 价格分析结果缓存
// 每个市场名称一条记录，每次分析整体覆盖。
type AnalysisStore struct {
	results map[string]*model.AnalysisResult
}

// NewAnalysisStore 创建空的分析 Store
func NewAnalysisStore() *AnalysisStore {
	return &AnalysisStore{
		results: make(map[string]*model.AnalysisResult),
	}
}

// Update 覆盖写入分析结果
func (s *AnalysisStore) Update(marketName string, r *model.AnalysisResult) {
	if r == nil {
		return
	}
	s.results[marketName] = r
}

// Get 获取分析结果
// 返回的指针应视为只读。
func (s *AnalysisStore) Get(marketName string) (*model.AnalysisResult, bool) {
	r, ok := s.results[marketName]
	return r, ok
}

// PriceAtPercentile 获取指定分位数的参考价
func (s *AnalysisStore) PriceAtPercentile(marketName string, level uint8) (model.Price, bool) {
	r, ok := s.results[marketName]
	if !ok {
		return 0, false
	}
	return r.PriceAtPercentile(level)
}

// Len 记录数量
func (s *AnalysisStore) Len() int {
	return len(s.results)
}

// MarshalSnapshot 序列化为快照
func (s *AnalysisStore) MarshalSnapshot() ([]byte, error) {
	b, err := json.Marshal(s.results)
	if err != nil {
		return nil, fmt.Errorf("序列化分析快照失败: %w", err)
	}
	return b, nil
}

// UnmarshalAnalysisSnapshot 从快照恢复分析 Store
func UnmarshalAnalysisSnapshot(data []byte) (*AnalysisStore, error) {
	results := make(map[string]*model.AnalysisResult)
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("解析分析快照失败: %w", err)
	}
	s := NewAnalysisStore()
	for k, r := range results {
		if r != nil {
			s.results[k] = r
		}
	}
	return s, nil
}
