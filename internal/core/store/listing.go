// Package store 维护挂单与价格分析两类实体的内存状态。
// 两个 Store 均非并发安全，由分发核心持有并在各自的锁内访问。
package store

import (
	"fmt"
	"sort"
	"time"

	json "github.com/goccy/go-json"

	"skin-arbitrage-monitor/internal/core/model"
)

// ListingStore 挂单状态机
// 不变式：listings 与 updatedAt 的键集合始终一致。
type ListingStore struct {
	// listings 挂单 ID -> 最新记录
	listings map[string]model.Listing
	// updatedAt 挂单 ID -> 最后一次观察到的时间
	updatedAt map[string]time.Time
}

// NewListingStore 创建空的挂单 Store
func NewListingStore() *ListingStore {
	return &ListingStore{
		listings:  make(map[string]model.Listing),
		updatedAt: make(map[string]time.Time),
	}
}

// Apply 应用一次挂单观察
// 参数 l: 解析后的挂单
// 参数 now: 观察时间
// 返回: New / Updated / NotChanged / Removed
func (s *ListingStore) Apply(l model.Listing, now time.Time) model.Decision {
	old, seen := s.listings[l.ID]
	if !seen {
		s.listings[l.ID] = l
		s.updatedAt[l.ID] = now
		return model.DecisionNew
	}

	// 已知挂单进入终止状态，价格差异无关
	if l.State.IsTerminal() {
		s.Remove(l.ID)
		return model.DecisionRemoved
	}

	s.listings[l.ID] = l
	s.updatedAt[l.ID] = now
	if old.HasImportantChanges(&l) {
		return model.DecisionUpdated
	}
	return model.DecisionNotChanged
}

// Remove 删除挂单（幂等）
func (s *ListingStore) Remove(id string) {
	delete(s.listings, id)
	delete(s.updatedAt, id)
}

// Get 获取挂单
func (s *ListingStore) Get(id string) (model.Listing, bool) {
	l, ok := s.listings[id]
	return l, ok
}

// Len 挂单数量
func (s *ListingStore) Len() int {
	return len(s.listings)
}

// IDsByUpdateTime 按最后更新时间升序返回所有 ID
// 时间相同时按 ID 排序，保证结果稳定。
func (s *ListingStore) IDsByUpdateTime() []string {
	ids := make([]string, 0, len(s.updatedAt))
	for id := range s.updatedAt {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := s.updatedAt[ids[i]], s.updatedAt[ids[j]]
		if ti.Equal(tj) {
			return ids[i] < ids[j]
		}
		return ti.Before(tj)
	})
	return ids
}

type listingSnapshot struct {
	Listings  map[string]model.Listing `json:"listings"`
	UpdatedAt map[string]time.Time     `json:"updated_at"`
}

// MarshalSnapshot 序列化为快照
func (s *ListingStore) MarshalSnapshot() ([]byte, error) {
	b, err := json.Marshal(listingSnapshot{Listings: s.listings, UpdatedAt: s.updatedAt})
	if err != nil {
		return nil, fmt.Errorf("序列化挂单快照失败: %w", err)
	}
	return b, nil
}

// UnmarshalListingSnapshot 从快照恢复挂单 Store
// 缺少更新时间的挂单视为最旧；没有对应挂单的时间戳被丢弃。
func UnmarshalListingSnapshot(data []byte) (*ListingStore, error) {
	var snap listingSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("解析挂单快照失败: %w", err)
	}

	s := NewListingStore()
	for id, l := range snap.Listings {
		if l.ID != id {
			return nil, fmt.Errorf("挂单快照键与 ID 不一致: %s != %s", id, l.ID)
		}
		s.listings[id] = l
		s.updatedAt[id] = snap.UpdatedAt[id]
	}
	return s, nil
}
