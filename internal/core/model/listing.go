// Package model 定义监控器中使用的核心数据结构。
package model

import "time"

// ListingState 挂单生命周期状态
// 线上格式为小写字符串。
type ListingState string

const (
	// StateListed 在售
	StateListed ListingState = "listed"
	// StateDelisted 已下架
	StateDelisted ListingState = "delisted"
	// StateSold 已售出
	StateSold ListingState = "sold"
	// StateRefunded 已退款
	StateRefunded ListingState = "refunded"
)

// Valid 判断状态是否为已知取值
func (s ListingState) Valid() bool {
	switch s {
	case StateListed, StateDelisted, StateSold, StateRefunded:
		return true
	}
	return false
}

// IsTerminal 判断是否为终止状态（下架/售出/退款）
func (s ListingState) IsTerminal() bool {
	return s == StateDelisted || s == StateSold || s == StateRefunded
}

// Item 挂单对应的物品描述
type Item struct {
	// MarketHashName 市场唯一名称，也是与价格分析数据关联的键
	MarketHashName string `json:"market_hash_name"`
	// IsSouvenir 是否纪念品
	IsSouvenir bool `json:"is_souvenir"`
	// FloatValue 磨损值 [0,1]，可能缺失
	FloatValue *float64 `json:"float_value,omitempty"`
	// Phase 多普勒相位，可能缺失
	Phase *string `json:"phase,omitempty"`
}

// Listing 挂单
type Listing struct {
	// ID 挂单唯一标识（不透明字符串）
	ID string `json:"id"`
	// Price 挂单价格（美分）
	Price Price `json:"price"`
	// State 生命周期状态
	State ListingState `json:"state"`
	// CreatedAt 创建时间
	CreatedAt time.Time `json:"created_at"`
	// Item 物品描述
	Item Item `json:"item"`
}

// HasImportantChanges 判断与另一条记录相比是否有重要变化
// 仅比较价格与状态。
func (l *Listing) HasImportantChanges(other *Listing) bool {
	return l.Price != other.Price || l.State != other.State
}

// Decision 挂单状态机的处理结果
type Decision int

const (
	// DecisionNew 首次出现
	DecisionNew Decision = iota
	// DecisionUpdated 价格或状态发生变化
	DecisionUpdated
	// DecisionNotChanged 无重要变化
	DecisionNotChanged
	// DecisionRemoved 进入终止状态并被移除
	DecisionRemoved
)

func (d Decision) String() string {
	switch d {
	case DecisionNew:
		return "new"
	case DecisionUpdated:
		return "updated"
	case DecisionNotChanged:
		return "not_changed"
	case DecisionRemoved:
		return "removed"
	default:
		return "unknown"
	}
}
