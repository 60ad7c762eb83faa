package model

import "time"

// PrimaryEvent 主队列事件（原始响应与派生的挂单变化）
// 为封闭集合，只有本包内的类型可以实现。
type PrimaryEvent interface {
	// Kind 事件类型名，用于统计与日志
	Kind() string
	primaryEvent()
}

// SecondaryEvent 次队列事件（分类结果）
type SecondaryEvent interface {
	Kind() string
	secondaryEvent()
}

// 事件类型名
const (
	KindListingsResponse     = "listings_response"
	KindOneListingResponse   = "one_listing_response"
	KindPriceHistoryResponse = "price_history_response"
	KindUpdatedListings      = "updated_listings"
	KindProfitableListing    = "profitable_listing"
)

// ListingsResponse 批量挂单响应（JSON 数组）
type ListingsResponse struct {
	// Body 原始响应体
	Body []byte
	// ReceivedAt 进入队列的时间
	ReceivedAt time.Time
}

// OneListingResponse 单条挂单刷新响应
type OneListingResponse struct {
	Body       []byte
	ReceivedAt time.Time
}

// PriceHistoryResponse 价格历史页面
type PriceHistoryResponse struct {
	// Page 原始 HTML
	Page string
	// ReceivedAt 获取时间，作为分析的 "当前时间"
	ReceivedAt time.Time
}

// UpdatedListings 本轮新增或变化的挂单 ID
type UpdatedListings struct {
	IDs []string
}

func (ListingsResponse) Kind() string     { return KindListingsResponse }
func (OneListingResponse) Kind() string   { return KindOneListingResponse }
func (PriceHistoryResponse) Kind() string { return KindPriceHistoryResponse }
func (UpdatedListings) Kind() string      { return KindUpdatedListings }

func (ListingsResponse) primaryEvent()     {}
func (OneListingResponse) primaryEvent()   {}
func (PriceHistoryResponse) primaryEvent() {}
func (UpdatedListings) primaryEvent()      {}

// ProfitableListing 分类事件
type ProfitableListing struct {
	Classification
}

func (ProfitableListing) Kind() string    { return KindProfitableListing }
func (ProfitableListing) secondaryEvent() {}
