// Package csfloat 定义 CSFloat API 消息类型。
package csfloat

// listingRecord 挂单记录
// 仅声明用到的字段，其余字段忽略。
type listingRecord struct {
	// ID 挂单 ID
	ID string `json:"id"`
	// Price 价格（美分）
	Price *uint64 `json:"price"`
	// State 状态: listed, delisted, sold, refunded
	State string `json:"state"`
	// CreatedAt 创建时间，RFC3339 格式
	CreatedAt string `json:"created_at"`
	// Item 物品描述
	Item *itemRecord `json:"item"`
}

// itemRecord 物品描述
type itemRecord struct {
	// MarketHashName 市场名称
	MarketHashName string `json:"market_hash_name"`
	// IsSouvenir 是否纪念品，缺失视为 false
	IsSouvenir bool `json:"is_souvenir"`
	// FloatValue 磨损值
	FloatValue *float64 `json:"float_value"`
	// Phase 多普勒相位
	Phase *string `json:"phase"`
}

// listingsEnvelope 批量挂单的对象包装形式
type listingsEnvelope struct {
	Data []rawMessage `json:"data"`
}

// buyRequest 购买请求体
type buyRequest struct {
	// TotalPrice 总价（美分）
	TotalPrice uint64 `json:"total_price"`
	// ContractIDs 挂单 ID 列表
	ContractIDs []string `json:"contract_ids"`
}

// buyResponse 购买响应
type buyResponse struct {
	// Message 结果描述，成功时为 "all listings purchased"
	Message string `json:"message"`
}

// meResponse 账户信息响应
type meResponse struct {
	User struct {
		// Balance 余额（美分）
		Balance uint64 `json:"balance"`
	} `json:"user"`
}
