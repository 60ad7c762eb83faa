package model

import (
	"fmt"
	"time"
)

// ClassificationKind 分类类型
type ClassificationKind string

const (
	// KindProfitable 相对参考价有利润
	KindProfitable ClassificationKind = "profitable"
	// KindGoodPhase 指定相位的低价挂单
	KindGoodPhase ClassificationKind = "good_phase"
)

// Classification 挂单分类结果
// 在一次分发周期内产生并消费，不作为状态持久化。
type Classification struct {
	// ID 事件唯一标识
	ID string `json:"id"`
	// Kind 分类类型
	Kind ClassificationKind `json:"kind"`
	// MarketName 物品市场名称
	MarketName string `json:"market_name"`
	// ListingID 挂单 ID
	ListingID string `json:"listing_id"`
	// ListingPrice 挂单价格（美分）
	ListingPrice Price `json:"listing_price"`
	// ReferencePrice 参考市场分位数价格（含手续费）
	ReferencePrice Price `json:"reference_price"`
	// ReferenceNoFee 扣除手续费后的参考价
	ReferenceNoFee Price `json:"reference_no_fee"`
	// SoldPerWeek 参考市场周成交量
	SoldPerWeek int64 `json:"sold_per_week"`
	// IsStable 参考价格是否稳定
	IsStable bool `json:"is_stable"`
	// ProfitPct 利润百分比
	ProfitPct float64 `json:"profit_pct"`
	// Float 磨损值
	Float *float64 `json:"float,omitempty"`
	// DetectedAt 检测时间
	DetectedAt time.Time `json:"detected_at"`
}

// Text 生成通知文本
func (c *Classification) Text() string {
	float := "-"
	if c.Float != nil {
		float = fmt.Sprintf("%v", *c.Float)
	}
	return fmt.Sprintf(
		"Found item %.2f%% %s : $%s | steam minus fee $%s | steam $%s \n stable: %t \n sold per week: %d \n id: %s \n float: %s \n kind: %s",
		c.ProfitPct,
		c.MarketName,
		c.ListingPrice,
		c.ReferenceNoFee,
		c.ReferencePrice,
		c.IsStable,
		c.SoldPerWeek,
		c.ListingID,
		float,
		c.Kind,
	)
}
