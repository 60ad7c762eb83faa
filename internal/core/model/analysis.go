package model

// PercentilePrice 分位数价格
type PercentilePrice struct {
	// Level 分位数（整数百分比，如 60）
	Level uint8 `json:"level"`
	// Price 对应价格（美分）
	Price Price `json:"price"`
}

// AnalysisResult 某一物品的价格时间序列分析结果
// 统计字段全部为空表示数据不足以得出结论。
type AnalysisResult struct {
	// RSD 移动平均序列的相对标准差
	RSD *float64 `json:"rsd,omitempty"`
	// IsStable 价格是否稳定（RSD < 0.03）
	IsStable *bool `json:"is_stable,omitempty"`
	// SoldPerWeek 近 7 天成交量
	SoldPerWeek *int64 `json:"sold_per_week,omitempty"`
	// Percentiles 分位数价格列表（按配置顺序）
	Percentiles []PercentilePrice `json:"percentiles"`
}

// PriceAtPercentile 按分位数精确匹配查找价格
func (r *AnalysisResult) PriceAtPercentile(level uint8) (Price, bool) {
	if r == nil {
		return 0, false
	}
	for _, p := range r.Percentiles {
		if p.Level == level {
			return p.Price, true
		}
	}
	return 0, false
}

// Stable 返回稳定性标记，缺失视为不稳定
func (r *AnalysisResult) Stable() bool {
	return r != nil && r.IsStable != nil && *r.IsStable
}

// WeeklySold 返回周成交量，缺失视为 0
func (r *AnalysisResult) WeeklySold() int64 {
	if r == nil || r.SoldPerWeek == nil {
		return 0
	}
	return *r.SoldPerWeek
}
