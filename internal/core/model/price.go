package model

import (
	"math"

	"github.com/shopspring/decimal"
)

// Price 价格（最小货币单位：美分）
type Price uint64

// PriceFromUSD 将美元金额转换为美分（截断）
// 注意：不做四舍五入，0.29 可能得到 28；调用方如需按分取整应先自行取整。
func PriceFromUSD(usd float64) Price {
	if usd <= 0 || math.IsNaN(usd) {
		return 0
	}
	return Price(usd * 100)
}

// USD 转换为美元金额（保留两位小数）
func (p Price) USD() float64 {
	return float64(p) / 100
}

// MultiplyBy 乘以系数（截断）
func (p Price) MultiplyBy(rate float64) Price {
	return Price(float64(p) * rate)
}

// DivideBy 除以系数（截断）
func (p Price) DivideBy(v float64) Price {
	return Price(float64(p) / v)
}

// String 以 "D.CC" 形式输出
func (p Price) String() string {
	return decimal.New(int64(p), -2).StringFixed(2)
}
