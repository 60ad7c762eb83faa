// Package fee 实现参考市场的手续费计算及其近似逆运算。
// 参考市场在卖家到手价（payload）之上叠加两项独立的百分比手续费，
// 每项至少 1 美分，买家支付 total = payload + fee1 + fee2。
package fee

import (
	"fmt"

	"skin-arbitrage-monitor/internal/config"
	"skin-arbitrage-monitor/internal/core/model"
)

// maxSteps 逆运算最多向下调整的次数
const maxSteps = 4

// Calculator 手续费计算器
type Calculator struct {
	// wallet 平台手续费率
	wallet float64
	// publisher 发行商手续费率
	publisher float64
	// divider 逆运算初值使用的除数 1 + wallet + publisher
	divider float64
}

// NewCalculator 创建手续费计算器
// 参数 cfg: 手续费配置
func NewCalculator(cfg config.FeeConfig) *Calculator {
	return &Calculator{
		wallet:    cfg.WalletRate,
		publisher: cfg.PublisherRate,
		divider:   1 + cfg.WalletRate + cfg.PublisherRate,
	}
}

// Default 默认费率（5% + 10%）的计算器
func Default() *Calculator {
	return NewCalculator(config.FeeConfig{WalletRate: 0.05, PublisherRate: 0.10})
}

// AddFee 由卖家到手价计算买家支付价
// payload < 1 属于调用方错误，直接 panic。
func (c *Calculator) AddFee(payload model.Price) model.Price {
	if payload < 1 {
		panic(fmt.Sprintf("fee: AddFee 的 payload 必须 >= 1，当前值: %d", payload))
	}
	return payload + atLeastOne(payload.MultiplyBy(c.wallet)) + atLeastOne(payload.MultiplyBy(c.publisher))
}

// SubtractFee 由买家支付价近似反推卖家到手价
// 初值为 floor(total/divider)+2，最多向下调整 4 次，直到 AddFee(payload) <= total。
// 调整次数用尽时返回当前候选值，不保证是精确解。
// total < 3 属于调用方错误，直接 panic。
func (c *Calculator) SubtractFee(total model.Price) model.Price {
	if total < 3 {
		panic(fmt.Sprintf("fee: SubtractFee 的 total 必须 >= 3，当前值: %d", total))
	}

	payload := total.DivideBy(c.divider) + 2
	for i := 0; i < maxSteps; i++ {
		if c.AddFee(payload) <= total {
			break
		}
		payload--
	}
	return payload
}

func atLeastOne(p model.Price) model.Price {
	if p < 1 {
		return 1
	}
	return p
}
