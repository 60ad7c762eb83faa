// Package fee 手续费计算测试
package fee

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"skin-arbitrage-monitor/internal/core/model"
)

func TestAddFee_Vectors(t *testing.T) {
	c := Default()
	cases := []struct {
		payload model.Price
		want    model.Price
	}{
		{1, 3}, {9, 11}, {18, 20}, {19, 21}, {20, 23}, {59, 66}, {60, 69},
		{130, 149}, {200, 230}, {300, 345}, {400, 460}, {500, 575},
		{1243, 1429}, {12943, 14884},
	}
	for _, tc := range cases {
		if got := c.AddFee(tc.payload); got != tc.want {
			t.Fatalf("AddFee(%d) = %d, 期望 %d", tc.payload, got, tc.want)
		}
	}
}

func TestSubtractFee_Vectors(t *testing.T) {
	c := Default()
	cases := []struct {
		total model.Price
		want  model.Price
	}{
		{3, 1}, {4, 2}, {19, 17}, {20, 18}, {21, 19}, {22, 19}, {23, 20},
		{149, 130}, {230, 200}, {345, 300}, {460, 400}, {575, 500},
		{1429, 1243}, {2274, 1979}, {2484, 2160}, {14884, 12943}, {200000, 173914},
	}
	for _, tc := range cases {
		if got := c.SubtractFee(tc.total); got != tc.want {
			t.Fatalf("SubtractFee(%d) = %d, 期望 %d", tc.total, got, tc.want)
		}
	}
}

func TestAddFee_PanicsOnZero(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("payload=0 应 panic")
		}
	}()
	Default().AddFee(0)
}

func TestSubtractFee_PanicsBelowThree(t *testing.T) {
	for _, total := range []model.Price{0, 1, 2} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("total=%d 应 panic", total)
				}
			}()
			Default().SubtractFee(total)
		}()
	}
}

func TestFee_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	c := Default()

	properties.Property("AddFee 至少增加 2 美分", prop.ForAll(
		func(p uint64) bool {
			return c.AddFee(model.Price(p)) >= model.Price(p)+2
		},
		gen.UInt64Range(1, 10_000_000),
	))

	properties.Property("逆运算结果不超过原始到手价加 2", prop.ForAll(
		func(p uint64) bool {
			total := c.AddFee(model.Price(p))
			return c.SubtractFee(total) <= model.Price(p)+2
		},
		gen.UInt64Range(1, 10_000_000),
	))

	properties.Property("逆运算结果小于支付价", prop.ForAll(
		func(total uint64) bool {
			return c.SubtractFee(model.Price(total)) < model.Price(total)
		},
		gen.UInt64Range(3, 10_000_000),
	))

	properties.TestingRun(t)
}
