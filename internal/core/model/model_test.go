package model

import (
	"math"
	"strings"
	"testing"
)

func TestPriceFromUSD_Truncates(t *testing.T) {
	cases := []struct {
		usd  float64
		want Price
	}{
		{0.29, 28},
		{3.55, 355},
		{1, 100},
		{0, 0},
		{-1, 0},
		{math.NaN(), 0},
	}
	for _, tc := range cases {
		if got := PriceFromUSD(tc.usd); got != tc.want {
			t.Fatalf("PriceFromUSD(%v) = %d, 期望 %d", tc.usd, got, tc.want)
		}
	}
}

func TestPrice_String(t *testing.T) {
	cases := map[Price]string{
		0:    "0.00",
		5:    "0.05",
		355:  "3.55",
		7500: "75.00",
	}
	for p, want := range cases {
		if got := p.String(); got != want {
			t.Fatalf("Price(%d).String() = %q, 期望 %q", p, got, want)
		}
	}
	if Price(355).USD() != 3.55 {
		t.Fatalf("USD 转换错误")
	}
	if Price(100).MultiplyBy(1.5) != 150 || Price(100).DivideBy(3) != 33 {
		t.Fatalf("乘除应截断")
	}
}

func TestListingState(t *testing.T) {
	if !StateListed.Valid() || ListingState("unknown").Valid() {
		t.Fatalf("状态校验错误")
	}
	if StateListed.IsTerminal() {
		t.Fatalf("listed 不是终止状态")
	}
	for _, s := range []ListingState{StateDelisted, StateSold, StateRefunded} {
		if !s.IsTerminal() {
			t.Fatalf("%s 应为终止状态", s)
		}
	}
}

func TestHasImportantChanges(t *testing.T) {
	a := Listing{ID: "1", Price: 100, State: StateListed, Item: Item{MarketHashName: "a"}}
	b := a
	b.Item.MarketHashName = "b"
	if a.HasImportantChanges(&b) {
		t.Fatalf("仅物品描述变化不算重要变化")
	}
	b.Price = 101
	if !a.HasImportantChanges(&b) {
		t.Fatalf("价格变化应为重要变化")
	}
	b = a
	b.State = StateSold
	if !a.HasImportantChanges(&b) {
		t.Fatalf("状态变化应为重要变化")
	}
}

func TestAnalysisResult_Accessors(t *testing.T) {
	var nilResult *AnalysisResult
	if _, ok := nilResult.PriceAtPercentile(60); ok {
		t.Fatalf("nil 结果不应有分位数")
	}

	empty := &AnalysisResult{}
	if empty.Stable() || empty.WeeklySold() != 0 {
		t.Fatalf("缺失的稳定性视为 false，缺失的成交量视为 0")
	}

	stable := true
	sold := int64(42)
	r := &AnalysisResult{
		IsStable:    &stable,
		SoldPerWeek: &sold,
		Percentiles: []PercentilePrice{{Level: 60, Price: 500}, {Level: 70, Price: 550}},
	}
	if p, ok := r.PriceAtPercentile(70); !ok || p != 550 {
		t.Fatalf("PriceAtPercentile(70) = %d, %v", p, ok)
	}
	if _, ok := r.PriceAtPercentile(65); ok {
		t.Fatalf("不存在的分位数应返回 false")
	}
	if !r.Stable() || r.WeeklySold() != 42 {
		t.Fatalf("访问器返回值错误")
	}
}

func TestClassification_Text(t *testing.T) {
	c := Classification{
		Kind:           KindProfitable,
		MarketName:     "Glock-18 | Wasteland Rebel (Minimal Wear)",
		ListingID:      "679718648830624407",
		ListingPrice:   355,
		ReferencePrice: 550,
		ReferenceNoFee: 479,
		SoldPerWeek:    120,
		IsStable:       true,
		ProfitPct:      34.929577,
	}
	text := c.Text()
	for _, want := range []string{
		"Found item 34.93% Glock-18 | Wasteland Rebel (Minimal Wear) : $3.55",
		"steam minus fee $4.79",
		"steam $5.50",
		"stable: true",
		"sold per week: 120",
		"id: 679718648830624407",
		"float: -",
		"kind: profitable",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("通知文本缺少 %q:\n%s", want, text)
		}
	}

	f := 0.13217909634113312
	c.Float = &f
	if !strings.Contains(c.Text(), "float: 0.13217909634113312") {
		t.Fatalf("通知文本应包含磨损值:\n%s", c.Text())
	}
}

func TestDecision_String(t *testing.T) {
	want := map[Decision]string{
		DecisionNew:        "new",
		DecisionUpdated:    "updated",
		DecisionNotChanged: "not_changed",
		DecisionRemoved:    "removed",
		Decision(99):       "unknown",
	}
	for d, s := range want {
		if d.String() != s {
			t.Fatalf("Decision(%d).String() = %q, 期望 %q", d, d.String(), s)
		}
	}
}
