// Package signal 分类决策测试
package signal

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"skin-arbitrage-monitor/internal/config"
	"skin-arbitrage-monitor/internal/core/fee"
	"skin-arbitrage-monitor/internal/core/model"
	"skin-arbitrage-monitor/internal/core/store"
)

const redline = "AK-47 | Redline (Field-Tested)"

func defaultDecision() config.DecisionConfig {
	return config.DecisionConfig{
		MinPrice:            50,
		MaxPrice:            7500,
		DesiredPercentile:   60,
		NotifyMinProfitPct:  30,
		MinSoldPerWeek:      50,
		AutobuyMinProfitPct: 45,
		GoodPhase: config.GoodPhaseConfig{
			Phase: "Phase 4",
			Items: []config.PriceCeiling{
				{Name: "Glock-18 | Gamma Doppler (Factory New)", MaxPrice: 6000},
				{Name: "Glock-18 | Gamma Doppler (Minimal Wear)", MaxPrice: 4500},
				{Name: "Glock-18 | Gamma Doppler (Field-Tested)", MaxPrice: 3500},
			},
		},
	}
}

func newTestEngine(autobuy bool) *Engine {
	e := NewEngine(defaultDecision(), fee.Default(), autobuy)
	e.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

func listing(id, name string, price model.Price) model.Listing {
	return model.Listing{ID: id, Price: price, State: model.StateListed, Item: model.Item{MarketHashName: name}}
}

func analysis(reference model.Price, stable bool, sold int64) *model.AnalysisResult {
	rsd := 0.01
	return &model.AnalysisResult{
		RSD:         &rsd,
		IsStable:    &stable,
		SoldPerWeek: &sold,
		Percentiles: []model.PercentilePrice{{Level: 60, Price: reference}, {Level: 70, Price: reference + 50}},
	}
}

func setup(t *testing.T, ls []model.Listing, an map[string]*model.AnalysisResult) (*store.ListingStore, *store.AnalysisStore) {
	t.Helper()
	listings := store.NewListingStore()
	for _, l := range ls {
		listings.Apply(l, time.Now())
	}
	analyses := store.NewAnalysisStore()
	for k, v := range an {
		analyses.Update(k, v)
	}
	return listings, analyses
}

func TestPrefilter(t *testing.T) {
	e := newTestEngine(false)
	cases := []struct {
		name  string
		price model.Price
		souv  bool
		want  bool
	}{
		{"区间下限", 50, false, true},
		{"区间上限", 7500, false, true},
		{"低于下限", 49, false, false},
		{"高于上限", 7501, false, false},
		{"纪念品", 355, true, false},
	}
	for _, tc := range cases {
		l := listing("1", redline, tc.price)
		l.Item.IsSouvenir = tc.souv
		if got := e.Prefilter(&l); got != tc.want {
			t.Fatalf("%s: Prefilter = %v, 期望 %v", tc.name, got, tc.want)
		}
	}
}

func TestIsGoodPhase(t *testing.T) {
	e := newTestEngine(false)
	phase4, phase2 := "Phase 4", "Phase 2"
	cases := []struct {
		name  string
		item  string
		phase *string
		price model.Price
		want  bool
	}{
		{"崭新等于上限", "Glock-18 | Gamma Doppler (Factory New)", &phase4, 6000, true},
		{"崭新超过上限", "Glock-18 | Gamma Doppler (Factory New)", &phase4, 6001, false},
		{"略磨", "Glock-18 | Gamma Doppler (Minimal Wear)", &phase4, 4500, true},
		{"略磨超过上限", "Glock-18 | Gamma Doppler (Minimal Wear)", &phase4, 4501, false},
		{"久经", "Glock-18 | Gamma Doppler (Field-Tested)", &phase4, 3500, true},
		{"久经超过上限", "Glock-18 | Gamma Doppler (Field-Tested)", &phase4, 3501, false},
		{"相位不符", "Glock-18 | Gamma Doppler (Factory New)", &phase2, 100, false},
		{"缺少相位", "Glock-18 | Gamma Doppler (Factory New)", nil, 100, false},
		{"其他物品", "Karambit | Gamma Doppler (Factory New)", &phase4, 100, false},
	}
	for _, tc := range cases {
		l := listing("1", tc.item, tc.price)
		l.Item.Phase = tc.phase
		if got := e.IsGoodPhase(&l); got != tc.want {
			t.Fatalf("%s: IsGoodPhase = %v, 期望 %v", tc.name, got, tc.want)
		}
	}
}

func TestEvaluate_Profitable(t *testing.T) {
	e := newTestEngine(false)
	listings, analyses := setup(t,
		[]model.Listing{listing("L1", redline, 355)},
		map[string]*model.AnalysisResult{redline: analysis(550, true, 120)},
	)

	events := e.Evaluate([]string{"L1"}, listings, analyses)
	if len(events) != 1 {
		t.Fatalf("应产生 1 个事件，实际 %d", len(events))
	}
	c := events[0]
	if c.Kind != model.KindProfitable || c.ListingID != "L1" || c.MarketName != redline {
		t.Fatalf("事件内容不正确: %+v", c)
	}
	if c.ReferencePrice != 550 || c.ReferenceNoFee != 479 {
		t.Fatalf("参考价不正确: %d / %d", c.ReferencePrice, c.ReferenceNoFee)
	}
	want := (479.0/355.0 - 1) * 100
	if math.Abs(c.ProfitPct-want) > 1e-9 {
		t.Fatalf("利润百分比 = %v, 期望 %v", c.ProfitPct, want)
	}
	if !c.IsStable || c.SoldPerWeek != 120 || c.ID == "" {
		t.Fatalf("事件字段不完整: %+v", c)
	}
	if !e.NeedsNotification(&c) {
		t.Fatalf("利润 %.2f%% 且稳定应通知", c.ProfitPct)
	}
	if e.NeedsAutobuy(&c) {
		t.Fatalf("利润低于 45%% 不应自动购买")
	}
}

func TestEvaluate_NotProfitable(t *testing.T) {
	e := newTestEngine(false)
	listings, analyses := setup(t,
		[]model.Listing{listing("L1", redline, 355), listing("L2", "unknown", 100)},
		map[string]*model.AnalysisResult{redline: analysis(400, true, 120)},
	)
	if events := e.Evaluate([]string{"L1", "L2", "missing"}, listings, analyses); len(events) != 0 {
		t.Fatalf("扣费后参考价低于挂单价不应产生事件: %+v", events)
	}
}

func TestEvaluate_MissingPercentile(t *testing.T) {
	e := newTestEngine(false)
	res := analysis(600, true, 100)
	res.Percentiles = []model.PercentilePrice{{Level: 70, Price: 600}}
	listings, analyses := setup(t,
		[]model.Listing{listing("L1", redline, 355)},
		map[string]*model.AnalysisResult{redline: res, "empty": {}},
	)
	if events := e.Evaluate([]string{"L1"}, listings, analyses); len(events) != 0 {
		t.Fatalf("缺少目标分位数不应产生事件")
	}
}

func TestEvaluate_GoodPhaseIndependent(t *testing.T) {
	e := newTestEngine(true)
	phase := "Phase 4"
	fn := "Glock-18 | Gamma Doppler (Factory New)"
	glock := listing("G1", fn, 3000)
	glock.Item.Phase = &phase
	fv := 0.01
	glock.Item.FloatValue = &fv

	listings, analyses := setup(t,
		[]model.Listing{glock, listing("L1", redline, 355)},
		map[string]*model.AnalysisResult{fn: analysis(6000, false, 10), redline: analysis(600, true, 80)},
	)

	events := e.Evaluate([]string{"G1", "L1"}, listings, analyses)
	if len(events) != 3 {
		t.Fatalf("应产生 3 个事件，实际 %d: %+v", len(events), events)
	}
	// 先利润判断（按 ID 顺序），再相位判断
	if events[0].Kind != model.KindProfitable || events[0].ListingID != "G1" {
		t.Fatalf("第 1 个事件应为 G1 利润事件: %+v", events[0])
	}
	if events[1].Kind != model.KindProfitable || events[1].ListingID != "L1" {
		t.Fatalf("第 2 个事件应为 L1 利润事件: %+v", events[1])
	}
	gp := events[2]
	if gp.Kind != model.KindGoodPhase || gp.ListingID != "G1" {
		t.Fatalf("第 3 个事件应为 G1 相位事件: %+v", gp)
	}
	if gp.ReferencePrice != 0 || gp.ReferenceNoFee != 0 || gp.ProfitPct != 0 || gp.IsStable || gp.SoldPerWeek != 0 {
		t.Fatalf("相位事件的参考价与利润字段应为零值: %+v", gp)
	}
	if gp.Float == nil || *gp.Float != 0.01 {
		t.Fatalf("相位事件应携带磨损值")
	}

	if !e.NeedsNotification(&gp) {
		t.Fatalf("相位事件总是通知")
	}
	if e.NeedsAutobuy(&gp) {
		t.Fatalf("相位事件不自动购买")
	}
	if !e.NeedsAutobuy(&events[1]) {
		t.Fatalf("利润 %.2f%% 应自动购买", events[1].ProfitPct)
	}
	if e.NeedsNotification(&events[0]) {
		t.Fatalf("不稳定的利润事件不应通知")
	}
}

func TestNeedsAutobuy_Disabled(t *testing.T) {
	e := newTestEngine(false)
	c := model.Classification{Kind: model.KindProfitable, ProfitPct: 90}
	if e.NeedsAutobuy(&c) {
		t.Fatalf("全局开关关闭时不应自动购买")
	}
}

func TestNeedsNotification_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	e := newTestEngine(true)

	properties.Property("利润事件通知条件 = 稳定 ∧ 周成交量 >= 50 ∧ 利润 > 30%", prop.ForAll(
		func(stable bool, sold int64, pct float64) bool {
			c := model.Classification{Kind: model.KindProfitable, IsStable: stable, SoldPerWeek: sold, ProfitPct: pct}
			want := stable && sold >= 50 && pct > 30
			return e.NeedsNotification(&c) == want
		},
		gen.Bool(),
		gen.Int64Range(0, 200),
		gen.Float64Range(0, 100),
	))

	properties.Property("自动购买条件 = 利润 > 45%", prop.ForAll(
		func(pct float64) bool {
			c := model.Classification{Kind: model.KindProfitable, ProfitPct: pct}
			return e.NeedsAutobuy(&c) == (pct > 45)
		},
		gen.Float64Range(0, 100),
	))

	properties.TestingRun(t)
}
