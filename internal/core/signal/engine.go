// Package signal 实现挂单的预过滤与分类决策。
// 纯逻辑，不做 I/O：输入挂单与价格分析结果，输出分类事件及通知/自动购买判定。
package signal

import (
	"time"

	"github.com/google/uuid"

	"skin-arbitrage-monitor/internal/config"
	"skin-arbitrage-monitor/internal/core/fee"
	"skin-arbitrage-monitor/internal/core/model"
)

// ListingLookup 按 ID 查询挂单
type ListingLookup interface {
	Get(id string) (model.Listing, bool)
}

// AnalysisLookup 按市场名称查询价格分析结果
type AnalysisLookup interface {
	Get(marketName string) (*model.AnalysisResult, bool)
}

// Engine 分类决策引擎
type Engine struct {
	// cfg 决策阈值
	cfg config.DecisionConfig
	// fees 手续费计算器
	fees *fee.Calculator
	// autobuyEnabled 自动购买全局开关
	autobuyEnabled bool
	// goodPhase 指定相位物品 -> 价格上限
	goodPhase map[string]model.Price

	// now 时间来源（测试可替换）
	now func() time.Time
}

// NewEngine 创建分类决策引擎
// 参数 cfg: 决策阈值
// 参数 fees: 参考市场手续费计算器
// 参数 autobuyEnabled: 自动购买全局开关
func NewEngine(cfg config.DecisionConfig, fees *fee.Calculator, autobuyEnabled bool) *Engine {
	goodPhase := make(map[string]model.Price, len(cfg.GoodPhase.Items))
	for _, it := range cfg.GoodPhase.Items {
		goodPhase[it.Name] = model.Price(it.MaxPrice)
	}
	return &Engine{
		cfg:            cfg,
		fees:           fees,
		autobuyEnabled: autobuyEnabled,
		goodPhase:      goodPhase,
		now:            time.Now,
	}
}

// Prefilter 预过滤
// 返回 false 表示跳过该挂单：纪念品，或价格不在 [min, max] 区间内。
func (e *Engine) Prefilter(l *model.Listing) bool {
	if l.Item.IsSouvenir {
		return false
	}
	if l.Price < model.Price(e.cfg.MinPrice) || l.Price > model.Price(e.cfg.MaxPrice) {
		return false
	}
	return true
}

// IsGoodPhase 判断是否为指定相位的低价挂单
// 相位必须精确匹配，物品名称必须在配置列表中，价格不超过该物品上限。
func (e *Engine) IsGoodPhase(l *model.Listing) bool {
	if l.Item.Phase == nil || *l.Item.Phase != e.cfg.GoodPhase.Phase {
		return false
	}
	ceiling, ok := e.goodPhase[l.Item.MarketHashName]
	if !ok {
		return false
	}
	return l.Price <= ceiling
}

// Evaluate 对本轮新增或变化的挂单做分类
// 先按顺序做利润判断，再按顺序做指定相位判断；两者互不影响，同一挂单可同时产生两个事件。
// 参数 ids: 挂单 ID（New/Updated）
// 参数 listings: 挂单查询
// 参数 analyses: 价格分析查询
func (e *Engine) Evaluate(ids []string, listings ListingLookup, analyses AnalysisLookup) []model.Classification {
	now := e.now()
	var out []model.Classification

	for _, id := range ids {
		l, ok := listings.Get(id)
		if !ok {
			continue
		}
		if c, ok := e.profitable(&l, analyses, now); ok {
			out = append(out, c)
		}
	}

	for _, id := range ids {
		l, ok := listings.Get(id)
		if !ok || !e.IsGoodPhase(&l) {
			continue
		}
		out = append(out, model.Classification{
			ID:           uuid.NewString(),
			Kind:         model.KindGoodPhase,
			MarketName:   l.Item.MarketHashName,
			ListingID:    l.ID,
			ListingPrice: l.Price,
			Float:        l.Item.FloatValue,
			DetectedAt:   now,
		})
	}

	return out
}

// profitable 利润判断
// 扣除手续费后的参考价高于挂单价时产生事件。
func (e *Engine) profitable(l *model.Listing, analyses AnalysisLookup, now time.Time) (model.Classification, bool) {
	analysis, ok := analyses.Get(l.Item.MarketHashName)
	if !ok {
		return model.Classification{}, false
	}
	reference, ok := analysis.PriceAtPercentile(e.cfg.DesiredPercentile)
	// 低于 3 美分无法反推手续费
	if !ok || reference < 3 || l.Price == 0 {
		return model.Classification{}, false
	}

	noFee := e.fees.SubtractFee(reference)
	if l.Price >= noFee {
		return model.Classification{}, false
	}

	return model.Classification{
		ID:             uuid.NewString(),
		Kind:           model.KindProfitable,
		MarketName:     l.Item.MarketHashName,
		ListingID:      l.ID,
		ListingPrice:   l.Price,
		ReferencePrice: reference,
		ReferenceNoFee: noFee,
		SoldPerWeek:    analysis.WeeklySold(),
		IsStable:       analysis.Stable(),
		ProfitPct:      ProfitPct(noFee, l.Price),
		Float:          l.Item.FloatValue,
		DetectedAt:     now,
	}, true
}

// ProfitPct 利润百分比 (reference/observed - 1) × 100
func ProfitPct(reference, observed model.Price) float64 {
	return (float64(reference)/float64(observed) - 1) * 100
}

// NeedsNotification 是否需要发送通知
// 指定相位事件总是通知；利润事件需同时满足稳定、周成交量与利润阈值。
func (e *Engine) NeedsNotification(c *model.Classification) bool {
	if c.Kind == model.KindGoodPhase {
		return true
	}
	return c.IsStable &&
		c.SoldPerWeek >= e.cfg.MinSoldPerWeek &&
		c.ProfitPct > e.cfg.NotifyMinProfitPct
}

// NeedsAutobuy 是否需要自动购买
// 仅利润事件，受全局开关控制。
func (e *Engine) NeedsAutobuy(c *model.Classification) bool {
	return e.autobuyEnabled &&
		c.Kind == model.KindProfitable &&
		c.ProfitPct > e.cfg.AutobuyMinProfitPct
}
