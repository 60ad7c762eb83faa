// Package analyzer 实现参考市场价格历史的统计分析。
// 输入为价格历史页面（HTML），输出为稳定性、周成交量与分位数参考价。
package analyzer

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	json "github.com/goccy/go-json"

	"skin-arbitrage-monitor/internal/config"
	"skin-arbitrage-monitor/internal/core/model"
	"skin-arbitrage-monitor/internal/util/timeutil"
)

// titlePrefix 页面标题中市场名称之前的固定前缀
const titlePrefix = "Steam Community Market :: Listings for "

// historyRe 价格历史数组所在位置
var historyRe = regexp.MustCompile(`\s+var line1=([^;]+);`)

var (
	// ErrNoMarketName 页面中没有市场名称
	ErrNoMarketName = errors.New("页面缺少市场名称")
	// ErrNoHistory 页面中没有可解析的价格历史
	ErrNoHistory = errors.New("页面缺少价格历史")
)

// Point 价格历史数据点
type Point struct {
	// At 时间（UTC，小时精度）
	At time.Time
	// Price 成交均价（美元）
	Price float64
	// Amount 成交数量
	Amount int64
}

// Analyzer 价格序列分析器（无状态）
type Analyzer struct {
	cfg    config.AnalyzerConfig
	levels []uint8
}

// New 创建分析器
// 参数 cfg: 分析参数
func New(cfg config.AnalyzerConfig) *Analyzer {
	levels := make([]uint8, len(cfg.Percentiles))
	for i, p := range cfg.Percentiles {
		levels[i] = config.PercentLevel(p)
	}
	return &Analyzer{cfg: cfg, levels: levels}
}

// ExtractMarketHashName 从页面标题中提取市场名称
func ExtractMarketHashName(page string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("解析页面失败: %w", err)
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	name, ok := strings.CutPrefix(title, titlePrefix)
	if !ok || name == "" {
		return "", ErrNoMarketName
	}
	return name, nil
}

// ExtractHistory 提取 since 之后的价格历史（按时间升序）
// 从最新的数据点向前扫描，遇到早于 since 的点即停止。
// 无法解析的数据点被跳过，返回值 skipped 为跳过的数量。
func ExtractHistory(page string, since time.Time) (points []Point, skipped int, err error) {
	m := historyRe.FindStringSubmatch(page)
	if m == nil {
		return nil, 0, ErrNoHistory
	}

	var raw [][3]json.RawMessage
	if err := json.Unmarshal([]byte(m[1]), &raw); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrNoHistory, err)
	}

	points = make([]Point, 0, 7*24)
	for i := len(raw) - 1; i >= 0; i-- {
		p, err := decodePoint(raw[i])
		if err != nil {
			skipped++
			continue
		}
		if p.At.Before(since) {
			break
		}
		points = append(points, p)
	}

	// 恢复时间升序
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, skipped, nil
}

func decodePoint(raw [3]json.RawMessage) (Point, error) {
	var date, amount string
	var price float64
	if err := json.Unmarshal(raw[0], &date); err != nil {
		return Point{}, err
	}
	if err := json.Unmarshal(raw[1], &price); err != nil {
		return Point{}, err
	}
	if err := json.Unmarshal(raw[2], &amount); err != nil {
		return Point{}, err
	}
	at, err := timeutil.ParseHistoryDate(date)
	if err != nil {
		return Point{}, err
	}
	n, err := strconv.ParseInt(amount, 10, 64)
	if err != nil {
		return Point{}, fmt.Errorf("解析成交量失败 '%s': %w", amount, err)
	}
	return Point{At: at, Price: price, Amount: n}, nil
}

// Analyze 分析价格历史页面
// 参数 page: 原始页面
// 参数 now: 分析基准时间
// 返回: 分析结果；页面无法解析或窗口内数据点不足时返回 false。
// 数据点足够但移动平均为空时返回统计字段全部为空的结果。
func (a *Analyzer) Analyze(page string, now time.Time) (*model.AnalysisResult, bool) {
	history, _, err := ExtractHistory(page, a.WindowStart(now))
	if err != nil {
		return nil, false
	}
	return a.AnalyzePoints(history, now)
}

// WindowStart 分析窗口起点
func (a *Analyzer) WindowStart(now time.Time) time.Time {
	return now.Add(-time.Duration(a.cfg.WindowDays) * 24 * time.Hour)
}

// AnalyzePoints 对已提取的数据点做统计
func (a *Analyzer) AnalyzePoints(history []Point, now time.Time) (*model.AnalysisResult, bool) {
	since := a.WindowStart(now)

	kept := make([]Point, 0, len(history))
	for _, p := range history {
		if !p.At.Before(since) && !p.At.After(now) {
			kept = append(kept, p)
		}
	}
	if len(kept) < a.cfg.MinPoints {
		return nil, false
	}

	// 中位数使用按分取整后的价格
	rounded := make([]float64, len(kept))
	var sold int64
	for i, p := range kept {
		rounded[i] = roundCents(p.Price)
		sold += p.Amount
	}
	med := median(rounded)
	lower, upper := med*a.cfg.BandLow, med*a.cfg.BandHigh

	// 接受带过滤使用原始价格，保持时间顺序
	band := make([]float64, 0, len(kept))
	for _, p := range kept {
		if p.Price >= lower && p.Price <= upper {
			band = append(band, p.Price)
		}
	}

	sma := movingAverage(band, a.cfg.SMAWindow)
	if len(sma) == 0 {
		return &model.AnalysisResult{}, true
	}

	m := mean(sma)
	rsd := stdDev(sma, m) / m
	stable := rsd < a.cfg.MaxRSD

	sort.Float64s(band)
	percentiles := make([]model.PercentilePrice, 0, len(a.levels))
	for i, q := range a.cfg.Percentiles {
		v, ok := percentile(band, q)
		if !ok {
			continue
		}
		percentiles = append(percentiles, model.PercentilePrice{
			Level: a.levels[i],
			Price: model.PriceFromUSD(roundCents(v)),
		})
	}

	return &model.AnalysisResult{
		RSD:         &rsd,
		IsStable:    &stable,
		SoldPerWeek: &sold,
		Percentiles: percentiles,
	}, true
}

// roundCents 按分四舍五入（美元）
func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
