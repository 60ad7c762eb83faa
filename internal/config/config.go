// Package config 负责加载和验证 YAML 配置文件。
// 提供监控器所需的所有配置项，包括数据源、价格分析参数、手续费、决策阈值、通知与持久化设置。
// 敏感信息（数据库地址、API Key、Bot Token）从环境变量或 .env 文件读取。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// 数据源类型
const (
	FeedSourcePostgres  = "postgres"
	FeedSourceWebSocket = "websocket"
)

// 快照存储后端
const (
	PersistPostgres = "postgres"
	PersistBadger   = "badger"
	PersistNone     = "none"
)

// 环境变量名
const (
	EnvDatabaseURL    = "DATABASE_URL"
	EnvCSFloatAPIKey  = "CSFLOAT_API_KEY"
	EnvCSFloatProxy   = "CSFLOAT_PROXY"
	EnvTelegramToken  = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChatID = "TELEGRAM_CHAT_ID"
)

// Config 应用配置根结构
type Config struct {
	// App 应用基础配置
	App AppConfig `yaml:"app"`
	// Postgres 数据库连接配置
	Postgres PostgresConfig `yaml:"postgres"`
	// Feed 原始数据导入配置
	Feed FeedConfig `yaml:"feed"`
	// CSFloat CSFloat API 配置
	CSFloat CSFloatConfig `yaml:"csfloat"`
	// Queues 事件队列配置
	Queues QueuesConfig `yaml:"queues"`
	// Analyzer 价格序列分析参数
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	// Fee 参考市场手续费配置
	Fee FeeConfig `yaml:"fee"`
	// Decision 分类决策阈值
	Decision DecisionConfig `yaml:"decision"`
	// Autobuy 自动购买配置
	Autobuy AutobuyConfig `yaml:"autobuy"`
	// Notify 通知配置
	Notify NotifyConfig `yaml:"notify"`
	// Persist 快照持久化配置
	Persist PersistConfig `yaml:"persist"`
	// Output 输出配置
	Output OutputConfig `yaml:"output"`
	// Stats 处理耗时统计配置
	Stats StatsConfig `yaml:"stats"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	// Name 应用名称，用于日志标识
	Name string `yaml:"name"`
	// LogLevel 日志级别: debug, info, warn, error
	LogLevel string `yaml:"log_level"`
	// EnvFile .env 文件路径，不存在时忽略
	EnvFile string `yaml:"env_file"`
}

// PostgresConfig 数据库连接配置
type PostgresConfig struct {
	// DSN 连接串，通常由 DATABASE_URL 提供
	DSN string `yaml:"dsn"`
	// MaxConns 连接池最大连接数
	MaxConns int32 `yaml:"max_conns"`
	// ConnectRetries 启动时连接重试次数
	ConnectRetries uint `yaml:"connect_retries"`
}

// FeedConfig 原始数据导入配置
type FeedConfig struct {
	// Source 数据源: postgres 或 websocket
	Source string `yaml:"source"`
	// PollIntervalMs 轮询间隔（毫秒）
	PollIntervalMs int `yaml:"poll_interval_ms"`
	// BatchSize 每次轮询每张表读取的最大行数
	BatchSize int `yaml:"batch_size"`
	// ListingsTable 挂单响应表
	ListingsTable string `yaml:"listings_table"`
	// HistoryTable 价格历史页面表
	HistoryTable string `yaml:"history_table"`
	// HistoryLookbackHours 启动时价格历史的回看窗口（小时）
	HistoryLookbackHours int `yaml:"history_lookback_hours"`
	// WSURL WebSocket 数据源地址（source=websocket 时使用）
	WSURL string `yaml:"ws_url"`
	// PingIntervalMs WebSocket 心跳间隔（毫秒）
	PingIntervalMs int `yaml:"ping_interval_ms"`
	// ReadTimeoutMs WebSocket 读取超时（毫秒）
	ReadTimeoutMs int `yaml:"read_timeout_ms"`
}

// CSFloatConfig CSFloat API 配置
type CSFloatConfig struct {
	// BaseURL API 根地址
	BaseURL string `yaml:"base_url"`
	// APIKey 授权 Key（CSFLOAT_API_KEY）
	APIKey string `yaml:"api_key"`
	// Proxy 可选 HTTP 代理（CSFLOAT_PROXY）
	Proxy string `yaml:"proxy"`
	// TimeoutMs 单次请求超时（毫秒）
	TimeoutMs int `yaml:"timeout_ms"`
	// RefreshIntervalMs 单条挂单刷新间隔（毫秒）
	RefreshIntervalMs int `yaml:"refresh_interval_ms"`
	// MinRequestIntervalMs 任意两次请求之间的最小间隔（毫秒）
	MinRequestIntervalMs int `yaml:"min_request_interval_ms"`
	// CheckBalance 启动时是否查询并记录余额
	CheckBalance bool `yaml:"check_balance"`
}

// QueuesConfig 事件队列配置
type QueuesConfig struct {
	// PrimarySize 主队列容量
	PrimarySize int `yaml:"primary_size"`
	// SecondarySize 次队列容量
	SecondarySize int `yaml:"secondary_size"`
}

// AnalyzerConfig 价格序列分析参数
type AnalyzerConfig struct {
	// WindowDays 分析窗口（天）
	WindowDays int `yaml:"window_days"`
	// MinPoints 最少数据点数，不足则视为无结论
	MinPoints int `yaml:"min_points"`
	// BandLow 中位数接受带下限系数
	BandLow float64 `yaml:"band_low"`
	// BandHigh 中位数接受带上限系数
	BandHigh float64 `yaml:"band_high"`
	// SMAWindow 移动平均窗口
	SMAWindow int `yaml:"sma_window"`
	// MaxRSD 稳定性阈值，相对标准差低于此值视为稳定
	MaxRSD float64 `yaml:"max_rsd"`
	// Percentiles 需要计算的分位数（0-1）
	Percentiles []float64 `yaml:"percentiles"`
}

// FeeConfig 参考市场手续费配置
type FeeConfig struct {
	// WalletRate 平台手续费率
	WalletRate float64 `yaml:"wallet_rate"`
	// PublisherRate 发行商手续费率
	PublisherRate float64 `yaml:"publisher_rate"`
}

// PriceCeiling 指定物品的价格上限
type PriceCeiling struct {
	// Name 物品市场名称（精确匹配）
	Name string `yaml:"name"`
	// MaxPrice 价格上限（美分，含）
	MaxPrice uint64 `yaml:"max_price"`
}

// GoodPhaseConfig 指定相位挂单规则
type GoodPhaseConfig struct {
	// Phase 相位名称
	Phase string `yaml:"phase"`
	// Items 物品及其价格上限
	Items []PriceCeiling `yaml:"items"`
}

// DecisionConfig 分类决策阈值
type DecisionConfig struct {
	// MinPrice 预过滤最低价（美分）
	MinPrice uint64 `yaml:"min_price"`
	// MaxPrice 预过滤最高价（美分）
	MaxPrice uint64 `yaml:"max_price"`
	// DesiredPercentile 参考价使用的分位数（整数百分比）
	DesiredPercentile uint8 `yaml:"desired_percentile"`
	// NotifyMinProfitPct 通知所需最低利润百分比（严格大于）
	NotifyMinProfitPct float64 `yaml:"notify_min_profit_pct"`
	// MinSoldPerWeek 通知所需最低周成交量
	MinSoldPerWeek int64 `yaml:"min_sold_per_week"`
	// AutobuyMinProfitPct 自动购买所需最低利润百分比（严格大于）
	AutobuyMinProfitPct float64 `yaml:"autobuy_min_profit_pct"`
	// GoodPhase 指定相位规则
	GoodPhase GoodPhaseConfig `yaml:"good_phase"`
}

// AutobuyConfig 自动购买配置
type AutobuyConfig struct {
	// Enabled 全局开关，默认关闭
	Enabled bool `yaml:"enabled"`
	// DryRun 只记录不下单
	DryRun bool `yaml:"dry_run"`
	// CooldownMs 两次购买尝试之间的冷却时间（毫秒）
	CooldownMs int `yaml:"cooldown_ms"`
}

// NotifyConfig 通知配置
type NotifyConfig struct {
	// TelegramToken Bot Token（TELEGRAM_BOT_TOKEN），为空时只写日志
	TelegramToken string `yaml:"telegram_token"`
	// TelegramChatID 接收通知的聊天 ID（TELEGRAM_CHAT_ID）
	TelegramChatID int64 `yaml:"telegram_chat_id"`
	// TimeoutMs 单条消息发送超时（毫秒）
	TimeoutMs int `yaml:"timeout_ms"`
}

// PersistConfig 快照持久化配置
type PersistConfig struct {
	// Backend 存储后端: postgres, badger 或 none
	Backend string `yaml:"backend"`
	// Schedule cron 表达式，默认 "@every 60s"
	Schedule string `yaml:"schedule"`
	// Table postgres 快照表名
	Table string `yaml:"table"`
	// BadgerDir badger 数据目录
	BadgerDir string `yaml:"badger_dir"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	// Dir 输出目录
	Dir string `yaml:"dir"`
	// EventsEnabled 是否输出分类事件文件
	EventsEnabled bool `yaml:"events_enabled"`
	// BufferSize 异步写入缓冲区大小
	BufferSize int `yaml:"buffer_size"`
}

// StatsConfig 处理耗时统计配置
type StatsConfig struct {
	// WindowSize 每类事件的滚动窗口大小
	WindowSize int `yaml:"window_size"`
	// LockWaitWarnMs 获取三把锁等待超过此值时告警（毫秒）
	LockWaitWarnMs int `yaml:"lock_wait_warn_ms"`
	// PickupWarnMs 响应事件从入队到处理超过此值时告警（毫秒）
	PickupWarnMs int `yaml:"pickup_warn_ms"`
}

// Load 从文件加载配置并验证
// 参数 path: 配置文件路径
// 返回: 解析后的配置对象，若失败则返回错误
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.setDefaults()

	// .env 不覆盖已存在的环境变量
	if err := godotenv.Load(cfg.App.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("读取 env 文件失败: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &cfg, nil
}

// Default 返回全部取默认值的配置（未经验证，不读取环境变量）
func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

// applyEnv 用环境变量覆盖敏感配置
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDatabaseURL); ok && v != "" {
		c.Postgres.DSN = v
	}
	if v, ok := lookup(EnvCSFloatAPIKey); ok && v != "" {
		c.CSFloat.APIKey = v
	}
	if v, ok := lookup(EnvCSFloatProxy); ok && v != "" {
		c.CSFloat.Proxy = v
	}
	if v, ok := lookup(EnvTelegramToken); ok && v != "" {
		c.Notify.TelegramToken = v
	}
	if v, ok := lookup(EnvTelegramChatID); ok && v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s 不是合法的整数: %w", EnvTelegramChatID, err)
		}
		c.Notify.TelegramChatID = id
	}
	return nil
}

// setDefaults 设置配置默认值
func (c *Config) setDefaults() {
	if c.App.Name == "" {
		c.App.Name = "skin-arbitrage-monitor"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.EnvFile == "" {
		c.App.EnvFile = ".env"
	}

	if c.Postgres.MaxConns == 0 {
		c.Postgres.MaxConns = 5
	}
	if c.Postgres.ConnectRetries == 0 {
		c.Postgres.ConnectRetries = 5
	}

	// 导入默认值
	if c.Feed.Source == "" {
		c.Feed.Source = FeedSourcePostgres
	}
	if c.Feed.PollIntervalMs == 0 {
		c.Feed.PollIntervalMs = 1000 // 1 秒
	}
	if c.Feed.BatchSize == 0 {
		c.Feed.BatchSize = 8
	}
	if c.Feed.ListingsTable == "" {
		c.Feed.ListingsTable = "csfloat_responses"
	}
	if c.Feed.HistoryTable == "" {
		c.Feed.HistoryTable = "steam_responses"
	}
	if c.Feed.HistoryLookbackHours == 0 {
		c.Feed.HistoryLookbackHours = 24
	}
	if c.Feed.PingIntervalMs == 0 {
		c.Feed.PingIntervalMs = 20000 // 20 秒
	}
	if c.Feed.ReadTimeoutMs == 0 {
		c.Feed.ReadTimeoutMs = 60000 // 60 秒
	}

	if c.CSFloat.BaseURL == "" {
		c.CSFloat.BaseURL = "https://csfloat.com"
	}
	if c.CSFloat.TimeoutMs == 0 {
		c.CSFloat.TimeoutMs = 10000 // 10 秒
	}
	if c.CSFloat.RefreshIntervalMs == 0 {
		// 每日 50000 次请求限额，约 1.7 秒一次，留出余量
		c.CSFloat.RefreshIntervalMs = 3000
	}
	if c.CSFloat.MinRequestIntervalMs == 0 {
		c.CSFloat.MinRequestIntervalMs = 1000
	}

	if c.Queues.PrimarySize == 0 {
		c.Queues.PrimarySize = 64000
	}
	if c.Queues.SecondarySize == 0 {
		c.Queues.SecondarySize = 64000
	}

	// 分析默认值
	if c.Analyzer.WindowDays == 0 {
		c.Analyzer.WindowDays = 7
	}
	if c.Analyzer.MinPoints == 0 {
		c.Analyzer.MinPoints = 5
	}
	if c.Analyzer.BandLow == 0 {
		c.Analyzer.BandLow = 0.9
	}
	if c.Analyzer.BandHigh == 0 {
		c.Analyzer.BandHigh = 1.1
	}
	if c.Analyzer.SMAWindow == 0 {
		c.Analyzer.SMAWindow = 3
	}
	if c.Analyzer.MaxRSD == 0 {
		c.Analyzer.MaxRSD = 0.03
	}
	if len(c.Analyzer.Percentiles) == 0 {
		c.Analyzer.Percentiles = []float64{0.60, 0.65, 0.70, 0.75, 0.80}
	}

	if c.Fee.WalletRate == 0 {
		c.Fee.WalletRate = 0.05
	}
	if c.Fee.PublisherRate == 0 {
		c.Fee.PublisherRate = 0.10
	}

	// 决策默认值
	if c.Decision.MinPrice == 0 {
		c.Decision.MinPrice = 50 // $0.50
	}
	if c.Decision.MaxPrice == 0 {
		c.Decision.MaxPrice = 7500 // $75
	}
	if c.Decision.DesiredPercentile == 0 {
		c.Decision.DesiredPercentile = 60
	}
	if c.Decision.NotifyMinProfitPct == 0 {
		c.Decision.NotifyMinProfitPct = 30
	}
	if c.Decision.MinSoldPerWeek == 0 {
		c.Decision.MinSoldPerWeek = 50
	}
	if c.Decision.AutobuyMinProfitPct == 0 {
		c.Decision.AutobuyMinProfitPct = 45
	}
	if c.Decision.GoodPhase.Phase == "" {
		c.Decision.GoodPhase.Phase = "Phase 4"
	}
	if len(c.Decision.GoodPhase.Items) == 0 {
		c.Decision.GoodPhase.Items = []PriceCeiling{
			{Name: "Glock-18 | Gamma Doppler (Factory New)", MaxPrice: 6000},
			{Name: "Glock-18 | Gamma Doppler (Minimal Wear)", MaxPrice: 4500},
			{Name: "Glock-18 | Gamma Doppler (Field-Tested)", MaxPrice: 3500},
		}
	}

	if c.Autobuy.CooldownMs == 0 {
		c.Autobuy.CooldownMs = 10000 // 10 秒
	}

	if c.Notify.TimeoutMs == 0 {
		c.Notify.TimeoutMs = 10000
	}

	if c.Persist.Backend == "" {
		c.Persist.Backend = PersistPostgres
	}
	if c.Persist.Schedule == "" {
		c.Persist.Schedule = "@every 60s"
	}
	if c.Persist.Table == "" {
		c.Persist.Table = "state_snapshots"
	}
	if c.Persist.BadgerDir == "" {
		c.Persist.BadgerDir = "./data/snapshots"
	}

	if c.Output.Dir == "" {
		c.Output.Dir = "./output"
	}
	if c.Output.BufferSize == 0 {
		c.Output.BufferSize = 1000
	}

	if c.Stats.WindowSize == 0 {
		c.Stats.WindowSize = 1000
	}
	if c.Stats.LockWaitWarnMs == 0 {
		c.Stats.LockWaitWarnMs = 5
	}
	if c.Stats.PickupWarnMs == 0 {
		c.Stats.PickupWarnMs = 100
	}
}

// Validate 验证配置合法性
// 检查所有必填项和数值范围
// 返回: 若配置无效则返回描述性错误
func (c *Config) Validate() error {
	var errs []string

	// 数据源
	switch c.Feed.Source {
	case FeedSourcePostgres:
		if c.Feed.ListingsTable == "" || c.Feed.HistoryTable == "" {
			errs = append(errs, "feed: 表名不能为空")
		}
	case FeedSourceWebSocket:
		if c.Feed.WSURL == "" {
			errs = append(errs, "feed.ws_url: WebSocket 地址不能为空")
		}
	default:
		errs = append(errs, fmt.Sprintf("feed.source: 无效的数据源 '%s'，有效值: postgres, websocket", c.Feed.Source))
	}
	if c.Feed.PollIntervalMs <= 0 {
		errs = append(errs, "feed.poll_interval_ms: 轮询间隔必须为正数")
	}
	if c.Feed.BatchSize <= 0 {
		errs = append(errs, "feed.batch_size: 批大小必须为正数")
	}

	// 持久化
	switch c.Persist.Backend {
	case PersistPostgres:
		if c.Persist.Table == "" {
			errs = append(errs, "persist.table: 快照表名不能为空")
		}
	case PersistBadger:
		if c.Persist.BadgerDir == "" {
			errs = append(errs, "persist.badger_dir: 数据目录不能为空")
		}
	case PersistNone:
	default:
		errs = append(errs, fmt.Sprintf("persist.backend: 无效的后端 '%s'，有效值: postgres, badger, none", c.Persist.Backend))
	}
	if c.Persist.Backend != PersistNone {
		if _, err := cron.ParseStandard(c.Persist.Schedule); err != nil {
			errs = append(errs, fmt.Sprintf("persist.schedule: 无效的 cron 表达式 '%s': %v", c.Persist.Schedule, err))
		}
	}

	if c.NeedsPostgres() && c.Postgres.DSN == "" {
		errs = append(errs, "postgres.dsn: 数据库地址不能为空（可通过 DATABASE_URL 设置）")
	}

	// CSFloat
	if c.CSFloat.BaseURL == "" {
		errs = append(errs, "csfloat.base_url: API 地址不能为空")
	}
	if c.CSFloat.TimeoutMs <= 0 {
		errs = append(errs, "csfloat.timeout_ms: 超时时间必须为正数")
	}
	if c.CSFloat.RefreshIntervalMs <= 0 {
		errs = append(errs, "csfloat.refresh_interval_ms: 刷新间隔必须为正数")
	}

	// 队列
	if c.Queues.PrimarySize <= 0 {
		errs = append(errs, "queues.primary_size: 队列容量必须为正数")
	}
	if c.Queues.SecondarySize <= 0 {
		errs = append(errs, "queues.secondary_size: 队列容量必须为正数")
	}

	// 分析参数
	if c.Analyzer.WindowDays <= 0 {
		errs = append(errs, "analyzer.window_days: 分析窗口必须为正数")
	}
	if c.Analyzer.MinPoints <= 0 {
		errs = append(errs, "analyzer.min_points: 最少数据点必须为正数")
	}
	if c.Analyzer.BandLow <= 0 || c.Analyzer.BandLow > 1 {
		errs = append(errs, "analyzer.band_low: 下限系数必须在 (0, 1] 之间")
	}
	if c.Analyzer.BandHigh < 1 {
		errs = append(errs, "analyzer.band_high: 上限系数不能小于 1")
	}
	if c.Analyzer.SMAWindow <= 0 {
		errs = append(errs, "analyzer.sma_window: 移动平均窗口必须为正数")
	}
	if c.Analyzer.MaxRSD <= 0 {
		errs = append(errs, "analyzer.max_rsd: 稳定性阈值必须为正数")
	}
	desiredFound := false
	for i, p := range c.Analyzer.Percentiles {
		if p <= 0 || p >= 1 {
			errs = append(errs, fmt.Sprintf("analyzer.percentiles[%d]: 分位数必须在 (0, 1) 之间，当前值: %f", i, p))
			continue
		}
		if PercentLevel(p) == c.Decision.DesiredPercentile {
			desiredFound = true
		}
	}
	if !desiredFound {
		errs = append(errs, fmt.Sprintf("decision.desired_percentile: %d 不在 analyzer.percentiles 中", c.Decision.DesiredPercentile))
	}

	// 手续费
	if err := validateFeeRate(c.Fee.WalletRate, "fee.wallet_rate"); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateFeeRate(c.Fee.PublisherRate, "fee.publisher_rate"); err != nil {
		errs = append(errs, err.Error())
	}

	// 决策阈值
	if c.Decision.MinPrice > c.Decision.MaxPrice {
		errs = append(errs, "decision.min_price: 最低价不能高于最高价")
	}
	if c.Decision.MinSoldPerWeek < 0 {
		errs = append(errs, "decision.min_sold_per_week: 周成交量阈值不能为负数")
	}
	for i, it := range c.Decision.GoodPhase.Items {
		if it.Name == "" {
			errs = append(errs, fmt.Sprintf("decision.good_phase.items[%d].name: 物品名称不能为空", i))
		}
	}

	// 自动购买
	if c.Autobuy.CooldownMs < 0 {
		errs = append(errs, "autobuy.cooldown_ms: 冷却时间不能为负数")
	}
	if c.Autobuy.Enabled && !c.Autobuy.DryRun && c.CSFloat.APIKey == "" {
		errs = append(errs, "csfloat.api_key: 启用自动购买时 API Key 不能为空（可通过 CSFLOAT_API_KEY 设置）")
	}

	// 通知
	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == 0 {
		errs = append(errs, "notify.telegram_chat_id: 配置 Bot Token 时聊天 ID 不能为空")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.App.LogLevel)] {
		errs = append(errs, fmt.Sprintf("app.log_level: 无效的日志级别 '%s'，有效值: debug, info, warn, error", c.App.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("配置验证错误:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// validateFeeRate 验证手续费率范围
// 参数 rate: 费率值
// 参数 field: 字段名称，用于错误消息
func validateFeeRate(rate float64, field string) error {
	if rate < 0 || rate > 1 {
		return fmt.Errorf("%s: 费率必须在 0-1 之间，当前值: %f", field, rate)
	}
	return nil
}

// NeedsPostgres 判断是否需要数据库连接
func (c *Config) NeedsPostgres() bool {
	return c.Feed.Source == FeedSourcePostgres || c.Persist.Backend == PersistPostgres
}

// PercentLevel 将分位数（0-1）转换为整数百分比
// 例如 0.65 -> 65
func PercentLevel(p float64) uint8 {
	return uint8(math.Round(p * 100))
}
