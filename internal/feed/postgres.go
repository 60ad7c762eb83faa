package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"skin-arbitrage-monitor/internal/config"
	"skin-arbitrage-monitor/internal/core/model"
)

// Querier 只读查询接口（*pgxpool.Pool 满足）
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// responseRow 一行原始响应
type responseRow struct {
	At       time.Time
	Response string
}

// PostgresSource 轮询 Postgres 中爬虫写入的原始响应
// 每张表各维护一个时间游标：挂单表从启动时刻开始，价格历史表回看 lookback。
type PostgresSource struct {
	db     Querier
	cfg    config.FeedConfig
	sink   Sink
	logger *zap.Logger

	listingsQuery string
	historyQuery  string

	listingsCursor time.Time
	historyCursor  time.Time

	now func() time.Time
}

// NewPostgresSource 创建 Postgres 数据源
// 参数 db: 查询接口
// 参数 cfg: 导入配置
// 参数 sink: 主队列
// 参数 logger: 日志记录器
func NewPostgresSource(db Querier, cfg config.FeedConfig, sink Sink, logger *zap.Logger) *PostgresSource {
	s := &PostgresSource{
		db:            db,
		cfg:           cfg,
		sink:          sink,
		logger:        logger.Named("feed.postgres"),
		listingsQuery: selectNewer(cfg.ListingsTable),
		historyQuery:  selectNewer(cfg.HistoryTable),
		now:           func() time.Time { return time.Now().UTC() },
	}
	s.resetCursors()
	return s
}

func (s *PostgresSource) resetCursors() {
	now := s.now()
	s.listingsCursor = now
	s.historyCursor = now.Add(-time.Duration(s.cfg.HistoryLookbackHours) * time.Hour)
}

// selectNewer 构造按时间游标增量读取的查询
func selectNewer(table string) string {
	return fmt.Sprintf(
		"SELECT timestamp, response FROM %s WHERE timestamp > $1 ORDER BY timestamp LIMIT $2",
		pgx.Identifier{table}.Sanitize(),
	)
}

// Run 按轮询间隔导入，直到 ctx 取消
func (s *PostgresSource) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(s.cfg.PollIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	s.logger.Info("Postgres 导入启动",
		zap.Time("listings_cursor", s.listingsCursor),
		zap.Time("history_cursor", s.historyCursor),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Poll(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
		}
	}
}

// Poll 执行一轮导入：先挂单，后价格历史
// 查询失败只记录日志，下一轮重试；只有写入主队列被取消时返回错误。
func (s *PostgresSource) Poll(ctx context.Context) error {
	rows, err := s.fetch(ctx, s.listingsQuery, &s.listingsCursor)
	if err != nil {
		s.logger.Warn("读取挂单响应失败", zap.String("table", s.cfg.ListingsTable), zap.Error(err))
	}
	for _, r := range rows {
		ev := model.ListingsResponse{Body: []byte(r.Response), ReceivedAt: time.Now()}
		if err := s.sink.Submit(ctx, ev); err != nil {
			return err
		}
	}

	rows, err = s.fetch(ctx, s.historyQuery, &s.historyCursor)
	if err != nil {
		s.logger.Warn("读取价格历史失败", zap.String("table", s.cfg.HistoryTable), zap.Error(err))
	}
	for _, r := range rows {
		ev := model.PriceHistoryResponse{Page: r.Response, ReceivedAt: s.now()}
		if err := s.sink.Submit(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// fetch 读取游标之后的一批响应并推进游标
func (s *PostgresSource) fetch(ctx context.Context, query string, cursor *time.Time) ([]responseRow, error) {
	rows, err := s.db.Query(ctx, query, *cursor, s.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (responseRow, error) {
		var r responseRow
		err := row.Scan(&r.At, &r.Response)
		return r, err
	})
	if err != nil {
		return nil, err
	}
	if len(out) > 0 {
		*cursor = out[len(out)-1].At
	}
	return out, nil
}
