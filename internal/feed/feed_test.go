// Package feed 数据导入测试
package feed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"skin-arbitrage-monitor/internal/config"
	"skin-arbitrage-monitor/internal/core/model"
	"skin-arbitrage-monitor/internal/core/scheduler"
)

type fakeSink struct {
	mu     sync.Mutex
	events []model.PrimaryEvent
	full   bool
}

func (f *fakeSink) Submit(ctx context.Context, ev model.PrimaryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeSink) TrySubmit(ev model.PrimaryEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.events = append(f.events, ev)
	return true
}

func (f *fakeSink) all() []model.PrimaryEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.PrimaryEvent(nil), f.events...)
}

// fakeRows 内存中的查询结果
type fakeRows struct {
	rows []responseRow
	idx  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.idx-1]
	*(dest[0].(*time.Time)) = row.At
	*(dest[1].(*string)) = row.Response
	return nil
}

// fakeDB 按表名返回游标之后的行
type fakeDB struct {
	tables map[string][]responseRow
	fail   bool
	calls  []time.Time
}

func (db *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	if db.fail {
		return nil, errors.New("connection refused")
	}
	cursor := args[0].(time.Time)
	limit := args[1].(int)
	db.calls = append(db.calls, cursor)

	for table, rows := range db.tables {
		if !strings.Contains(sql, `"`+table+`"`) {
			continue
		}
		var out []responseRow
		for _, r := range rows {
			if r.At.After(cursor) && len(out) < limit {
				out = append(out, r)
			}
		}
		return &fakeRows{rows: out}, nil
	}
	return &fakeRows{}, nil
}

func testFeedConfig() config.FeedConfig {
	cfg := config.Default().Feed
	cfg.BatchSize = 2
	return cfg
}

func TestPostgresSource_Poll(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	db := &fakeDB{tables: map[string][]responseRow{
		"csfloat_responses": {
			{At: start.Add(-time.Minute), Response: "[old]"},
			{At: start.Add(1 * time.Second), Response: "[1]"},
			{At: start.Add(2 * time.Second), Response: "[2]"},
			{At: start.Add(3 * time.Second), Response: "[3]"},
		},
		"steam_responses": {
			{At: start.Add(-25 * time.Hour), Response: "too old"},
			{At: start.Add(-time.Hour), Response: "page"},
		},
	}}
	sink := &fakeSink{}

	src := NewPostgresSource(db, testFeedConfig(), sink, zap.NewNop())
	src.now = func() time.Time { return start }
	src.resetCursors()

	if err := src.Poll(context.Background()); err != nil {
		t.Fatalf("Poll 失败: %v", err)
	}
	events := sink.all()
	if len(events) != 3 {
		t.Fatalf("第一轮应导入 2 条挂单与 1 个页面，实际 %d", len(events))
	}
	if string(events[0].(model.ListingsResponse).Body) != "[1]" || string(events[1].(model.ListingsResponse).Body) != "[2]" {
		t.Fatalf("挂单顺序不正确: %v", events)
	}
	page := events[2].(model.PriceHistoryResponse)
	if page.Page != "page" || !page.ReceivedAt.Equal(start) {
		t.Fatalf("价格历史事件不正确: %+v", page)
	}

	if err := src.Poll(context.Background()); err != nil {
		t.Fatalf("Poll 失败: %v", err)
	}
	events = sink.all()
	if len(events) != 4 || string(events[3].(model.ListingsResponse).Body) != "[3]" {
		t.Fatalf("第二轮应从游标处继续: %v", events)
	}
	if !src.listingsCursor.Equal(start.Add(3 * time.Second)) {
		t.Fatalf("游标未推进: %v", src.listingsCursor)
	}
}

func TestPostgresSource_QueryErrorIsNotFatal(t *testing.T) {
	db := &fakeDB{fail: true}
	sink := &fakeSink{}
	src := NewPostgresSource(db, testFeedConfig(), sink, zap.NewNop())

	if err := src.Poll(context.Background()); err != nil {
		t.Fatalf("查询失败不应返回错误: %v", err)
	}
	if len(sink.all()) != 0 {
		t.Fatalf("查询失败不应导入数据")
	}
}

func TestPostgresSource_CancelledSubmit(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	db := &fakeDB{tables: map[string][]responseRow{
		"csfloat_responses": {{At: start.Add(time.Second), Response: "[1]"}},
	}}
	src := NewPostgresSource(db, testFeedConfig(), &fakeSink{}, zap.NewNop())
	src.now = func() time.Time { return start }
	src.resetCursors()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := src.Poll(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("写入被取消时应返回 ctx 错误，实际 %v", err)
	}
}

func TestSelectNewer_QuotesTable(t *testing.T) {
	got := selectNewer("csfloat_responses")
	want := `SELECT timestamp, response FROM "csfloat_responses" WHERE timestamp > $1 ORDER BY timestamp LIMIT $2`
	if got != want {
		t.Fatalf("selectNewer = %q", got)
	}
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeFetcher) GetListing(_ context.Context, id string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if f.err != nil {
		return nil, f.err
	}
	return []byte(`{"id":"` + id + `"}`), nil
}

type lockedScheduler struct {
	mu sync.Mutex
	s  *scheduler.Scheduler
}

func (l *lockedScheduler) WithScheduler(fn func(*scheduler.Scheduler)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.s)
}

func TestRefresher_Tick(t *testing.T) {
	sched := &lockedScheduler{s: scheduler.New()}
	fetcher := &fakeFetcher{}
	sink := &fakeSink{}
	r := NewRefresher(sched, fetcher, sink, time.Second, zap.NewNop())

	if r.Tick(context.Background()) {
		t.Fatalf("调度器为空时不应刷新")
	}

	sched.s.Upsert("a")
	sched.s.Upsert("b")
	for i := 0; i < 3; i++ {
		if !r.Tick(context.Background()) {
			t.Fatalf("第 %d 次刷新应成功", i)
		}
	}
	if strings.Join(fetcher.calls, ",") != "a,b,a" {
		t.Fatalf("刷新顺序 = %v", fetcher.calls)
	}
	ev := sink.all()[0].(model.OneListingResponse)
	if string(ev.Body) != `{"id":"a"}` || ev.ReceivedAt.IsZero() {
		t.Fatalf("刷新事件不正确: %+v", ev)
	}

	sink.full = true
	if r.Tick(context.Background()) {
		t.Fatalf("队列已满时应丢弃")
	}

	fetcher.err = errors.New("timeout")
	sink.full = false
	before := len(sink.all())
	if r.Tick(context.Background()) || len(sink.all()) != before {
		t.Fatalf("获取失败时不应写入队列")
	}
}

func TestRefresher_RunStops(t *testing.T) {
	r := NewRefresher(&lockedScheduler{s: scheduler.New()}, &fakeFetcher{}, &fakeSink{}, 10*time.Millisecond, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run 应在 ctx 结束时正常返回: %v", err)
	}
}
