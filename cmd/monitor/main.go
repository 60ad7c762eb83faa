// Package main 是挂单套利监控器的入口点。
// 监控器导入 CSFloat 挂单与 Steam 价格历史，按参考价分类挂单，
// 对有利可图的挂单发送通知，并在开启时尝试自动购买。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"skin-arbitrage-monitor/internal/config"
	"skin-arbitrage-monitor/internal/core/analyzer"
	"skin-arbitrage-monitor/internal/core/fee"
	"skin-arbitrage-monitor/internal/core/signal"
	"skin-arbitrage-monitor/internal/core/store"
	"skin-arbitrage-monitor/internal/dispatch"
	"skin-arbitrage-monitor/internal/exchange/csfloat"
	"skin-arbitrage-monitor/internal/feed"
	"skin-arbitrage-monitor/internal/notify"
	"skin-arbitrage-monitor/internal/output/jsonl"
	"skin-arbitrage-monitor/internal/persist"
	"skin-arbitrage-monitor/internal/purchase"
	"skin-arbitrage-monitor/internal/stats/duration"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.App.LogLevel).With(zap.String("app", cfg.App.Name))

	// 捕获 SIGINT/SIGTERM，触发优雅退出
	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()

	if err != nil {
		logger.Error("监控器退出", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("关闭完成")
	_ = logger.Sync()
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	var pool *pgxpool.Pool
	if cfg.NeedsPostgres() {
		var err error
		pool, err = connectPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	backend, err := openBackend(ctx, cfg, pool, logger)
	if err != nil {
		return err
	}
	listings, analyses := store.NewListingStore(), store.NewAnalysisStore()
	if backend != nil {
		defer backend.Close()
		listings, analyses = persist.LoadStores(ctx, backend, logger)
	}

	res, err := dispatch.NewResources(listings, analyses)
	if err != nil {
		return fmt.Errorf("初始化调度器失败: %w", err)
	}

	client, err := csfloat.NewClient(cfg.CSFloat, logger)
	if err != nil {
		return fmt.Errorf("创建 CSFloat 客户端失败: %w", err)
	}
	if cfg.CSFloat.CheckBalance {
		if balance, err := client.Balance(ctx); err != nil {
			logger.Warn("查询余额失败", zap.Error(err))
		} else {
			logger.Info("账户余额", zap.Stringer("usd", balance))
		}
	}

	notifier, err := notify.New(cfg.Notify, logger)
	if err != nil {
		return err
	}

	tracker := duration.NewTracker(cfg.Stats.WindowSize)
	opts := dispatch.Options{
		Notifier:      notifier,
		Stats:         tracker,
		NotifyTimeout: time.Duration(cfg.Notify.TimeoutMs) * time.Millisecond,
	}
	if cfg.Autobuy.Enabled {
		opts.Purchaser = purchase.NewExecutor(cfg.Autobuy, client, logger)
		logger.Warn("自动购买已开启", zap.Bool("dry_run", cfg.Autobuy.DryRun))
	}
	if cfg.Output.EventsEnabled {
		w, err := jsonl.NewClassificationWriter(cfg.Output.Dir, cfg.Output.BufferSize, logger)
		if err != nil {
			return fmt.Errorf("创建分类事件 writer 失败: %w", err)
		}
		defer w.Close()
		opts.Audit = w
	}

	engine := signal.NewEngine(cfg.Decision, fee.NewCalculator(cfg.Fee), cfg.Autobuy.Enabled)
	d := dispatch.New(res, engine, analyzer.New(cfg.Analyzer), cfg.Queues, cfg.Stats, opts, logger)

	var source feed.Source
	switch cfg.Feed.Source {
	case config.FeedSourcePostgres:
		source = feed.NewPostgresSource(pool, cfg.Feed, d, logger)
	case config.FeedSourceWebSocket:
		source = feed.NewWSSource(cfg.Feed, d, logger)
	}
	refresher := feed.NewRefresher(res, client, d, time.Duration(cfg.CSFloat.RefreshIntervalMs)*time.Millisecond, logger)

	// 分发循环在所有生产者退出后才停止
	dispatchCtx, stopDispatch := context.WithCancel(context.WithoutCancel(ctx))
	var loops conc.WaitGroup
	loops.Go(func() { d.RunPrimary(dispatchCtx) })
	loops.Go(func() { d.RunSecondary(dispatchCtx) })

	var saver *persist.Saver
	if backend != nil {
		saver = persist.NewSaver(res, backend, tracker, logger)
	}

	var tasks conc.WaitGroup
	tasks.Go(func() {
		if err := source.Run(ctx); err != nil {
			logger.Error("数据源退出", zap.Error(err))
		}
	})
	tasks.Go(func() {
		if err := refresher.Run(ctx); err != nil {
			logger.Error("刷新任务退出", zap.Error(err))
		}
	})
	if saver != nil {
		tasks.Go(func() {
			if err := saver.Run(ctx, cfg.Persist.Schedule); err != nil {
				logger.Error("快照保存任务退出", zap.Error(err))
			}
		})
	}

	logger.Info("监控器已启动",
		zap.String("feed", cfg.Feed.Source),
		zap.String("persist", cfg.Persist.Backend),
		zap.Int("listings", listings.Len()),
		zap.Int("analyses", analyses.Len()))

	<-ctx.Done()
	logger.Info("收到退出信号，开始优雅关闭")
	tasks.Wait()

	drainCtx, cancelDrain := context.WithTimeout(dispatchCtx, 10*time.Second)
	if !d.Drain(drainCtx) {
		primary, secondary := d.QueueLens()
		logger.Warn("分发队列排空超时", zap.Int("primary", primary), zap.Int("secondary", secondary))
	}
	cancelDrain()
	stopDispatch()
	loops.Wait()

	if saver != nil {
		if err := saver.SaveNow(context.Background()); err != nil {
			logger.Error("最终快照保存失败", zap.Error(err))
		}
	}
	return nil
}

// connectPostgres 按指数退避连接数据库
func connectPostgres(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("解析数据库连接串失败: %w", err)
	}
	pc.MaxConns = cfg.MaxConns

	pool, err := backoff.Retry(ctx, func() (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, pc)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return pool, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(cfg.ConnectRetries),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("连接数据库失败，稍后重试", zap.Error(err), zap.Duration("next", next))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}
	logger.Info("数据库已连接", zap.Int32("max_conns", cfg.MaxConns))
	return pool, nil
}

// openBackend 打开快照后端，backend=none 时返回 nil
func openBackend(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger *zap.Logger) (persist.Backend, error) {
	switch cfg.Persist.Backend {
	case config.PersistPostgres:
		b, err := persist.NewPostgresBackend(ctx, pool, cfg.Persist.Table)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.PersistBadger:
		b, err := persist.OpenBadger(cfg.Persist.BadgerDir, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		logger.Warn("未配置快照持久化，状态不会保存")
		return nil, nil
	}
}

func newLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
