// cmd/optimizer searches the take-profit/stop-loss grid for every symbol on
// the watchlist, persists the runs to SQLite and publishes the selected
// parameters to Redis.
//
// Usage:
//
//	go run ./cmd/optimizer [-symbols=AAPL,MSFT] [-hold]
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"signalopt/config"
	"signalopt/internal/backtest"
	"signalopt/internal/engine"
	"signalopt/internal/logger"
	"signalopt/internal/metrics"
	"signalopt/internal/notification"
	redisstore "signalopt/internal/store/redis"
	sqlitestore "signalopt/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	symbolsFlag := flag.String("symbols", "", "Comma-separated symbols (default: SYMBOLS env, else every stored symbol)")
	hold := flag.Bool("hold", false, "Keep serving /metrics and /healthz after the run until SIGINT/SIGTERM")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[optimizer] config: %v", err)
	}
	slogger := logger.Init("optimizer", cfg.SlogLevel())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// ---- Metrics & health ----
	prom := metrics.NewMetrics(prometheus.DefaultRegisterer)
	health := metrics.NewHealthStatus()
	var metricsSrv *metrics.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = metrics.NewServer(cfg.MetricsAddr, health)
		metricsSrv.Start()
	}

	// ---- SQLite ----
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[optimizer] sqlite init failed: %v", err)
	}
	defer sqlWriter.Close()
	sqlReader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[optimizer] sqlite reader failed: %v", err)
	}
	defer sqlReader.Close()
	health.SetSQLiteOK(true)

	// ---- Redis (optional: runs are still persisted without it) ----
	var pub *redisstore.BufferedWriter
	redisWriter, err := redisstore.New(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		log.Printf("[optimizer] WARNING: redis init failed: %v (continuing without redis)", err)
		health.SetRedisConnected(false)
	} else {
		defer redisWriter.Close()
		health.SetRedisConnected(true)
		cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
		cb.OnStateChange = func(from, to redisstore.State) {
			prom.BreakerStateChanged(int(to))
			log.Printf("[optimizer] redis circuit %s -> %s", from, to)
		}
		pub = redisstore.NewBufferedWriter(redisWriter, cb, 1000)
		pub.OnBuffer = func() { prom.RedisBufferedWrites.Inc() }
	}
	if redisWriter != nil {
		health.StartLivenessChecker(ctx, redisWriter.Client(), sqlWriter.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, sqlWriter.DB(), 10*time.Second)
	}

	// ---- Engine ----
	opt, err := backtest.NewOptimizer(cfg.OptimizerConfig(), backtest.Hooks{CandidateDone: prom.CandidateDone})
	if err != nil {
		log.Fatalf("[optimizer] optimizer: %v", err)
	}
	opts := engine.Options{
		Prices:      sqlReader,
		Runs:        sqlWriter,
		Notifier:    notification.New(cfg.NotifyWebhookURL, cfg.TelegramBotToken, cfg.TelegramChatID),
		Metrics:     prom,
		Logger:      slogger,
		Calendar:    cfg.Calendar(),
		Optimizer:   opt,
		Grid:        cfg.Grid,
		WindowYears: cfg.WindowYears,
	}
	if pub != nil {
		opts.Publisher = pub
	}
	svc, err := engine.New(opts)
	if err != nil {
		log.Fatalf("[optimizer] engine: %v", err)
	}

	symbols := cfg.Symbols
	if *symbolsFlag != "" {
		symbols = config.ParseSymbols(*symbolsFlag)
	}
	if len(symbols) == 0 {
		if symbols, err = sqlReader.Symbols(ctx); err != nil {
			log.Fatalf("[optimizer] list symbols: %v", err)
		}
	}
	if len(symbols) == 0 {
		log.Fatal("[optimizer] no symbols: set SYMBOLS or ingest prices first")
	}
	slogger.Info("optimizing watchlist", "symbols", len(symbols), "candidates", cfg.Grid.Size())

	res, err := svc.OptimizeWatchlist(ctx, symbols)
	health.RecordRun(time.Now(), err == nil, len(res.Active))
	if pub != nil && pub.PendingCount() > 0 {
		slogger.Warn("redis writes still buffered", "pending", pub.PendingCount())
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		slogger.Error("watchlist errors", "err", err)
	}

	if *hold && metricsSrv != nil {
		<-ctx.Done()
	}
	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		metricsSrv.Stop(shutdownCtx)
	}
	if err != nil {
		os.Exit(1)
	}
}
