// cmd/signal computes the latest MACD crossover signal for every watchlist
// symbol, publishes it to Redis and notifies on entries.
//
// Usage:
//
//	go run ./cmd/signal [-symbols=AAPL,MSFT]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"

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
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[signal] config: %v", err)
	}
	slogger := logger.Init("signal", cfg.SlogLevel())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	reader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[signal] sqlite open failed: %v", err)
	}
	defer reader.Close()

	prom := metrics.NewMetrics(prometheus.NewRegistry())

	opts := engine.Options{
		Prices:      reader,
		Notifier:    notification.New(cfg.NotifyWebhookURL, cfg.TelegramBotToken, cfg.TelegramChatID),
		Metrics:     prom,
		Logger:      slogger,
		Calendar:    cfg.Calendar(),
		Grid:        cfg.Grid,
		WindowYears: cfg.WindowYears,
	}
	redisWriter, err := redisstore.New(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		log.Printf("[signal] WARNING: redis init failed: %v (signals will only be printed)", err)
	} else {
		defer redisWriter.Close()
		opts.Publisher = redisWriter
	}
	if opts.Optimizer, err = backtest.NewOptimizer(cfg.OptimizerConfig(), backtest.Hooks{}); err != nil {
		log.Fatalf("[signal] optimizer: %v", err)
	}
	svc, err := engine.New(opts)
	if err != nil {
		log.Fatalf("[signal] engine: %v", err)
	}

	symbols := cfg.Symbols
	if *symbolsFlag != "" {
		symbols = config.ParseSymbols(*symbolsFlag)
	}
	if len(symbols) == 0 {
		if symbols, err = reader.Symbols(ctx); err != nil {
			log.Fatalf("[signal] list symbols: %v", err)
		}
	}

	events, err := svc.Signals(ctx, symbols)
	keys := lo.Keys(events)
	slices.Sort(keys)
	for _, sym := range keys {
		ev := events[sym]
		fmt.Printf("%-10s %s  %s\n", sym, ev.TS.Format(time.DateOnly), ev.Kind)
	}
	if err != nil {
		slogger.Error("signal errors", "err", err)
		os.Exit(1)
	}
}
