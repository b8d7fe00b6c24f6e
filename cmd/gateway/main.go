// cmd/gateway relays published signals and active parameters to WebSocket
// dashboards, serves the latest values over REST and accepts TOTP-guarded
// parameter overrides and re-optimizations.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"signalopt/config"
	"signalopt/internal/backtest"
	"signalopt/internal/engine"
	"signalopt/internal/gateway"
	"signalopt/internal/logger"
	"signalopt/internal/metrics"
	"signalopt/internal/notification"
	redisstore "signalopt/internal/store/redis"
	sqlitestore "signalopt/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[gateway] starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[gateway] config: %v", err)
	}
	slogger := logger.Init("gateway", cfg.SlogLevel())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	prom := metrics.NewMetrics(prometheus.DefaultRegisterer)
	health := metrics.NewHealthStatus()

	// ---- Redis (required: it is the relay source) ----
	rdb, err := redisstore.Dial(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		log.Fatalf("[gateway] redis connection failed: %v", err)
	}
	defer rdb.Close()
	health.SetRedisConnected(true)
	log.Printf("[gateway] redis connected at %s", cfg.RedisAddr)
	live := redisstore.NewReaderWithClient(rdb)

	// ---- SQLite (optional: runs and operator actions need it) ----
	deps := gateway.Deps{Live: live}
	sqlReader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Printf("[gateway] WARNING: sqlite open failed: %v (runs and overrides disabled)", err)
	} else {
		defer sqlReader.Close()
		health.SetSQLiteOK(true)
		deps.Runs = sqlReader

		sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
		if err != nil {
			log.Fatalf("[gateway] sqlite writer failed: %v", err)
		}
		defer sqlWriter.Close()
		health.StartLivenessChecker(ctx, rdb, sqlWriter.DB(), 10*time.Second)

		opt, err := backtest.NewOptimizer(cfg.OptimizerConfig(), backtest.Hooks{CandidateDone: prom.CandidateDone})
		if err != nil {
			log.Fatalf("[gateway] optimizer: %v", err)
		}
		svc, err := engine.New(engine.Options{
			Prices:      sqlReader,
			Runs:        sqlWriter,
			Publisher:   redisstore.NewWithClient(rdb),
			Notifier:    notification.New(cfg.NotifyWebhookURL, cfg.TelegramBotToken, cfg.TelegramChatID),
			Metrics:     prom,
			Logger:      slogger,
			Calendar:    cfg.Calendar(),
			Optimizer:   opt,
			Grid:        cfg.Grid,
			WindowYears: cfg.WindowYears,
		})
		if err != nil {
			log.Fatalf("[gateway] engine: %v", err)
		}
		deps.Operator = svc
	}

	deps.Guard = gateway.NewTOTPGuard(cfg.GatewayTOTPSecret, prom)
	if !deps.Guard.Enabled() {
		log.Println("[gateway] WARNING: GATEWAY_TOTP_SECRET unset, overrides are unauthenticated")
	}

	hub := gateway.NewHub(live, prom)
	deps.Hub = hub
	go hub.Run(ctx)

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, deps)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /healthz", health)

	srv := &http.Server{
		Addr:              cfg.GatewayAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("[gateway] listening on %s", cfg.GatewayAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[gateway] server error: %v", err)
		}
	}()

	sig := <-sigCh
	log.Printf("[gateway] received %v, shutting down...", sig)
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	log.Println("[gateway] stopped")
}
