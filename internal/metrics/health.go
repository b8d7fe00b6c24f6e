package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependency names reported by /healthz.
const (
	ComponentRedis  = "redis"
	ComponentSQLite = "sqlite"
)

// Pinger probes one dependency.
type Pinger func(ctx context.Context) error

type componentState struct {
	OK        bool    `json:"ok"`
	LatencyMs float64 `json:"latency_ms"`
	CheckedAt string  `json:"checked_at,omitempty"`
	Error     string  `json:"error,omitempty"`
}

type runState struct {
	At      string `json:"at,omitempty"`
	OK      bool   `json:"ok"`
	Symbols int    `json:"symbols"`
}

// HealthStatus tracks dependency health and the last optimization run.
// Redis and SQLite start unhealthy until set or probed.
type HealthStatus struct {
	mu         sync.RWMutex
	components map[string]*componentState
	lastRun    time.Time
	lastRunOK  bool
	lastSyms   int
	startedAt  time.Time
}

// NewHealthStatus returns a status with Redis and SQLite registered.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		components: map[string]*componentState{
			ComponentRedis:  {},
			ComponentSQLite: {},
		},
		startedAt: time.Now(),
	}
}

// Set marks a component up or down without probing it.
func (h *HealthStatus) Set(name string, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.component(name)
	c.OK = ok
	if ok {
		c.Error = ""
	}
}

func (h *HealthStatus) SetRedisConnected(v bool) { h.Set(ComponentRedis, v) }

func (h *HealthStatus) SetSQLiteOK(v bool) { h.Set(ComponentSQLite, v) }

// RecordRun stores the outcome of a watchlist run.
func (h *HealthStatus) RecordRun(at time.Time, ok bool, symbols int) {
	h.mu.Lock()
	h.lastRun = at
	h.lastRunOK = ok
	h.lastSyms = symbols
	h.mu.Unlock()
}

// Check runs ping and records the result under name.
func (h *HealthStatus) Check(ctx context.Context, name string, ping Pinger) error {
	start := time.Now()
	err := ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.component(name)
	c.OK = err == nil
	c.LatencyMs = float64(latency.Microseconds()) / 1000.0
	c.CheckedAt = time.Now().UTC().Format(time.RFC3339)
	c.Error = ""
	if err != nil {
		c.Error = err.Error()
	}
	return err
}

func (h *HealthStatus) component(name string) *componentState {
	c, ok := h.components[name]
	if !ok {
		c = &componentState{}
		h.components[name] = c
	}
	return c
}

// StartLivenessChecker probes Redis and SQLite every interval until ctx is
// done. Nil dependencies are skipped and keep their last Set value.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	pingers := make(map[string]Pinger)
	if rdb != nil {
		pingers[ComponentRedis] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	if sqlDB != nil {
		pingers[ComponentSQLite] = sqlDB.PingContext
	}
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		for name, ping := range pingers {
			if err := h.Check(probeCtx, name, ping); err != nil {
				log.Printf("[health] %s probe failed: %v", name, err)
			}
		}
	}
	probe()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}

// ServeHTTP handles /healthz: 200 when every component is up and the last
// run (if any) succeeded, 503 otherwise.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	up := 0
	components := make(map[string]componentState, len(h.components))
	for name, c := range h.components {
		components[name] = *c
		if c.OK {
			up++
		}
	}

	status := "healthy"
	switch {
	case up == 0:
		status = "unhealthy"
	case up < len(components), !h.lastRun.IsZero() && !h.lastRunOK:
		status = "degraded"
	}

	run := runState{OK: h.lastRunOK, Symbols: h.lastSyms}
	if !h.lastRun.IsZero() {
		run.At = h.lastRun.UTC().Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	if status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]any{
		"status":     status,
		"uptime":     time.Since(h.startedAt).Round(time.Second).String(),
		"components": components,
		"last_run":   run,
	})
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server's mux.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
