package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"signalopt/internal/model"
)

// Metrics holds all Prometheus metrics for the optimizer, signal and
// gateway processes.
type Metrics struct {
	// Optimizer
	CandidatesTotal prometheus.Counter
	CandidateDur    prometheus.Histogram
	OptimizeDur     prometheus.Histogram
	OptimizeRuns    *prometheus.CounterVec // labels: outcome=ok|no_trades|insufficient_data|error
	BestComposite   *prometheus.GaugeVec   // labels: symbol
	BestWinRate     *prometheus.GaugeVec   // labels: symbol
	BestTradeCount  *prometheus.GaugeVec   // labels: symbol
	ActiveSymbols   prometheus.Gauge
	DataGapsTotal   *prometheus.CounterVec // labels: symbol
	SQLiteCommitDur prometheus.Histogram
	PriceBarsLoaded prometheus.Counter
	SignalsTotal    *prometheus.CounterVec // labels: kind
	PublishErrors   prometheus.Counter
	NotifyErrors    prometheus.Counter

	// Circuit breaker around Redis publishes
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter

	// Gateway
	GatewayClients  prometheus.Gauge
	GatewayMessages *prometheus.CounterVec // labels: type=signal|params
	GatewayDrops    prometheus.Counter
	OverrideTotal   *prometheus.CounterVec // labels: result=accepted|rejected
}

// NewMetrics creates all metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CandidatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalopt_candidates_evaluated_total",
			Help: "Total (take-profit, stop-loss) candidates simulated",
		}),
		CandidateDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalopt_candidate_duration_seconds",
			Help:    "Simulation time per candidate",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		OptimizeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalopt_optimize_duration_seconds",
			Help:    "Wall time of one symbol's grid search",
			Buckets: prometheus.DefBuckets,
		}),
		OptimizeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalopt_optimize_runs_total",
			Help: "Optimization runs by outcome",
		}, []string{"outcome"}),
		BestComposite: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalopt_best_composite_score",
			Help: "Composite score of the selected candidate",
		}, []string{"symbol"}),
		BestWinRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalopt_best_win_rate",
			Help: "Win rate of the selected candidate",
		}, []string{"symbol"}),
		BestTradeCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalopt_best_trade_count",
			Help: "Trade count of the selected candidate",
		}, []string{"symbol"}),
		ActiveSymbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalopt_active_symbols",
			Help: "Symbols with published active params after the last watchlist run",
		}),
		DataGapsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalopt_data_gaps_total",
			Help: "Missing trading-day runs found when loading prices",
		}, []string{"symbol"}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalopt_sqlite_commit_duration_seconds",
			Help:    "SQLite run persistence latency",
			Buckets: prometheus.DefBuckets,
		}),
		PriceBarsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalopt_price_bars_loaded_total",
			Help: "Daily bars read from SQLite",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalopt_signals_total",
			Help: "Latest-signal evaluations by kind",
		}, []string{"kind"}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalopt_publish_errors_total",
			Help: "Failed Redis publishes",
		}),
		NotifyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalopt_notify_errors_total",
			Help: "Failed notifications",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalopt_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalopt_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker opened",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalopt_redis_buffered_writes_total",
			Help: "Publishes buffered while the circuit was open",
		}),

		GatewayClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalopt_gateway_clients",
			Help: "Connected WebSocket clients",
		}),
		GatewayMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalopt_gateway_messages_total",
			Help: "Messages relayed to WebSocket clients",
		}, []string{"type"}),
		GatewayDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalopt_gateway_drops_total",
			Help: "Messages dropped for slow WebSocket clients",
		}),
		OverrideTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalopt_gateway_overrides_total",
			Help: "Operator override requests by result",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.CandidatesTotal,
		m.CandidateDur,
		m.OptimizeDur,
		m.OptimizeRuns,
		m.BestComposite,
		m.BestWinRate,
		m.BestTradeCount,
		m.ActiveSymbols,
		m.DataGapsTotal,
		m.SQLiteCommitDur,
		m.PriceBarsLoaded,
		m.SignalsTotal,
		m.PublishErrors,
		m.NotifyErrors,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.GatewayClients,
		m.GatewayMessages,
		m.GatewayDrops,
		m.OverrideTotal,
	)

	return m
}

// CandidateDone matches backtest.Hooks.CandidateDone.
func (m *Metrics) CandidateDone(_ model.CandidateScore, elapsed time.Duration) {
	m.CandidatesTotal.Inc()
	m.CandidateDur.Observe(elapsed.Seconds())
}

// ObserveBest records the selected candidate for symbol.
func (m *Metrics) ObserveBest(symbol string, s model.CandidateScore) {
	m.BestComposite.WithLabelValues(symbol).Set(s.CompositeScore)
	m.BestWinRate.WithLabelValues(symbol).Set(s.WinRate)
	m.BestTradeCount.WithLabelValues(symbol).Set(float64(s.TradeCount))
}

// BreakerStateChanged matches the circuit breaker OnStateChange callback
// with states as ints (0=closed, 1=open, 2=half-open).
func (m *Metrics) BreakerStateChanged(to int) {
	m.RedisCircuitBreakerState.Set(float64(to))
	if to == 1 {
		m.RedisCircuitBreakerTrips.Inc()
	}
}
