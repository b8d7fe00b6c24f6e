package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalopt/internal/backtest"
	"signalopt/internal/metrics"
	"signalopt/internal/model"
	"signalopt/internal/notification"
)

var day0 = time.Date(2019, 1, 2, 0, 0, 0, 0, time.UTC)

type fakePrices struct {
	series map[string][]model.PricePoint
	err    map[string]error
}

func (f *fakePrices) ReadPrices(_ context.Context, symbol string, _, _ time.Time) ([]model.PricePoint, error) {
	if err := f.err[symbol]; err != nil {
		return nil, err
	}
	return f.series[symbol], nil
}

func (f *fakePrices) Symbols(context.Context) ([]string, error) { return nil, nil }

type fakeRuns struct{ runs []*model.OptimizationRun }

func (f *fakeRuns) SaveRun(_ context.Context, r *model.OptimizationRun) error {
	f.runs = append(f.runs, r)
	return nil
}

type fakePub struct {
	mu      sync.Mutex
	signals []model.SignalEvent
	params  []model.ActiveParams
	cleared []string
	err     error
}

func (f *fakePub) PublishSignal(_ context.Context, ev model.SignalEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, ev)
	return f.err
}

func (f *fakePub) PublishParams(_ context.Context, p model.ActiveParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params = append(f.params, p)
	return f.err
}

func (f *fakePub) ClearParams(_ context.Context, symbol string) error {
	f.cleared = append(f.cleared, symbol)
	return nil
}

type fakeNotifier struct{ alerts []notification.Alert }

func (f *fakeNotifier) Send(_ context.Context, a notification.Alert) error {
	f.alerts = append(f.alerts, a)
	return nil
}

func closes(sym string, cs ...float64) []model.PricePoint {
	pts := make([]model.PricePoint, len(cs))
	for i, c := range cs {
		pts[i] = model.PricePoint{Symbol: sym, TS: day0.AddDate(0, 0, i), Close: decimal.NewFromFloat(c)}
	}
	return pts
}

func flat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// rampAfterFlat: 40 flat bars then a 20-bar rise, one LONG at bar 40.
func rampAfterFlat() []float64 {
	cs := flat(40, 100)
	for i := 1; i <= 20; i++ {
		cs = append(cs, 100+float64(i))
	}
	return cs
}

type harness struct {
	svc    *Service
	prices *fakePrices
	runs   *fakeRuns
	pub    *fakePub
	notes  *fakeNotifier
	m      *metrics.Metrics
}

func newHarness(t *testing.T, windowYears int) *harness {
	t.Helper()
	opt, err := backtest.NewOptimizer(backtest.DefaultConfig(), backtest.Hooks{})
	require.NoError(t, err)
	grid, err := backtest.NewGrid(
		[]decimal.Decimal{decimal.RequireFromString("0.01"), decimal.RequireFromString("0.02")},
		[]decimal.Decimal{decimal.RequireFromString("0.01")},
	)
	require.NoError(t, err)

	h := &harness{
		prices: &fakePrices{series: map[string][]model.PricePoint{}, err: map[string]error{}},
		runs:   &fakeRuns{},
		pub:    &fakePub{},
		notes:  &fakeNotifier{},
		m:      metrics.NewMetrics(prometheus.NewRegistry()),
	}
	h.svc, err = New(Options{
		Prices:      h.prices,
		Runs:        h.runs,
		Publisher:   h.pub,
		Notifier:    h.notes,
		Metrics:     h.m,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Optimizer:   opt,
		Grid:        grid,
		WindowYears: windowYears,
		Now:         func() time.Time { return time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return h
}

func TestNew_Validation(t *testing.T) {
	opt, err := backtest.NewOptimizer(backtest.DefaultConfig(), backtest.Hooks{})
	require.NoError(t, err)

	_, err = New(Options{Optimizer: opt})
	assert.Error(t, err)
	_, err = New(Options{Prices: &fakePrices{}})
	assert.Error(t, err)
	_, err = New(Options{Prices: &fakePrices{}, Optimizer: opt})
	assert.ErrorIs(t, err, backtest.ErrEmptyCandidateGrid)
}

func TestOptimize_PersistsPublishesNotifies(t *testing.T) {
	h := newHarness(t, 0)
	h.prices.series["AAPL"] = closes("AAPL", rampAfterFlat()...)

	run, params, err := h.svc.Optimize(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, 60, run.Bars)
	assert.True(t, run.WindowStart.Equal(day0))
	assert.Len(t, run.Scores, 2)
	assert.Contains(t, run.RunID, "AAPL-")
	require.Len(t, run.BestTrades, 1)
	assert.Equal(t, model.ExitTakeProfit, run.BestTrades[0].ExitReason)

	require.Len(t, h.runs.runs, 1)
	assert.Same(t, run, h.runs.runs[0])

	require.Len(t, h.pub.params, 1)
	assert.Equal(t, *params, h.pub.params[0])
	assert.True(t, params.Candidate.TakeProfitPct.Equal(decimal.RequireFromString("0.02")))
	assert.InDelta(t, 0.1, params.Allocation, 1e-12, "0.1 x win rate of 1")
	assert.Equal(t, run.RunID, params.RunID)

	require.Len(t, h.notes.alerts, 1)
	assert.Equal(t, "AAPL params updated", h.notes.alerts[0].Title)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.OptimizeRuns.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.BestWinRate.WithLabelValues("AAPL")))
}

func TestOptimize_RetractsSymbolThatNeverTrades(t *testing.T) {
	h := newHarness(t, 0)
	h.prices.series["FLAT"] = closes("FLAT", flat(80, 25.5)...)

	run, params, err := h.svc.Optimize(context.Background(), "FLAT")
	require.ErrorIs(t, err, backtest.ErrNoTrades)
	assert.Nil(t, run)
	assert.Nil(t, params)

	assert.Equal(t, []string{"FLAT"}, h.pub.cleared)
	assert.Empty(t, h.pub.params)
	require.Len(t, h.notes.alerts, 1)
	assert.Equal(t, "FLAT dropped from active set", h.notes.alerts[0].Title)
	assert.Empty(t, h.runs.runs)
}

func TestOptimize_KeepsParamsOnOtherFailures(t *testing.T) {
	h := newHarness(t, 0)
	h.prices.err["BROKEN"] = errors.New("disk I/O error")

	_, _, err := h.svc.Optimize(context.Background(), "BROKEN")
	require.Error(t, err)
	assert.Empty(t, h.pub.cleared)
	assert.Empty(t, h.notes.alerts)
}

func TestOptimizeWatchlist_DropsAndFails(t *testing.T) {
	h := newHarness(t, 0)
	h.prices.series["AAPL"] = closes("AAPL", rampAfterFlat()...)
	h.prices.series["FLAT"] = closes("FLAT", flat(80, 25.5)...)
	h.prices.series["NEW"] = closes("NEW", flat(10, 10)...)
	h.prices.err["BROKEN"] = errors.New("disk I/O error")

	res, err := h.svc.OptimizeWatchlist(context.Background(), []string{"FLAT", "AAPL", "BROKEN", "NEW"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BROKEN")

	require.Len(t, res.Active, 1)
	assert.Equal(t, "AAPL", res.Active[0].Symbol)
	assert.Len(t, res.Runs, 1)

	require.Len(t, res.Dropped, 2)
	assert.ErrorIs(t, res.Dropped["FLAT"], backtest.ErrNoTrades)
	assert.ErrorIs(t, res.Dropped["NEW"], backtest.ErrInsufficientData)
	assert.Equal(t, []string{"FLAT", "NEW"}, h.pub.cleared)

	require.Len(t, res.Failed, 1)
	assert.Contains(t, res.Failed, "BROKEN")

	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.ActiveSymbols))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.OptimizeRuns.WithLabelValues("no_trades")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.OptimizeRuns.WithLabelValues("insufficient_data")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.OptimizeRuns.WithLabelValues("error")))

	var dropped int
	for _, a := range h.notes.alerts {
		if a.Level == notification.AlertWarning {
			dropped++
		}
	}
	assert.Equal(t, 2, dropped)
}

func TestLatestSignal(t *testing.T) {
	h := newHarness(t, 0)
	h.prices.series["UP"] = closes("UP", append(flat(40, 100), 101)...)
	h.prices.series["FLAT"] = closes("FLAT", flat(40, 100)...)
	h.prices.series["NEW"] = closes("NEW", flat(5, 100)...)
	ctx := context.Background()

	ev, err := h.svc.LatestSignal(ctx, "UP")
	require.NoError(t, err)
	assert.Equal(t, model.SignalLongEntry, ev.Kind)
	assert.True(t, ev.TS.Equal(day0.AddDate(0, 0, 40)))
	assert.Equal(t, "UP", ev.Symbol)

	ev, err = h.svc.LatestSignal(ctx, "FLAT")
	require.NoError(t, err)
	assert.Equal(t, model.SignalNone, ev.Kind)

	_, err = h.svc.LatestSignal(ctx, "NEW")
	assert.ErrorIs(t, err, backtest.ErrInsufficientData)

	assert.Len(t, h.pub.signals, 2, "NONE is published too")
	require.Len(t, h.notes.alerts, 1, "only entries notify")
	assert.Equal(t, "UP LONG_ENTRY", h.notes.alerts[0].Title)

	all, err := h.svc.Signals(ctx, []string{"UP", "NEW", "FLAT"})
	assert.ErrorIs(t, err, backtest.ErrInsufficientData)
	assert.Len(t, all, 2)
}

func TestLatestSignal_PublishError(t *testing.T) {
	h := newHarness(t, 0)
	h.prices.series["UP"] = closes("UP", append(flat(40, 100), 101)...)
	h.pub.err = errors.New("redis down")

	_, err := h.svc.LatestSignal(context.Background(), "UP")
	assert.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.PublishErrors))
}

func TestHistory_TrimsToWindow(t *testing.T) {
	h := newHarness(t, 1)
	// Three years of daily bars.
	cs := flat(3*366, 50)
	h.prices.series["LONG"] = closes("LONG", cs...)

	pts, err := h.svc.History(context.Background(), "LONG")
	require.NoError(t, err)

	last := day0.AddDate(0, 0, len(cs)-1)
	cutoff := last.AddDate(-1, 0, 0)
	warm := 0
	for _, p := range pts {
		if p.TS.Before(cutoff) {
			warm++
		}
	}
	assert.Equal(t, backtest.DefaultConfig().Periods.Warmup(), warm)
	assert.True(t, pts[len(pts)-1].TS.Equal(last))
}

func TestBacktestAndOverride(t *testing.T) {
	h := newHarness(t, 0)
	h.prices.series["AAPL"] = closes("AAPL", rampAfterFlat()...)
	ctx := context.Background()
	c := model.ParameterCandidate{TakeProfitPct: decimal.RequireFromString("0.05"), StopLossPct: decimal.RequireFromString("0.01")}

	rep, err := h.svc.Backtest(ctx, "AAPL", c)
	require.NoError(t, err)
	assert.Equal(t, 60, rep.Bars)
	assert.Equal(t, 1, rep.Score.TradeCount)
	require.Len(t, rep.Trades, 1)
	// 101 -> 106 is +4.95%, 101 -> 107 reaches 5%.
	assert.Equal(t, model.ExitTakeProfit, rep.Trades[0].ExitReason)
	assert.True(t, rep.Trades[0].ExitPrice.Equal(decimal.NewFromInt(107)))

	_, err = h.svc.Backtest(ctx, "AAPL", model.ParameterCandidate{TakeProfitPct: decimal.Zero, StopLossPct: c.StopLossPct})
	assert.ErrorIs(t, err, backtest.ErrInvalidParameter)

	p, err := h.svc.Override(ctx, "AAPL", c)
	require.NoError(t, err)
	assert.True(t, p.Candidate.TakeProfitPct.Equal(c.TakeProfitPct))
	assert.Contains(t, p.RunID, "override-")
	require.Len(t, h.pub.params, 1)
}
