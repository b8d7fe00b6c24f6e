// Package engine runs the signal and optimize modes for a watchlist on top
// of the shared MACD core: it loads history, trims it to the backtest
// window, runs the pipeline, persists results, publishes to the live side
// and notifies operators.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"signalopt/internal/backtest"
	"signalopt/internal/calendar"
	"signalopt/internal/indicator"
	"signalopt/internal/logger"
	"signalopt/internal/metrics"
	"signalopt/internal/model"
	"signalopt/internal/notification"
	"signalopt/internal/strategy"
)

// AllocationFactor scales the winning candidate's win rate into the
// fraction of balance the live trader commits per entry.
const AllocationFactor = 0.1

// paramsClearer is implemented by publishers that can retract params.
type paramsClearer interface {
	ClearParams(ctx context.Context, symbol string) error
}

// Options wires a Service. Prices and Optimizer are required; every other
// collaborator is optional.
type Options struct {
	Prices      model.PriceReader
	Runs        model.RunWriter
	Publisher   model.Publisher
	Notifier    notification.Notifier
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	Calendar    *calendar.Calendar
	Optimizer   *backtest.Optimizer
	Grid        backtest.Grid
	WindowYears int

	Now func() time.Time // defaults to time.Now
}

// Service implements signal mode and optimize mode.
type Service struct {
	prices      model.PriceReader
	runs        model.RunWriter
	pub         model.Publisher
	notify      notification.Notifier
	m           *metrics.Metrics
	log         *slog.Logger
	cal         *calendar.Calendar
	opt         *backtest.Optimizer
	grid        backtest.Grid
	windowYears int
	now         func() time.Time
}

// New validates opts and builds a Service.
func New(opts Options) (*Service, error) {
	if opts.Prices == nil {
		return nil, errors.New("engine: price reader is required")
	}
	if opts.Optimizer == nil {
		return nil, errors.New("engine: optimizer is required")
	}
	if err := opts.Grid.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	s := &Service{
		prices:      opts.Prices,
		runs:        opts.Runs,
		pub:         opts.Publisher,
		notify:      opts.Notifier,
		m:           opts.Metrics,
		log:         opts.Logger,
		cal:         opts.Calendar,
		opt:         opts.Optimizer,
		grid:        opts.Grid,
		windowYears: opts.WindowYears,
		now:         opts.Now,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.cal == nil {
		s.cal = calendar.New(nil)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Grid returns the configured candidate grid.
func (s *Service) Grid() backtest.Grid { return s.grid }

// History loads the symbol's closes trimmed to the backtest window plus
// the indicator warm-up. Missing trading days are logged, not fatal.
func (s *Service) History(ctx context.Context, symbol string) ([]model.PricePoint, error) {
	points, err := s.prices.ReadPrices(ctx, symbol, time.Time{}, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("load %s prices: %w", symbol, err)
	}
	points = calendar.Window(points, s.windowYears, s.opt.Config().Periods.Warmup())
	if s.m != nil {
		s.m.PriceBarsLoaded.Add(float64(len(points)))
	}

	if gaps := s.cal.FindGaps(points); len(gaps) > 0 {
		if s.m != nil {
			s.m.DataGapsTotal.WithLabelValues(symbol).Add(float64(len(gaps)))
		}
		for _, g := range gaps {
			s.log.Warn("price gap", "symbol", symbol, "gap", g.String())
		}
	}
	return points, nil
}

// LatestSignal computes the signal for the symbol's most recent bar,
// publishes it and notifies when it is an entry.
func (s *Service) LatestSignal(ctx context.Context, symbol string) (model.SignalEvent, error) {
	points, err := s.History(ctx, symbol)
	if err != nil {
		return model.SignalEvent{}, err
	}
	cfg := s.opt.Config()
	frames, err := indicator.Compute(points, cfg.Periods)
	if err != nil {
		return model.SignalEvent{}, fmt.Errorf("%w: %w", backtest.ErrInvalidParameter, err)
	}
	ev, ok := strategy.NewDetector(symbol, cfg.Filter).Latest(frames)
	if !ok {
		return model.SignalEvent{}, fmt.Errorf("%w: %s has %d bars, warm-up needs more than %d",
			backtest.ErrInsufficientData, symbol, len(points), cfg.Periods.Warmup())
	}

	if s.m != nil {
		s.m.SignalsTotal.WithLabelValues(string(ev.Kind)).Inc()
	}
	s.log.Info("latest signal", "symbol", symbol, "ts", ev.TS.Format("2006-01-02"), "kind", string(ev.Kind))

	if s.pub != nil {
		if err := s.pub.PublishSignal(ctx, ev); err != nil {
			s.publishFailed(err)
			return ev, err
		}
	}
	if ev.IsEntry() {
		s.send(ctx, notification.SignalAlert(ev))
	}
	return ev, nil
}

// Signals runs LatestSignal for every symbol. Failures are logged and
// collected; the other symbols still run.
func (s *Service) Signals(ctx context.Context, symbols []string) (map[string]model.SignalEvent, error) {
	out := make(map[string]model.SignalEvent, len(symbols))
	var errs []error
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		ev, err := s.LatestSignal(ctx, sym)
		if err != nil {
			s.log.Error("signal failed", "symbol", sym, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", sym, err))
			continue
		}
		out[sym] = ev
	}
	return out, errors.Join(errs...)
}

// Optimize runs the grid search for one symbol, persists the run,
// publishes the winning parameters and notifies. A symbol whose grid never
// trades or whose history is too short leaves the active set: its live
// params are retracted and a DroppedAlert is sent.
func (s *Service) Optimize(ctx context.Context, symbol string) (*model.OptimizationRun, *model.ActiveParams, error) {
	run, params, err := s.optimize(ctx, symbol)
	if dropsSymbol(err) {
		s.drop(ctx, symbol, err)
	}
	return run, params, err
}

func dropsSymbol(err error) bool {
	return errors.Is(err, backtest.ErrNoTrades) || errors.Is(err, backtest.ErrInsufficientData)
}

func (s *Service) drop(ctx context.Context, symbol string, reason error) {
	s.log.Warn("dropping symbol", "symbol", symbol, "reason", reason)
	if c, ok := s.pub.(paramsClearer); ok {
		if err := c.ClearParams(ctx, symbol); err != nil {
			s.publishFailed(err)
		}
	}
	s.send(ctx, notification.DroppedAlert(symbol, reason))
}

func (s *Service) optimize(ctx context.Context, symbol string) (*model.OptimizationRun, *model.ActiveParams, error) {
	start := s.now()
	runID := logger.NewRunID(symbol, start)
	ctx = logger.WithRunID(ctx, runID)
	log := s.log.With(logger.RunAttrs(ctx)...)

	points, err := s.History(ctx, symbol)
	if err != nil {
		s.observeRun(err)
		return nil, nil, err
	}

	t0 := time.Now()
	res, err := s.opt.Optimize(symbol, points, s.grid)
	if s.m != nil {
		s.m.OptimizeDur.Observe(time.Since(t0).Seconds())
	}
	s.observeRun(err)
	if err != nil {
		return nil, nil, fmt.Errorf("optimize %s: %w", symbol, err)
	}

	run := &model.OptimizationRun{
		RunID:      runID,
		Symbol:     symbol,
		Bars:       len(points),
		Best:       res.Best,
		Scores:     res.Scores,
		BestTrades: res.BestTrades,
		StartedAt:  start,
		Duration:   time.Since(t0),
	}
	if len(points) > 0 {
		run.WindowStart = points[0].TS
		run.WindowEnd = points[len(points)-1].TS
	}
	log.Info("optimized",
		"symbol", symbol,
		"bars", run.Bars,
		"frames", res.Frames,
		"candidates", len(res.Scores),
		"best", res.Best.Candidate.String(),
		"win_rate", res.Best.WinRate,
		"cum_return", res.Best.CumulativeReturn,
		"trades", res.Best.TradeCount,
		"open_at_end", res.OpenAtEnd,
	)
	if s.m != nil {
		s.m.ObserveBest(symbol, res.Best)
	}

	if s.runs != nil {
		t := time.Now()
		if err := s.runs.SaveRun(ctx, run); err != nil {
			return run, nil, fmt.Errorf("save run %s: %w", runID, err)
		}
		if s.m != nil {
			s.m.SQLiteCommitDur.Observe(time.Since(t).Seconds())
		}
	}

	params := NewActiveParams(symbol, res.Best, runID, s.now())
	if err := s.publishParams(ctx, params); err != nil {
		return run, &params, err
	}
	return run, &params, nil
}

// NewActiveParams derives the live-trading parameters from a score.
func NewActiveParams(symbol string, best model.CandidateScore, runID string, at time.Time) model.ActiveParams {
	return model.ActiveParams{
		Symbol:     symbol,
		Candidate:  best.Candidate,
		Score:      best,
		Allocation: AllocationFactor * best.WinRate,
		RunID:      runID,
		UpdatedAt:  at.UTC(),
	}
}

func (s *Service) publishParams(ctx context.Context, p model.ActiveParams) error {
	if s.pub != nil {
		if err := s.pub.PublishParams(ctx, p); err != nil {
			s.publishFailed(err)
			return fmt.Errorf("publish %s params: %w", p.Symbol, err)
		}
	}
	s.send(ctx, notification.ParamsAlert(p))
	return nil
}

func (s *Service) observeRun(err error) {
	if s.m == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, backtest.ErrNoTrades):
		outcome = "no_trades"
	case errors.Is(err, backtest.ErrInsufficientData):
		outcome = "insufficient_data"
	default:
		outcome = "error"
	}
	s.m.OptimizeRuns.WithLabelValues(outcome).Inc()
}

func (s *Service) publishFailed(err error) {
	s.log.Error("publish failed", "error", err)
	if s.m != nil {
		s.m.PublishErrors.Inc()
	}
}

func (s *Service) send(ctx context.Context, a notification.Alert) {
	if s.notify == nil {
		return
	}
	if err := s.notify.Send(ctx, a); err != nil {
		s.log.Warn("notify failed", "title", a.Title, "error", err)
		if s.m != nil {
			s.m.NotifyErrors.Inc()
		}
	}
}
