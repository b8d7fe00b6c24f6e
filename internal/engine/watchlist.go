package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"signalopt/internal/backtest"
	"signalopt/internal/model"
)

// WatchlistResult summarizes one optimize pass over the watchlist.
type WatchlistResult struct {
	Active  []model.ActiveParams // symbols with published params, watchlist order
	Runs    []*model.OptimizationRun
	Dropped map[string]error // symbols removed from the active set
	Failed  map[string]error // unexpected failures
}

// OptimizeWatchlist optimizes every symbol in order. Symbols Optimize
// drops are collected in Dropped; other failures are collected in Failed
// and joined into the returned error while the remaining symbols still run.
func (s *Service) OptimizeWatchlist(ctx context.Context, symbols []string) (*WatchlistResult, error) {
	res := &WatchlistResult{
		Dropped: make(map[string]error),
		Failed:  make(map[string]error),
	}
	var errs []error

	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		run, params, err := s.Optimize(ctx, sym)
		switch {
		case err == nil:
			res.Active = append(res.Active, *params)
			res.Runs = append(res.Runs, run)
		case dropsSymbol(err):
			res.Dropped[sym] = err
		default:
			res.Failed[sym] = err
			s.log.Error("optimize failed", "symbol", sym, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", sym, err))
		}
	}

	if s.m != nil {
		s.m.ActiveSymbols.Set(float64(len(res.Active)))
	}
	s.log.Info("watchlist optimized",
		"symbols", len(symbols),
		"active", len(res.Active),
		"dropped", len(res.Dropped),
		"failed", len(res.Failed),
	)
	return res, errors.Join(errs...)
}

// Report is a single-candidate replay over the backtest window.
type Report struct {
	Symbol    string
	Candidate model.ParameterCandidate
	Score     model.CandidateScore
	Trades    []model.TradeRecord
	OpenAtEnd bool
	Bars      int
	Frames    int
	From, To  time.Time
}

// Backtest replays one candidate for symbol without persisting anything.
func (s *Service) Backtest(ctx context.Context, symbol string, c model.ParameterCandidate) (*Report, error) {
	if err := backtest.ValidateCandidate(c); err != nil {
		return nil, err
	}
	points, err := s.History(ctx, symbol)
	if err != nil {
		return nil, err
	}
	frames, events, err := s.opt.Signals(symbol, points)
	if err != nil {
		return nil, err
	}
	score, run, err := s.opt.Score(points, events, c)
	if err != nil {
		return nil, err
	}
	return &Report{
		Symbol:    symbol,
		Candidate: c,
		Score:     score,
		Trades:    run.Trades,
		OpenAtEnd: run.OpenAtEnd,
		Bars:      len(points),
		Frames:    len(frames),
		From:      points[0].TS,
		To:        points[len(points)-1].TS,
	}, nil
}

// Override publishes operator-chosen parameters for symbol. The candidate
// is replayed over the window so the published score reflects it.
func (s *Service) Override(ctx context.Context, symbol string, c model.ParameterCandidate) (*model.ActiveParams, error) {
	rep, err := s.Backtest(ctx, symbol, c)
	if err != nil {
		return nil, err
	}
	params := NewActiveParams(symbol, rep.Score, "override-"+fmt.Sprint(s.now().Unix()), s.now())
	s.log.Info("params override", "symbol", symbol, "candidate", c.String(), "trades", rep.Score.TradeCount)
	if err := s.publishParams(ctx, params); err != nil {
		return &params, err
	}
	return &params, nil
}
