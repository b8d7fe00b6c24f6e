package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"signalopt/internal/model"
)

// Reader provides read access to prices and stored optimization runs.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading. The schema is created
// if missing so a fresh database reads as empty rather than failing.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadPrices returns closes for symbol with from <= ts <= to, ascending.
// A zero from or to leaves that side unbounded.
func (r *Reader) ReadPrices(ctx context.Context, symbol string, from, to time.Time) ([]model.PricePoint, error) {
	lo, hi := int64(math.MinInt64), int64(math.MaxInt64)
	if !from.IsZero() {
		lo = from.Unix()
	}
	if !to.IsZero() {
		hi = to.Unix()
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, close
		FROM prices
		WHERE symbol = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`, symbol, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("sqlite query prices: %w", err)
	}
	defer rows.Close()

	var points []model.PricePoint
	for rows.Next() {
		var (
			ts  int64
			raw string
		)
		if err := rows.Scan(&ts, &raw); err != nil {
			return nil, fmt.Errorf("sqlite scan prices: %w", err)
		}
		px, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("sqlite price %s@%d %q: %w", symbol, ts, raw, err)
		}
		points = append(points, model.PricePoint{Symbol: symbol, TS: time.Unix(ts, 0).UTC(), Close: px})
	}
	return points, rows.Err()
}

// Symbols lists every symbol with stored prices, sorted.
func (r *Reader) Symbols(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM prices ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("sqlite scan symbol: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LatestRun loads the most recent run for symbol with its scores and
// trades. Returns nil, nil when the symbol was never optimized.
func (r *Reader) LatestRun(ctx context.Context, symbol string) (*model.OptimizationRun, error) {
	var (
		run                 model.OptimizationRun
		winStart, winEnd    int64
		startedAt, duration int64
		tp, sl              string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT run_id, symbol, window_start, window_end, bars, take_profit, stop_loss,
		       win_rate, cum_return, trade_count, composite, started_at, duration_ms
		FROM optimization_runs
		WHERE symbol = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT 1
	`, symbol).Scan(&run.RunID, &run.Symbol, &winStart, &winEnd, &run.Bars, &tp, &sl,
		&run.Best.WinRate, &run.Best.CumulativeReturn, &run.Best.TradeCount, &run.Best.CompositeScore,
		&startedAt, &duration)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite read run: %w", err)
	}
	run.WindowStart = time.Unix(winStart, 0).UTC()
	run.WindowEnd = time.Unix(winEnd, 0).UTC()
	run.StartedAt = time.Unix(startedAt, 0).UTC()
	run.Duration = time.Duration(duration) * time.Millisecond
	if run.Best.Candidate, err = parseCandidate(tp, sl); err != nil {
		return nil, err
	}

	if run.Scores, err = r.scores(ctx, run.RunID); err != nil {
		return nil, err
	}
	if run.BestTrades, err = r.Trades(ctx, run.RunID); err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *Reader) scores(ctx context.Context, runID string) ([]model.CandidateScore, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT take_profit, stop_loss, win_rate, cum_return, trade_count, composite
		FROM candidate_scores
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query scores: %w", err)
	}
	defer rows.Close()

	var out []model.CandidateScore
	for rows.Next() {
		var (
			s      model.CandidateScore
			tp, sl string
		)
		if err := rows.Scan(&tp, &sl, &s.WinRate, &s.CumulativeReturn, &s.TradeCount, &s.CompositeScore); err != nil {
			return nil, fmt.Errorf("sqlite scan score: %w", err)
		}
		if s.Candidate, err = parseCandidate(tp, sl); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func parseCandidate(tp, sl string) (model.ParameterCandidate, error) {
	t, err := decimal.NewFromString(tp)
	if err != nil {
		return model.ParameterCandidate{}, fmt.Errorf("sqlite take_profit %q: %w", tp, err)
	}
	s, err := decimal.NewFromString(sl)
	if err != nil {
		return model.ParameterCandidate{}, fmt.Errorf("sqlite stop_loss %q: %w", sl, err)
	}
	return model.ParameterCandidate{TakeProfitPct: t, StopLossPct: s}, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
