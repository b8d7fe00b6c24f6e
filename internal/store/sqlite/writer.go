package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"signalopt/internal/model"
)

const (
	batchSize  = 500
	flushEvery = 200 * time.Millisecond
)

var (
	_ model.PriceWriter = (*Writer)(nil)
	_ model.RunWriter   = (*Writer)(nil)
	_ model.PriceReader = (*Reader)(nil)
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/prices.db"
}

// Writer is a single-connection SQLite writer with transaction batching.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

// Run drains ch into the prices table, committing every batchSize points
// and on every flushEvery tick. It returns the number of committed points
// once ch closes or ctx is done; pending points are committed either way.
func (w *Writer) Run(ctx context.Context, ch <-chan model.PricePoint) int {
	tick := time.NewTicker(flushEvery)
	defer tick.Stop()

	var (
		pending   = make([]model.PricePoint, 0, batchSize)
		committed int
	)
	commit := func() {
		if len(pending) == 0 {
			return
		}
		// not ctx: the last batch has to land after cancellation
		if err := w.WritePrices(context.Background(), pending); err != nil {
			log.Printf("[sqlite] dropped batch of %d prices: %v", len(pending), err)
		} else {
			committed += len(pending)
		}
		pending = pending[:0]
	}

	for {
		select {
		case <-ctx.Done():
			commit()
			return committed
		case p, ok := <-ch:
			if !ok {
				commit()
				return committed
			}
			if pending = append(pending, p); len(pending) == batchSize {
				commit()
			}
		case <-tick.C:
			commit()
		}
	}
}

// withTx runs fn in a transaction, rolling back when fn fails.
func (w *Writer) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// WritePrices upserts points keyed by (symbol, trading date).
func (w *Writer) WritePrices(ctx context.Context, points []model.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	return w.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO prices (symbol, ts, close) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, p := range points {
			day := model.TradingDate(p.TS)
			if _, err := stmt.ExecContext(ctx, p.Symbol, day.Unix(), p.Close.String()); err != nil {
				return fmt.Errorf("sqlite price %s %s: %w", p.Symbol, day.Format(time.DateOnly), err)
			}
		}
		return nil
	})
}

// SaveRun stores the run summary, every candidate score in grid order and
// the winning candidate's trades atomically.
func (w *Writer) SaveRun(ctx context.Context, run *model.OptimizationRun) error {
	best := run.Best
	err := w.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO optimization_runs
				(run_id, symbol, window_start, window_end, bars, take_profit, stop_loss,
				 win_rate, cum_return, trade_count, composite, started_at, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.Symbol, run.WindowStart.Unix(), run.WindowEnd.Unix(), run.Bars,
			best.Candidate.TakeProfitPct.String(), best.Candidate.StopLossPct.String(),
			best.WinRate, best.CumulativeReturn, best.TradeCount, best.CompositeScore,
			run.StartedAt.Unix(), run.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("sqlite run %s: %w", run.RunID, err)
		}
		if err := insertScores(ctx, tx, run.RunID, run.Scores); err != nil {
			return err
		}
		return insertTrades(ctx, tx, run.RunID, run.Symbol, run.BestTrades)
	})
	if err != nil {
		return err
	}
	log.Printf("[sqlite] saved run %s (%d scores, %d trades)", run.RunID, len(run.Scores), len(run.BestTrades))
	return nil
}

func insertScores(ctx context.Context, tx *sql.Tx, runID string, scores []model.CandidateScore) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candidate_scores
			(run_id, seq, take_profit, stop_loss, win_rate, cum_return, trade_count, composite)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, s := range scores {
		_, err := stmt.ExecContext(ctx, runID, i,
			s.Candidate.TakeProfitPct.String(), s.Candidate.StopLossPct.String(),
			s.WinRate, s.CumulativeReturn, s.TradeCount, s.CompositeScore)
		if err != nil {
			return fmt.Errorf("sqlite insert score %s: %w", s.Candidate, err)
		}
	}
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
