package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"signalopt/internal/model"
)

// insertTrades journals simulated trades for a run.
func insertTrades(ctx context.Context, tx *sql.Tx, runID, symbol string, trades []model.TradeRecord) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades
			(run_id, symbol, side, entry_ts, entry_price, exit_ts, exit_price, exit_reason, return_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range trades {
		_, err := stmt.ExecContext(ctx, runID, symbol, string(t.Side),
			t.EntryTS.Unix(), t.EntryPrice.String(),
			t.ExitTS.Unix(), t.ExitPrice.String(),
			string(t.ExitReason), t.ReturnPct.String())
		if err != nil {
			return fmt.Errorf("sqlite insert trade: %w", err)
		}
	}
	return nil
}

// Trades returns the journaled trades of a run in entry order.
func (r *Reader) Trades(ctx context.Context, runID string) ([]model.TradeRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT side, entry_ts, entry_price, exit_ts, exit_price, exit_reason, return_pct
		FROM trades
		WHERE run_id = ?
		ORDER BY entry_ts ASC, id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query trades: %w", err)
	}
	defer rows.Close()

	var trades []model.TradeRecord
	for rows.Next() {
		var (
			t                       model.TradeRecord
			side, reason            string
			entryTS, exitTS         int64
			entryPx, exitPx, retPct string
		)
		if err := rows.Scan(&side, &entryTS, &entryPx, &exitTS, &exitPx, &reason, &retPct); err != nil {
			return nil, fmt.Errorf("sqlite scan trade: %w", err)
		}
		t.Side = model.Side(side)
		t.ExitReason = model.ExitReason(reason)
		t.EntryTS = time.Unix(entryTS, 0).UTC()
		t.ExitTS = time.Unix(exitTS, 0).UTC()
		if t.EntryPrice, err = decimal.NewFromString(entryPx); err != nil {
			return nil, fmt.Errorf("sqlite trade entry price %q: %w", entryPx, err)
		}
		if t.ExitPrice, err = decimal.NewFromString(exitPx); err != nil {
			return nil, fmt.Errorf("sqlite trade exit price %q: %w", exitPx, err)
		}
		if t.ReturnPct, err = decimal.NewFromString(retPct); err != nil {
			return nil, fmt.Errorf("sqlite trade return %q: %w", retPct, err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
