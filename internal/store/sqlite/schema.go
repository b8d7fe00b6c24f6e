package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const dsnOptions = "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return db, nil
}

// Prices are stored as decimal strings so thresholds replay exactly.
// Timestamps are unix seconds (UTC midnight for daily bars).
func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS prices (
			symbol TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			close  TEXT    NOT NULL,
			PRIMARY KEY (symbol, ts)
		);

		CREATE TABLE IF NOT EXISTS optimization_runs (
			run_id       TEXT    PRIMARY KEY,
			symbol       TEXT    NOT NULL,
			window_start INTEGER NOT NULL,
			window_end   INTEGER NOT NULL,
			bars         INTEGER NOT NULL,
			take_profit  TEXT    NOT NULL,
			stop_loss    TEXT    NOT NULL,
			win_rate     REAL    NOT NULL,
			cum_return   REAL    NOT NULL,
			trade_count  INTEGER NOT NULL,
			composite    REAL    NOT NULL,
			started_at   INTEGER NOT NULL,
			duration_ms  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_symbol ON optimization_runs(symbol, started_at);

		CREATE TABLE IF NOT EXISTS candidate_scores (
			run_id      TEXT    NOT NULL,
			seq         INTEGER NOT NULL,
			take_profit TEXT    NOT NULL,
			stop_loss   TEXT    NOT NULL,
			win_rate    REAL    NOT NULL,
			cum_return  REAL    NOT NULL,
			trade_count INTEGER NOT NULL,
			composite   REAL    NOT NULL,
			PRIMARY KEY (run_id, seq)
		);

		CREATE TABLE IF NOT EXISTS trades (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id      TEXT    NOT NULL,
			symbol      TEXT    NOT NULL,
			side        TEXT    NOT NULL,
			entry_ts    INTEGER NOT NULL,
			entry_price TEXT    NOT NULL,
			exit_ts     INTEGER NOT NULL,
			exit_price  TEXT    NOT NULL,
			exit_reason TEXT    NOT NULL,
			return_pct  TEXT    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id);
		CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol, entry_ts);
	`)
	return err
}
