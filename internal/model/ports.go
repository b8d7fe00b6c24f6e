package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These decouple the engine from SQLite and Redis.

// PriceReader reads ordered daily closes.
type PriceReader interface {
	// ReadPrices returns closes for symbol with from <= ts <= to, ascending.
	// A zero from or to leaves that side unbounded.
	ReadPrices(ctx context.Context, symbol string, from, to time.Time) ([]PricePoint, error)

	// Symbols lists every symbol with stored prices.
	Symbols(ctx context.Context) ([]string, error)
}

// PriceWriter stores daily closes (used by ingest).
type PriceWriter interface {
	WritePrices(ctx context.Context, points []PricePoint) error
}

// RunWriter persists optimization runs.
type RunWriter interface {
	SaveRun(ctx context.Context, run *OptimizationRun) error
}

// Publisher hands signals and active params to the live-trading side.
type Publisher interface {
	PublishSignal(ctx context.Context, ev SignalEvent) error
	PublishParams(ctx context.Context, p ActiveParams) error
}

// ParamsReader reads the active params published for a symbol.
// Returns nil, nil when none exist.
type ParamsReader interface {
	ActiveParams(ctx context.Context, symbol string) (*ActiveParams, error)
}
