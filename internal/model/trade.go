package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a simulated position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// ExitReason records why a simulated position was closed.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "TAKE_PROFIT"
	ExitStopLoss   ExitReason = "STOP_LOSS"
	ExitEndOfData  ExitReason = "END_OF_DATA"
)

// TradeRecord is a closed simulated trade. Immutable once created.
type TradeRecord struct {
	Side       Side            `json:"side"`
	EntryTS    time.Time       `json:"entry_ts"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitTS     time.Time       `json:"exit_ts"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	ExitReason ExitReason      `json:"exit_reason"`
	ReturnPct  decimal.Decimal `json:"return_pct"` // realized fraction, 0.015 = +1.5%
}

// Won reports whether the trade realized a positive return.
func (t *TradeRecord) Won() bool {
	return t.ReturnPct.IsPositive()
}

// HoldingDays is the holding period in calendar days.
func (t *TradeRecord) HoldingDays() int {
	return int(t.ExitTS.Sub(t.EntryTS).Hours() / 24)
}
