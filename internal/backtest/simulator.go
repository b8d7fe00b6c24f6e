// Package backtest replays daily closes against entry signals and searches
// the take-profit / stop-loss grid for the best-scoring pair.
//
// Fill policy: entries fill at the close of the signal bar. Exits are
// checked from the following bar on, against that bar's close.
package backtest

import (
	"fmt"

	"github.com/shopspring/decimal"

	"signalopt/internal/model"
)

// SimResult is the outcome of one simulated run.
type SimResult struct {
	Trades []model.TradeRecord

	// OpenAtEnd is true when the series ended with a position open; the
	// last trade was then force-closed with END_OF_DATA.
	OpenAtEnd bool
}

// Simulator walks a price series bar by bar with at most one open position.
// It holds no per-run state and is safe for concurrent use.
type Simulator struct {
	longOnly bool
}

// NewSimulator creates a simulator. With longOnly, SHORT_ENTRY is ignored.
func NewSimulator(longOnly bool) *Simulator {
	return &Simulator{longOnly: longOnly}
}

type position struct {
	side  model.Side
	ts    int // index into points
	price decimal.Decimal
}

// returnAt is the unrealized return at close, positive when in profit.
func (p *position) returnAt(close decimal.Decimal) decimal.Decimal {
	if p.side == model.SideShort {
		return p.price.Sub(close).Div(p.price)
	}
	return close.Sub(p.price).Div(p.price)
}

// Run simulates one candidate. events are matched to points by timestamp;
// events without a matching bar are ignored. An invalid candidate or an
// unordered series is reported before any work.
func (s *Simulator) Run(points []model.PricePoint, events []model.SignalEvent, c model.ParameterCandidate) (SimResult, error) {
	if err := ValidateCandidate(c); err != nil {
		return SimResult{}, err
	}
	if err := model.CheckOrdered(points); err != nil {
		return SimResult{}, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	takeProfit := c.TakeProfitPct
	stopLoss := c.StopLossPct.Neg()

	var res SimResult
	var pos *position
	ei := 0

	closeAt := func(i int, reason model.ExitReason, ret decimal.Decimal) {
		res.Trades = append(res.Trades, model.TradeRecord{
			Side:       pos.side,
			EntryTS:    points[pos.ts].TS,
			EntryPrice: pos.price,
			ExitTS:     points[i].TS,
			ExitPrice:  points[i].Close,
			ExitReason: reason,
			ReturnPct:  ret,
		})
		pos = nil
	}

	for i := range points {
		bar := &points[i]

		for ei < len(events) && events[ei].TS.Before(bar.TS) {
			ei++
		}
		var ev *model.SignalEvent
		if ei < len(events) && events[ei].TS.Equal(bar.TS) {
			ev = &events[ei]
		}

		if pos != nil {
			ret := pos.returnAt(bar.Close)
			switch {
			case ret.GreaterThanOrEqual(takeProfit):
				closeAt(i, model.ExitTakeProfit, ret)
			case ret.LessThanOrEqual(stopLoss):
				closeAt(i, model.ExitStopLoss, ret)
			}
			// One position event per bar: a closing bar never re-enters,
			// and entries while in position are dropped.
			continue
		}

		if ev == nil || !bar.Close.IsPositive() {
			continue
		}
		switch ev.Kind {
		case model.SignalLongEntry:
			pos = &position{side: model.SideLong, ts: i, price: bar.Close}
		case model.SignalShortEntry:
			if !s.longOnly {
				pos = &position{side: model.SideShort, ts: i, price: bar.Close}
			}
		}
	}

	if pos != nil {
		last := len(points) - 1
		closeAt(last, model.ExitEndOfData, pos.returnAt(points[last].Close))
		res.OpenAtEnd = true
	}
	return res, nil
}
