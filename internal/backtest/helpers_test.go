package backtest

import (
	"time"

	"github.com/shopspring/decimal"

	"signalopt/internal/model"
)

var day0 = time.Date(2019, 1, 2, 0, 0, 0, 0, time.UTC)

func series(closes ...float64) []model.PricePoint {
	pts := make([]model.PricePoint, len(closes))
	for i, c := range closes {
		pts[i] = model.PricePoint{Symbol: "TEST", TS: day0.AddDate(0, 0, i), Close: decimal.NewFromFloat(c)}
	}
	return pts
}

// entries returns one event per bar: the given kinds at the given indices,
// NONE elsewhere.
func entries(pts []model.PricePoint, at map[int]model.SignalKind) []model.SignalEvent {
	evs := make([]model.SignalEvent, len(pts))
	for i := range pts {
		kind := model.SignalNone
		if k, ok := at[i]; ok {
			kind = k
		}
		evs[i] = model.SignalEvent{TS: pts[i].TS, Kind: kind}
	}
	return evs
}

func pct(s string) decimal.Decimal {
	return decimal.RequireFromString(s).Div(decimal.NewFromInt(100))
}

func cand(tp, sl string) model.ParameterCandidate {
	return model.ParameterCandidate{TakeProfitPct: pct(tp), StopLossPct: pct(sl)}
}
