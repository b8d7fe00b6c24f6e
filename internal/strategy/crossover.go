// Package strategy turns MACD frames into discrete entry signals.
//
// Detector emits one SignalEvent per IndicatorFrame:
//
//	LONG_ENTRY  when diff crosses from <= 0 to > 0 (oscillator above signal line)
//	SHORT_ENTRY when diff crosses from >= 0 to < 0
//	NONE        otherwise, including the first frame and flat stretches
//
// where diff = oscillator - signal line. Optional filters can suppress
// entries that fire on the wrong side of the zero line or of a trend EMA.
package strategy

import (
	"iter"

	"signalopt/internal/model"
)

// Filter holds the optional entry gates. The zero value disables both.
type Filter struct {
	// ZeroLine allows longs only while the oscillator is below zero and
	// shorts only while it is above zero.
	ZeroLine bool `json:"zero_line"`

	// Trend allows longs only when close > trend EMA and shorts only when
	// close < trend EMA. Frames without a ready trend EMA never enter.
	Trend bool `json:"trend"`
}

// Detector is stateless; Events can be ranged any number of times.
type Detector struct {
	symbol string
	filter Filter
}

// NewDetector creates a detector that stamps events with symbol.
func NewDetector(symbol string, f Filter) *Detector {
	return &Detector{symbol: symbol, filter: f}
}

// Classify applies the sign-change rule to consecutive diffs.
func Classify(prevDiff, diff float64) model.SignalKind {
	switch {
	case prevDiff <= 0 && diff > 0:
		return model.SignalLongEntry
	case prevDiff >= 0 && diff < 0:
		return model.SignalShortEntry
	default:
		return model.SignalNone
	}
}

// Events lazily yields one event per frame.
func (d *Detector) Events(frames []model.IndicatorFrame) iter.Seq[model.SignalEvent] {
	return func(yield func(model.SignalEvent) bool) {
		for i := range frames {
			kind := model.SignalNone
			if i > 0 {
				kind = Classify(frames[i-1].Histogram(), frames[i].Histogram())
				kind = d.gate(kind, &frames[i])
			}
			if !yield(model.SignalEvent{Symbol: d.symbol, TS: frames[i].TS, Kind: kind}) {
				return
			}
		}
	}
}

// Collect materializes Events into a slice for sharing across simulations.
func (d *Detector) Collect(frames []model.IndicatorFrame) []model.SignalEvent {
	out := make([]model.SignalEvent, 0, len(frames))
	for ev := range d.Events(frames) {
		out = append(out, ev)
	}
	return out
}

// Latest returns the event for the final frame. ok is false when there are
// no frames.
func (d *Detector) Latest(frames []model.IndicatorFrame) (ev model.SignalEvent, ok bool) {
	n := len(frames)
	if n == 0 {
		return model.SignalEvent{}, false
	}
	// Only the last two frames matter.
	for ev = range d.Events(frames[max(0, n-2):]) {
	}
	return ev, true
}

func (d *Detector) gate(kind model.SignalKind, f *model.IndicatorFrame) model.SignalKind {
	if kind == model.SignalNone {
		return kind
	}
	long := kind == model.SignalLongEntry

	if d.filter.ZeroLine {
		if long && f.Oscillator >= 0 {
			return model.SignalNone
		}
		if !long && f.Oscillator <= 0 {
			return model.SignalNone
		}
	}
	if d.filter.Trend {
		if !f.TrendReady {
			return model.SignalNone
		}
		if long && f.Close <= f.TrendEMA {
			return model.SignalNone
		}
		if !long && f.Close >= f.TrendEMA {
			return model.SignalNone
		}
	}
	return kind
}
