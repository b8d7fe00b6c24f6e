package model

import "time"

// IndicatorFrame holds the MACD components for one bar after warm-up.
type IndicatorFrame struct {
	TS         time.Time `json:"ts"`
	Close      float64   `json:"close"`
	FastEMA    float64   `json:"fast_ema"`
	SlowEMA    float64   `json:"slow_ema"`
	Oscillator float64   `json:"oscillator"`  // FastEMA - SlowEMA
	SignalLine float64   `json:"signal_line"` // EMA of Oscillator

	// Optional trend EMA over closes, set only when a trend period is configured.
	TrendEMA   float64 `json:"trend_ema,omitempty"`
	TrendReady bool    `json:"trend_ready,omitempty"`
}

// Histogram returns Oscillator - SignalLine.
func (f *IndicatorFrame) Histogram() float64 {
	return f.Oscillator - f.SignalLine
}
