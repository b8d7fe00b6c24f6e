package model

import (
	"encoding/json"
	"time"
)

// SignalKind is the discrete crossover outcome for a bar.
type SignalKind string

const (
	SignalNone       SignalKind = "NONE"
	SignalLongEntry  SignalKind = "LONG_ENTRY"
	SignalShortEntry SignalKind = "SHORT_ENTRY"
)

// SignalEvent is emitted once per IndicatorFrame.
type SignalEvent struct {
	Symbol string     `json:"symbol,omitempty"`
	TS     time.Time  `json:"ts"`
	Kind   SignalKind `json:"kind"`
}

// IsEntry reports whether the event opens a position.
func (e *SignalEvent) IsEntry() bool {
	return e.Kind == SignalLongEntry || e.Kind == SignalShortEntry
}

// PubSubChannel returns the Redis PubSub channel: "pub:signal:{symbol}".
func (e *SignalEvent) PubSubChannel() string {
	return SignalChannel(e.Symbol)
}

// LatestKey returns the Redis key holding the newest event for the symbol.
func (e *SignalEvent) LatestKey() string {
	return "signal:latest:" + e.Symbol
}

// JSON returns the JSON-encoded event.
func (e *SignalEvent) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// SignalChannel returns the PubSub channel for a symbol's signals.
func SignalChannel(symbol string) string {
	return "pub:signal:" + symbol
}
