package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one daily close for a symbol.
// Close is fixed-point to keep exit thresholds reproducible.
type PricePoint struct {
	Symbol string          `json:"symbol"`
	TS     time.Time       `json:"ts"` // trading date, UTC midnight
	Close  decimal.Decimal `json:"close"`
}

// CloseFloat returns the close as float64 for indicator math.
func (p *PricePoint) CloseFloat() float64 {
	return p.Close.InexactFloat64()
}

// JSON returns the JSON-encoded price point (ignoring errors).
func (p *PricePoint) JSON() []byte {
	b, _ := json.Marshal(p)
	return b
}

// ErrUnordered is returned for a series whose timestamps are not strictly
// increasing.
var ErrUnordered = errors.New("price timestamps not strictly increasing")

// CheckOrdered fails at the first bar whose TS does not follow its
// predecessor's.
func CheckOrdered(points []PricePoint) error {
	for i := 1; i < len(points); i++ {
		if !points[i].TS.After(points[i-1].TS) {
			return fmt.Errorf("%w: bar %d (%s) after %s", ErrUnordered, i,
				points[i].TS.Format(time.DateOnly), points[i-1].TS.Format(time.DateOnly))
		}
	}
	return nil
}

// TradingDate truncates t to midnight UTC of its calendar day.
func TradingDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
