package indicator

import (
	"errors"
	"fmt"

	"signalopt/internal/model"
)

// ErrInvalidPeriod is returned for non-positive periods.
var ErrInvalidPeriod = errors.New("indicator: period must be positive")

// Periods configures the MACD pipeline.
type Periods struct {
	Fast   int `json:"fast" validate:"gt=0"`
	Slow   int `json:"slow" validate:"gt=0"`
	Signal int `json:"signal" validate:"gt=0"`

	// Trend is an optional EMA period over closes used by the trend
	// filter. 0 disables it. It does not extend the warm-up.
	Trend int `json:"trend" validate:"gte=0"`
}

// DefaultPeriods returns the classic 12/26/9 configuration.
func DefaultPeriods() Periods {
	return Periods{Fast: 12, Slow: 26, Signal: 9}
}

// Validate checks every period is positive.
func (p Periods) Validate() error {
	if p.Fast <= 0 || p.Slow <= 0 || p.Signal <= 0 {
		return fmt.Errorf("%w: fast=%d slow=%d signal=%d", ErrInvalidPeriod, p.Fast, p.Slow, p.Signal)
	}
	if p.Trend < 0 {
		return fmt.Errorf("%w: trend=%d", ErrInvalidPeriod, p.Trend)
	}
	return nil
}

// Warmup is the number of leading bars that produce no frame.
// The oscillator first exists at index max(fast,slow)-1 and the signal
// line needs Signal oscillator values on top of that.
func (p Periods) Warmup() int {
	return max(p.Fast, p.Slow) + p.Signal - 2
}

// Compute runs the pipeline over points and returns one frame per bar
// after warm-up. Input shorter than the warm-up yields no frames and no
// error; callers decide whether that is fatal. Points must be strictly
// increasing in TS.
func Compute(points []model.PricePoint, p Periods) ([]model.IndicatorFrame, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := model.CheckOrdered(points); err != nil {
		return nil, err
	}
	n := len(points) - p.Warmup()
	if n <= 0 {
		return []model.IndicatorFrame{}, nil
	}

	fast := NewEMA(p.Fast)
	slow := NewEMA(p.Slow)
	sig := NewEMA(p.Signal)
	var trend *EMA
	if p.Trend > 0 {
		trend = NewEMA(p.Trend)
	}

	frames := make([]model.IndicatorFrame, 0, n)
	for i := range points {
		c := points[i].CloseFloat()
		fast.Update(c)
		slow.Update(c)
		if trend != nil {
			trend.Update(c)
		}
		if !fast.Ready() || !slow.Ready() {
			continue
		}

		osc := fast.Value() - slow.Value()
		sig.Update(osc)
		if !sig.Ready() {
			continue
		}

		f := model.IndicatorFrame{
			TS:         points[i].TS,
			Close:      c,
			FastEMA:    fast.Value(),
			SlowEMA:    slow.Value(),
			Oscillator: osc,
			SignalLine: sig.Value(),
		}
		if trend != nil && trend.Ready() {
			f.TrendEMA = trend.Value()
			f.TrendReady = true
		}
		frames = append(frames, f)
	}
	return frames, nil
}
