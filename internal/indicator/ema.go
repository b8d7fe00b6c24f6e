package indicator

import "strconv"

// EMA calculates an Exponential Moving Average.
// The first value is the SMA of the first period inputs, accumulated as a
// running mean so a constant input yields that constant exactly.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
}

// NewEMA creates a new EMA with smoothing factor 2/(period+1).
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return "EMA_" + strconv.Itoa(e.period) }

func (e *EMA) Update(x float64) {
	e.count++

	if e.count <= e.period {
		// Running mean for the SMA seed
		e.current += (x - e.current) / float64(e.count)
		return
	}

	// prev + α(x - prev) == α·x + (1-α)·prev, and stays exact on a flat input.
	e.current += e.multiplier * (x - e.current)
}

func (e *EMA) Value() float64 {
	if !e.Ready() {
		return 0
	}
	return e.current
}

func (e *EMA) Ready() bool { return e.count >= e.period }

// Period returns the configured period.
func (e *EMA) Period() int { return e.period }

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
}

// EMASeries folds values through an EMA and returns one output per input.
// Outputs before warm-up are 0 and flagged false in ready.
func EMASeries(values []float64, period int) (out []float64, ready []bool) {
	out = make([]float64, len(values))
	ready = make([]bool, len(values))
	if period <= 0 {
		return out, ready
	}
	ema := NewEMA(period)
	for i, v := range values {
		ema.Update(v)
		out[i] = ema.Value()
		ready[i] = ema.Ready()
	}
	return out, ready
}
