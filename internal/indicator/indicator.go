// Package indicator computes the MACD pipeline over daily closes.
//
// The building block is a streaming EMA (O(1) per update). Compute folds a
// close series through three of them to produce IndicatorFrames.
package indicator

// Indicator is a streaming single-value indicator.
type Indicator interface {
	// Name returns the indicator name (e.g., "EMA_12").
	Name() string

	// Update feeds the next input value.
	Update(x float64)

	// Value returns the current value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true once the warm-up is complete.
	Ready() bool
}
