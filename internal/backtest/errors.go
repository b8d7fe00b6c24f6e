package backtest

import "errors"

var (
	// ErrInsufficientData is returned when the history is empty or does not
	// outlast the indicator warm-up.
	ErrInsufficientData = errors.New("backtest: insufficient data")

	// ErrEmptyCandidateGrid is returned when either grid axis is empty.
	ErrEmptyCandidateGrid = errors.New("backtest: empty candidate grid")

	// ErrInvalidParameter is returned for non-positive take-profit or
	// stop-loss values and invalid score weights.
	ErrInvalidParameter = errors.New("backtest: invalid parameter")

	// ErrNoTrades is returned when no candidate produced a single trade.
	ErrNoTrades = errors.New("backtest: no candidate produced a trade")
)
