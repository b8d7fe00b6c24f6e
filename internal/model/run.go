package model

import "time"

// OptimizationRun is the persisted outcome of one optimize-mode invocation
// for one symbol.
type OptimizationRun struct {
	RunID       string           `json:"run_id"`
	Symbol      string           `json:"symbol"`
	WindowStart time.Time        `json:"window_start"`
	WindowEnd   time.Time        `json:"window_end"`
	Bars        int              `json:"bars"`
	Best        CandidateScore   `json:"best"`
	Scores      []CandidateScore `json:"scores"`
	BestTrades  []TradeRecord    `json:"best_trades"`
	StartedAt   time.Time        `json:"started_at"`
	Duration    time.Duration    `json:"duration"`
}
