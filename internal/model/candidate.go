package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ParameterCandidate is one (take-profit, stop-loss) pair, both as
// positive fractions (0.01 = 1%).
type ParameterCandidate struct {
	TakeProfitPct decimal.Decimal `json:"take_profit_pct"`
	StopLossPct   decimal.Decimal `json:"stop_loss_pct"`
}

// String formats the pair as percentages, e.g. "tp=1.5% sl=2%".
func (c ParameterCandidate) String() string {
	hundred := decimal.NewFromInt(100)
	return "tp=" + c.TakeProfitPct.Mul(hundred).String() + "% sl=" + c.StopLossPct.Mul(hundred).String() + "%"
}

// CandidateScore is the evaluation of one candidate in one optimization run.
type CandidateScore struct {
	Candidate        ParameterCandidate `json:"candidate"`
	WinRate          float64            `json:"win_rate"`
	CumulativeReturn float64            `json:"cumulative_return"`
	TradeCount       int                `json:"trade_count"`
	CompositeScore   float64            `json:"composite_score"`
}

// ActiveParams are the risk parameters handed to the live-trading collaborator.
type ActiveParams struct {
	Symbol     string             `json:"symbol"`
	Candidate  ParameterCandidate `json:"candidate"`
	Score      CandidateScore     `json:"score"`
	Allocation float64            `json:"allocation"` // fraction of balance per entry
	RunID      string             `json:"run_id"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// LatestKey returns the Redis key holding the active params for the symbol.
func (p *ActiveParams) LatestKey() string {
	return "params:active:" + p.Symbol
}

// PubSubChannel returns "pub:params:{symbol}".
func (p *ActiveParams) PubSubChannel() string {
	return ParamsChannel(p.Symbol)
}

// JSON returns the JSON-encoded params.
func (p *ActiveParams) JSON() []byte {
	b, _ := json.Marshal(p)
	return b
}

// ParamsChannel returns the PubSub channel for a symbol's params.
func ParamsChannel(symbol string) string {
	return "pub:params:" + symbol
}
