package backtest

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"signalopt/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Grid is the discretized (take-profit, stop-loss) search space. Values
// are positive fractions (0.01 = 1%).
type Grid struct {
	TakeProfit []decimal.Decimal
	StopLoss   []decimal.Decimal
}

// NewGrid validates both axes.
func NewGrid(takeProfit, stopLoss []decimal.Decimal) (Grid, error) {
	g := Grid{TakeProfit: takeProfit, StopLoss: stopLoss}
	if err := g.Validate(); err != nil {
		return Grid{}, err
	}
	return g, nil
}

// Validate rejects empty axes and non-positive values.
func (g Grid) Validate() error {
	if len(g.TakeProfit) == 0 || len(g.StopLoss) == 0 {
		return fmt.Errorf("%w: take-profit=%d stop-loss=%d values",
			ErrEmptyCandidateGrid, len(g.TakeProfit), len(g.StopLoss))
	}
	for _, v := range g.TakeProfit {
		if !v.IsPositive() {
			return fmt.Errorf("%w: take-profit %s must be positive", ErrInvalidParameter, v)
		}
	}
	for _, v := range g.StopLoss {
		if !v.IsPositive() {
			return fmt.Errorf("%w: stop-loss %s must be positive", ErrInvalidParameter, v)
		}
	}
	return nil
}

// Size returns the number of candidates.
func (g Grid) Size() int {
	return len(g.TakeProfit) * len(g.StopLoss)
}

// Candidates enumerates T×S, take-profit major, in axis order.
func (g Grid) Candidates() []model.ParameterCandidate {
	out := make([]model.ParameterCandidate, 0, g.Size())
	for _, tp := range g.TakeProfit {
		for _, sl := range g.StopLoss {
			out = append(out, model.ParameterCandidate{TakeProfitPct: tp, StopLossPct: sl})
		}
	}
	return out
}

// PercentRange builds from, from+step, ... <= to, given in percent and
// returned as fractions. PercentRange(0.5, 10, 0.5) yields 0.005..0.1.
func PercentRange(from, to, step float64) []decimal.Decimal {
	f := decimal.NewFromFloat(from)
	t := decimal.NewFromFloat(to)
	s := decimal.NewFromFloat(step)
	if !s.IsPositive() {
		return nil
	}
	var out []decimal.Decimal
	for v := f; v.LessThanOrEqual(t); v = v.Add(s) {
		out = append(out, v.Div(hundred))
	}
	return out
}

// ParsePercentList parses "0.5,1,1.5" (percent) into fractions.
func ParsePercentList(s string) ([]decimal.Decimal, error) {
	var out []decimal.Decimal
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(p), "%"))
		if p == "" {
			continue
		}
		v, err := decimal.NewFromString(p)
		if err != nil {
			return nil, fmt.Errorf("parse percent %q: %w", p, err)
		}
		out = append(out, v.Div(hundred))
	}
	return out, nil
}

// ValidateCandidate rejects a candidate with a non-positive axis.
func ValidateCandidate(c model.ParameterCandidate) error {
	if !c.TakeProfitPct.IsPositive() || !c.StopLossPct.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidParameter, c)
	}
	return nil
}
