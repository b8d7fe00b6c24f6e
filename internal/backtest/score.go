package backtest

import (
	"fmt"

	"signalopt/internal/model"
)

// Weights combine the normalized metrics into the composite score.
type Weights struct {
	WinRate float64 `json:"win_rate" validate:"gte=0"`
	Return  float64 `json:"return" validate:"gte=0"`
}

// DefaultWeights is an even split.
func DefaultWeights() Weights {
	return Weights{WinRate: 0.5, Return: 0.5}
}

// Validate requires non-negative weights with a positive sum.
func (w Weights) Validate() error {
	if w.WinRate < 0 || w.Return < 0 || w.WinRate+w.Return <= 0 {
		return fmt.Errorf("%w: weights win=%g return=%g", ErrInvalidParameter, w.WinRate, w.Return)
	}
	return nil
}

// ScoreTrades computes the raw metrics for one candidate's trades.
// CompositeScore is left at 0; see Normalize.
func ScoreTrades(c model.ParameterCandidate, trades []model.TradeRecord) model.CandidateScore {
	s := model.CandidateScore{Candidate: c, TradeCount: len(trades)}
	if len(trades) == 0 {
		return s
	}
	wins := 0
	equity := 1.0
	for i := range trades {
		if trades[i].Won() {
			wins++
		}
		// Sequential compounding in chronological order.
		equity *= 1 + trades[i].ReturnPct.InexactFloat64()
	}
	s.WinRate = float64(wins) / float64(len(trades))
	s.CumulativeReturn = equity - 1
	return s
}

// Normalize min-max rescales win rate and cumulative return across the
// candidates that traded and writes CompositeScore in place. Candidates
// without trades are excluded from the ranges and scored 0. When a metric
// is identical across all traded candidates it normalizes to 1.
func Normalize(scores []model.CandidateScore, w Weights) {
	first := true
	var minW, maxW, minR, maxR float64
	for i := range scores {
		s := &scores[i]
		if s.TradeCount == 0 {
			continue
		}
		if first {
			minW, maxW = s.WinRate, s.WinRate
			minR, maxR = s.CumulativeReturn, s.CumulativeReturn
			first = false
			continue
		}
		minW, maxW = min(minW, s.WinRate), max(maxW, s.WinRate)
		minR, maxR = min(minR, s.CumulativeReturn), max(maxR, s.CumulativeReturn)
	}

	for i := range scores {
		s := &scores[i]
		if s.TradeCount == 0 {
			s.CompositeScore = 0
			continue
		}
		s.CompositeScore = w.WinRate*rescale(s.WinRate, minW, maxW) +
			w.Return*rescale(s.CumulativeReturn, minR, maxR)
	}
}

func rescale(x, lo, hi float64) float64 {
	if hi == lo {
		return 1
	}
	return (x - lo) / (hi - lo)
}

// Better reports whether a ranks strictly ahead of b: any traded candidate
// beats an idle one, then higher composite, larger cumulative return,
// smaller stop-loss, smaller take-profit.
func Better(a, b model.CandidateScore) bool {
	if (a.TradeCount > 0) != (b.TradeCount > 0) {
		return a.TradeCount > 0
	}
	if a.CompositeScore != b.CompositeScore {
		return a.CompositeScore > b.CompositeScore
	}
	if a.CumulativeReturn != b.CumulativeReturn {
		return a.CumulativeReturn > b.CumulativeReturn
	}
	if c := a.Candidate.StopLossPct.Cmp(b.Candidate.StopLossPct); c != 0 {
		return c < 0
	}
	return a.Candidate.TakeProfitPct.LessThan(b.Candidate.TakeProfitPct)
}

// SelectBest returns the index of the winning score, or ErrNoTrades when
// no candidate traded.
func SelectBest(scores []model.CandidateScore) (int, error) {
	best := -1
	for i := range scores {
		if scores[i].TradeCount == 0 {
			continue
		}
		if best < 0 || Better(scores[i], scores[best]) {
			best = i
		}
	}
	if best < 0 {
		return -1, ErrNoTrades
	}
	return best, nil
}
