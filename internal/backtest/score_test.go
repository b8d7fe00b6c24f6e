package backtest

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"signalopt/internal/model"
)

func trade(ret string) model.TradeRecord {
	return model.TradeRecord{ReturnPct: pct(ret)}
}

func TestScoreTrades(t *testing.T) {
	c := cand("1", "1")

	s := ScoreTrades(c, nil)
	if s.TradeCount != 0 || s.WinRate != 0 || s.CumulativeReturn != 0 {
		t.Errorf("expected zero score without trades, got %+v", s)
	}

	// (1.10)(0.95)(1.00) - 1 = 0.045
	s = ScoreTrades(c, []model.TradeRecord{trade("10"), trade("-5"), trade("0")})
	if s.TradeCount != 3 {
		t.Errorf("expected 3 trades, got %d", s.TradeCount)
	}
	if math.Abs(s.WinRate-1.0/3.0) > 1e-12 {
		t.Errorf("expected win rate 1/3, got %f", s.WinRate)
	}
	if math.Abs(s.CumulativeReturn-0.045) > 1e-12 {
		t.Errorf("expected compounded 0.045, got %f", s.CumulativeReturn)
	}
}

func TestNormalize(t *testing.T) {
	scores := []model.CandidateScore{
		{Candidate: cand("1", "1"), TradeCount: 4, WinRate: 0.75, CumulativeReturn: 0.10},
		{Candidate: cand("2", "1"), TradeCount: 4, WinRate: 0.25, CumulativeReturn: 0.30},
		{Candidate: cand("3", "1"), TradeCount: 2, WinRate: 0.50, CumulativeReturn: 0.20},
		{Candidate: cand("4", "1"), TradeCount: 0},
	}
	Normalize(scores, DefaultWeights())

	want := []float64{0.5, 0.5, 0.5, 0}
	for i, w := range want {
		if math.Abs(scores[i].CompositeScore-w) > 1e-12 {
			t.Errorf("score %d: composite %f, want %f", i, scores[i].CompositeScore, w)
		}
	}

	Normalize(scores, Weights{WinRate: 1, Return: 0})
	if scores[0].CompositeScore != 1 || scores[1].CompositeScore != 0 {
		t.Errorf("win-rate-only weighting: got %f / %f", scores[0].CompositeScore, scores[1].CompositeScore)
	}
}

func TestNormalize_FlatMetricsScoreOne(t *testing.T) {
	scores := []model.CandidateScore{
		{Candidate: cand("1", "1"), TradeCount: 1, WinRate: 1, CumulativeReturn: 0.015},
		{Candidate: cand("2", "2"), TradeCount: 1, WinRate: 1, CumulativeReturn: 0.015},
	}
	Normalize(scores, DefaultWeights())
	for i := range scores {
		if scores[i].CompositeScore != 1 {
			t.Errorf("score %d: expected 1, got %f", i, scores[i].CompositeScore)
		}
	}
}

func TestBetter_TieBreaks(t *testing.T) {
	base := model.CandidateScore{Candidate: cand("2", "2"), TradeCount: 3, CompositeScore: 0.7, CumulativeReturn: 0.1}

	higher := base
	higher.CompositeScore = 0.8
	if !Better(higher, base) || Better(base, higher) {
		t.Error("higher composite should win")
	}

	richer := base
	richer.CumulativeReturn = 0.2
	if !Better(richer, base) {
		t.Error("equal composite: larger cumulative return should win")
	}

	tighter := base
	tighter.Candidate = cand("5", "1")
	if !Better(tighter, base) {
		t.Error("equal composite and return: smaller stop-loss should win")
	}

	smallerTP := base
	smallerTP.Candidate = cand("1", "2")
	if !Better(smallerTP, base) {
		t.Error("full tie: smaller take-profit should win")
	}
	if Better(base, base) {
		t.Error("a score is not better than itself")
	}

	idle := model.CandidateScore{Candidate: cand("1", "1"), CompositeScore: 5}
	if Better(idle, base) || !Better(base, idle) {
		t.Error("a candidate with trades always beats an idle one")
	}
}

func TestSelectBest(t *testing.T) {
	if _, err := SelectBest(nil); !errors.Is(err, ErrNoTrades) {
		t.Errorf("expected ErrNoTrades, got %v", err)
	}
	idle := []model.CandidateScore{{Candidate: cand("1", "1")}, {Candidate: cand("2", "1")}}
	if _, err := SelectBest(idle); !errors.Is(err, ErrNoTrades) {
		t.Errorf("expected ErrNoTrades for idle grid, got %v", err)
	}

	scores := []model.CandidateScore{
		{Candidate: cand("1", "1")},
		{Candidate: cand("1", "2"), TradeCount: 1, CompositeScore: 0.2},
		{Candidate: cand("2", "1"), TradeCount: 1, CompositeScore: 0.9},
		{Candidate: cand("2", "2"), TradeCount: 1, CompositeScore: 0.9},
	}
	best, err := SelectBest(scores)
	if err != nil {
		t.Fatal(err)
	}
	if best != 2 {
		t.Errorf("expected index 2 (smaller stop-loss on tie), got %d", best)
	}
}

func TestWeights_Validate(t *testing.T) {
	for _, w := range []Weights{{-1, 1}, {1, -1}, {0, 0}} {
		if err := w.Validate(); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("%+v: expected ErrInvalidParameter, got %v", w, err)
		}
	}
	if err := DefaultWeights().Validate(); err != nil {
		t.Errorf("default weights invalid: %v", err)
	}
}

func TestGrid(t *testing.T) {
	if _, err := NewGrid(nil, []decimal.Decimal{pct("1")}); !errors.Is(err, ErrEmptyCandidateGrid) {
		t.Errorf("expected ErrEmptyCandidateGrid, got %v", err)
	}
	if _, err := NewGrid([]decimal.Decimal{pct("1")}, nil); !errors.Is(err, ErrEmptyCandidateGrid) {
		t.Errorf("expected ErrEmptyCandidateGrid, got %v", err)
	}
	if _, err := NewGrid([]decimal.Decimal{pct("1"), pct("0")}, []decimal.Decimal{pct("1")}); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}

	g, err := NewGrid([]decimal.Decimal{pct("1"), pct("2")}, []decimal.Decimal{pct("0.5"), pct("1"), pct("1.5")})
	if err != nil {
		t.Fatal(err)
	}
	cs := g.Candidates()
	if len(cs) != 6 || g.Size() != 6 {
		t.Fatalf("expected 6 candidates, got %d", len(cs))
	}
	if !cs[0].TakeProfitPct.Equal(pct("1")) || !cs[0].StopLossPct.Equal(pct("0.5")) {
		t.Errorf("unexpected first candidate %s", cs[0])
	}
	if !cs[5].TakeProfitPct.Equal(pct("2")) || !cs[5].StopLossPct.Equal(pct("1.5")) {
		t.Errorf("unexpected last candidate %s", cs[5])
	}
}

func TestPercentRange(t *testing.T) {
	r := PercentRange(0.5, 10, 0.5)
	if len(r) != 20 {
		t.Fatalf("expected 20 values, got %d", len(r))
	}
	if !r[0].Equal(pct("0.5")) || !r[19].Equal(pct("10")) {
		t.Errorf("unexpected bounds %s..%s", r[0], r[19])
	}
	if PercentRange(1, 2, 0) != nil {
		t.Error("expected nil for zero step")
	}
}

func TestParsePercentList(t *testing.T) {
	got, err := ParsePercentList(" 0.5, 1%,,2.25 ")
	if err != nil {
		t.Fatal(err)
	}
	want := []decimal.Decimal{pct("0.5"), pct("1"), pct("2.25")}
	if len(got) != len(want) {
		t.Fatalf("expected %d values, got %d", len(want), len(got))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("value %d: got %s, want %s", i, got[i], want[i])
		}
	}
	if _, err := ParsePercentList("1,abc"); err == nil {
		t.Error("expected parse error")
	}
}
