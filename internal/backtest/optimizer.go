package backtest

import (
	"fmt"
	"time"

	"github.com/samber/lo"
	lop "github.com/samber/lo/parallel"

	"signalopt/internal/indicator"
	"signalopt/internal/model"
	"signalopt/internal/strategy"
)

// Config configures an Optimizer.
type Config struct {
	Periods  indicator.Periods
	Filter   strategy.Filter
	LongOnly bool
	Weights  Weights
}

// DefaultConfig returns 12/26/9, long-only, 50/50 weights, no filters.
func DefaultConfig() Config {
	return Config{
		Periods:  indicator.DefaultPeriods(),
		LongOnly: true,
		Weights:  DefaultWeights(),
	}
}

// Hooks receive per-candidate notifications. Functions may be called from
// several goroutines at once.
type Hooks struct {
	CandidateDone func(score model.CandidateScore, elapsed time.Duration)
}

// Result is the outcome of one grid search.
type Result struct {
	Best       model.CandidateScore
	Scores     []model.CandidateScore // grid order, CompositeScore filled
	BestTrades []model.TradeRecord
	OpenAtEnd  bool // best candidate ended with a position open
	Frames     int
}

// Optimizer runs the simulator over every grid candidate in parallel and
// picks the best composite score.
type Optimizer struct {
	cfg   Config
	sim   *Simulator
	hooks Hooks
}

// NewOptimizer validates cfg and builds an Optimizer.
func NewOptimizer(cfg Config, hooks Hooks) (*Optimizer, error) {
	if err := cfg.Periods.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	return &Optimizer{cfg: cfg, sim: NewSimulator(cfg.LongOnly), hooks: hooks}, nil
}

// Config returns the optimizer configuration.
func (o *Optimizer) Config() Config { return o.cfg }

// Signals runs the indicator pipeline and detector once. It returns
// ErrInsufficientData when no frame survives the warm-up.
func (o *Optimizer) Signals(symbol string, points []model.PricePoint) ([]model.IndicatorFrame, []model.SignalEvent, error) {
	frames, err := indicator.Compute(points, o.cfg.Periods)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	if len(frames) == 0 {
		return nil, nil, fmt.Errorf("%w: %d bars, warm-up needs more than %d",
			ErrInsufficientData, len(points), o.cfg.Periods.Warmup())
	}
	events := strategy.NewDetector(symbol, o.cfg.Filter).Collect(frames)
	return frames, events, nil
}

// Optimize computes signals for points and searches grid.
func (o *Optimizer) Optimize(symbol string, points []model.PricePoint, grid Grid) (*Result, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	frames, events, err := o.Signals(symbol, points)
	if err != nil {
		return nil, err
	}
	res, err := o.Evaluate(points, events, grid)
	if err != nil {
		return nil, err
	}
	res.Frames = len(frames)
	return res, nil
}

type outcome struct {
	score  model.CandidateScore
	trades []model.TradeRecord
	open   bool
	err    error
}

// Evaluate scores every candidate against precomputed events. points and
// events are shared read-only across goroutines.
func (o *Optimizer) Evaluate(points []model.PricePoint, events []model.SignalEvent, grid Grid) (*Result, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, ErrInsufficientData
	}

	candidates := grid.Candidates()
	outs := lop.Map(candidates, func(c model.ParameterCandidate, _ int) outcome {
		start := time.Now()
		run, err := o.sim.Run(points, events, c)
		if err != nil {
			return outcome{err: err}
		}
		sc := ScoreTrades(c, run.Trades)
		if o.hooks.CandidateDone != nil {
			o.hooks.CandidateDone(sc, time.Since(start))
		}
		return outcome{score: sc, trades: run.Trades, open: run.OpenAtEnd}
	})

	// Any failed candidate voids the run; dropping it would skew normalization.
	for i, out := range outs {
		if out.err != nil {
			return nil, fmt.Errorf("candidate %s: %w", candidates[i], out.err)
		}
	}

	scores := lo.Map(outs, func(out outcome, _ int) model.CandidateScore { return out.score })
	Normalize(scores, o.cfg.Weights)

	best, err := SelectBest(scores)
	if err != nil {
		return nil, err
	}
	return &Result{
		Best:       scores[best],
		Scores:     scores,
		BestTrades: outs[best].trades,
		OpenAtEnd:  outs[best].open,
	}, nil
}

// Score simulates a single candidate against precomputed events. Its
// CompositeScore is left at 0 because there is nothing to normalize against.
func (o *Optimizer) Score(points []model.PricePoint, events []model.SignalEvent, c model.ParameterCandidate) (model.CandidateScore, SimResult, error) {
	run, err := o.sim.Run(points, events, c)
	if err != nil {
		return model.CandidateScore{}, SimResult{}, err
	}
	return ScoreTrades(c, run.Trades), run, nil
}
