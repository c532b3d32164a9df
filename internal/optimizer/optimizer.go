package optimizer

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"atrbacktest/internal/backtest"
	"atrbacktest/internal/calculator"
	"atrbacktest/internal/config"
	"atrbacktest/internal/domain"
)

// Objective scores one run's metrics; higher is better.
type Objective func(metrics map[string]float64) float64

// Dimension is one axis of the search space: a tunable field and its
// ordered candidate values.
type Dimension struct {
	Field  config.Field `yaml:"field"`
	Values []float64    `yaml:"values"`
}

// Evaluation is the scored outcome of one parameter set. A set whose run
// could not complete keeps a −Inf score and carries the error.
type Evaluation struct {
	ID      uuid.UUID           `json:"id"`
	Params  config.ParameterSet `json:"params"`
	Metrics map[string]float64  `json:"metrics,omitempty"`
	Score   float64             `json:"score"`
	Err     error               `json:"-"`

	seq int
}

// Evaluator runs one parameter set to completion and scores it.
// Implementations must be safe for concurrent use: evaluations share no
// mutable state.
type Evaluator interface {
	Evaluate(params config.ParameterSet) (*Evaluation, error)
}

// Searcher abstracts over the closed set of search strategies (grid and
// genetic).
type Searcher interface {
	Optimize(ctx context.Context, ev Evaluator) (*SearchResult, error)
}

// SearchResult ranks every evaluation seen during the search, best first.
// Ties keep first-seen order.
type SearchResult struct {
	Evaluations []*Evaluation `json:"evaluations"`
	Best        *Evaluation   `json:"best"`
}

// BacktestEvaluator materializes a parameter set into a full strategy
// configuration, runs the simulator over the shared read-only bar series
// and scores the analyzed result. Each evaluation builds a fresh
// engine/portfolio pair; nothing is shared across runs but the immutable
// bars.
type BacktestEvaluator struct {
	Bars       []domain.PriceBar
	BaseConfig config.StrategyConfig
	Objective  Objective
	Vectorized bool
	Log        *zap.SugaredLogger
}

func (b *BacktestEvaluator) Evaluate(params config.ParameterSet) (*Evaluation, error) {
	cfg := b.BaseConfig
	if err := params.Apply(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply parameters: %w", err)
	}

	var (
		run *backtest.Result
		err error
	)
	if b.Vectorized {
		var engine *backtest.VectorEngine
		engine, err = backtest.NewVectorEngine(cfg, b.Log)
		if err == nil {
			run, err = engine.Run(b.Bars)
		}
	} else {
		var engine *backtest.Engine
		engine, err = backtest.NewEngine(cfg, b.Log)
		if err == nil {
			run, err = engine.Run(b.Bars)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to run simulation: %w", err)
	}

	metrics := calculator.Analyze(run, cfg.Analysis).Metrics()
	return &Evaluation{
		ID:      uuid.New(),
		Params:  params.Clone(),
		Metrics: metrics,
		Score:   b.Objective(metrics),
	}, nil
}

// evaluateAll scores every parameter set across a bounded worker pool and
// waits for all of them. Sets keep their submission order in the output.
// Cancelling ctx stops further submissions; in-flight evaluations run to
// completion. A failed or panicking evaluation is kept with a −Inf score so
// one bad parameter set cannot abort the search.
func evaluateAll(ctx context.Context, ev Evaluator, sets []config.ParameterSet, workers, baseSeq int, log *zap.SugaredLogger) []*Evaluation {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	out := make([]*Evaluation, len(sets))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = evaluateOne(ev, sets[i], baseSeq+i, log)
			}
		}()
	}

submit:
	for i := range sets {
		select {
		case <-ctx.Done():
			break submit
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	done := out[:0]
	for _, e := range out {
		if e != nil {
			done = append(done, e)
		}
	}
	return done
}

func evaluateOne(ev Evaluator, params config.ParameterSet, seq int, log *zap.SugaredLogger) (result *Evaluation) {
	defer func() {
		if r := recover(); r != nil {
			log.Warnw("evaluation panicked", "params", params, "panic", r)
			result = failedEvaluation(params, seq, fmt.Errorf("evaluation panicked: %v", r))
		}
	}()
	result, err := ev.Evaluate(params)
	if err != nil {
		log.Warnw("evaluation failed", "params", params, "err", err)
		return failedEvaluation(params, seq, err)
	}
	result.seq = seq
	return result
}

func failedEvaluation(params config.ParameterSet, seq int, err error) *Evaluation {
	return &Evaluation{
		ID:     uuid.New(),
		Params: params.Clone(),
		Score:  math.Inf(-1),
		Err:    err,
		seq:    seq,
	}
}

// rank orders evaluations best first. Equal scores keep first-seen order;
// NaN never outranks a real score.
func rank(evals []*Evaluation) *SearchResult {
	ranked := make([]*Evaluation, len(evals))
	copy(ranked, evals)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i].Score, ranked[j].Score
		if a != b {
			return a > b
		}
		return ranked[i].seq < ranked[j].seq
	})
	result := &SearchResult{Evaluations: ranked}
	if len(ranked) > 0 {
		result.Best = ranked[0]
	}
	return result
}
