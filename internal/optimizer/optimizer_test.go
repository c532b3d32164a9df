package optimizer

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atrbacktest/internal/config"
	"atrbacktest/internal/domain"
)

// stubEvaluator records every parameter set it sees and scores it with a
// pluggable function. Safe for concurrent use.
type stubEvaluator struct {
	mu    sync.Mutex
	calls []config.ParameterSet
	score func(config.ParameterSet) float64
	fail  func(config.ParameterSet) error
}

func (s *stubEvaluator) Evaluate(params config.ParameterSet) (*Evaluation, error) {
	s.mu.Lock()
	s.calls = append(s.calls, params.Clone())
	s.mu.Unlock()

	if s.fail != nil {
		if err := s.fail(params); err != nil {
			return nil, err
		}
	}
	score := 0.0
	if s.score != nil {
		score = s.score(params)
	}
	return &Evaluation{ID: uuid.New(), Params: params.Clone(), Score: score}, nil
}

func (s *stubEvaluator) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestRank(t *testing.T) {
	evals := []*Evaluation{
		{Score: math.NaN(), seq: 0},
		{Score: 1, seq: 1},
		{Score: 1, seq: 2},
		{Score: 2, seq: 3},
	}

	result := rank(evals)

	require.Len(t, result.Evaluations, 4)
	assert.Equal(t, float64(2), result.Evaluations[0].Score)
	assert.Equal(t, 1, result.Evaluations[1].seq)
	assert.Equal(t, 2, result.Evaluations[2].seq)
	assert.True(t, math.IsNaN(result.Evaluations[3].Score))
	assert.Same(t, result.Evaluations[0], result.Best)
}

func TestBacktestEvaluator(t *testing.T) {
	bars := []domain.PriceBar{
		{
			Symbol:     "EURUSD",
			High:       101,
			Low:        99,
			Close:      100,
			Volume:     1000,
			LongSignal: true,
			Indicators: map[string]float64{domain.ATRColumn: 2},
		},
		{
			Symbol: "EURUSD",
			High:   105,
			Low:    96,
			Close:  100,
			Volume: 1000,
		},
	}
	params := config.ParameterSet{
		config.FieldStopLossValue:   1.5,
		config.FieldTakeProfitValue: 2,
	}

	t.Run("scores a completed run", func(t *testing.T) {
		ev := &BacktestEvaluator{
			Bars:       bars,
			BaseConfig: config.Default(),
			Objective:  NetProfitObjective,
		}

		eval, err := ev.Evaluate(params)

		require.NoError(t, err)
		// the single trade stops out for -3
		assert.InDelta(t, -3, eval.Score, 1e-9)
		assert.Equal(t, float64(1), eval.Metrics["total_trades"])
	})

	t.Run("vectorized engine scores identically", func(t *testing.T) {
		ev := &BacktestEvaluator{
			Bars:       bars,
			BaseConfig: config.Default(),
			Objective:  NetProfitObjective,
			Vectorized: true,
		}

		eval, err := ev.Evaluate(params)

		require.NoError(t, err)
		assert.InDelta(t, -3, eval.Score, 1e-9)
	})

	t.Run("unknown parameter field fails", func(t *testing.T) {
		ev := &BacktestEvaluator{
			Bars:       bars,
			BaseConfig: config.Default(),
			Objective:  NetProfitObjective,
		}

		_, err := ev.Evaluate(config.ParameterSet{"bogus.field": 1})

		var cfgErr *domain.ConfigurationError
		require.True(t, errors.As(err, &cfgErr))
	})
}

func TestObjectiveByName(t *testing.T) {
	metrics := map[string]float64{
		"sharpe_ratio": 1.5,
		"net_profit":   40,
		"max_drawdown": 0.2,
	}

	for name, want := range map[string]float64{
		"sharpe_ratio": 1.5,
		"net_profit":   40,
		"max_drawdown": -0.2,
	} {
		obj, err := ObjectiveByName(name)
		require.NoError(t, err)
		assert.InDelta(t, want, obj(metrics), 1e-9, name)
	}

	obj, err := ObjectiveByName("profit_factor")
	require.NoError(t, err)
	assert.True(t, math.IsInf(obj(metrics), -1), "missing metric never outranks a real score")

	_, err = ObjectiveByName("alpha")
	require.Error(t, err)
}
