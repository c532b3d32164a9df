package optimizer

import (
	"context"

	"go.uber.org/zap"

	"atrbacktest/internal/config"
	"atrbacktest/internal/domain"
)

// GridSearch evaluates the full Cartesian product of the candidate lists,
// every combination exactly once. Evaluations are pure and independent, so
// results stream in from the worker pool as they complete; ranking happens
// once at the end.
type GridSearch struct {
	Space   []Dimension
	Workers int
	Log     *zap.SugaredLogger
}

func (g *GridSearch) Optimize(ctx context.Context, ev Evaluator) (*SearchResult, error) {
	if err := validateSpace(g.Space); err != nil {
		return nil, err
	}
	log := g.Log
	if log == nil {
		log = zap.S()
	}
	sets := expand(g.Space)
	log.Infow("starting grid search", "dimensions", len(g.Space), "combinations", len(sets))
	evals := evaluateAll(ctx, ev, sets, g.Workers, 0, log)
	return rank(evals), nil
}

// expand builds the Cartesian product in deterministic order: the last
// dimension varies fastest.
func expand(space []Dimension) []config.ParameterSet {
	sets := []config.ParameterSet{{}}
	for _, dim := range space {
		next := make([]config.ParameterSet, 0, len(sets)*len(dim.Values))
		for _, base := range sets {
			for _, value := range dim.Values {
				ps := base.Clone()
				ps[dim.Field] = value
				next = append(next, ps)
			}
		}
		sets = next
	}
	return sets
}

func validateSpace(space []Dimension) error {
	if len(space) == 0 {
		return &domain.ConfigurationError{Field: "space", Reason: "no dimensions to search"}
	}
	for _, dim := range space {
		if !dim.Field.Known() {
			return &domain.ConfigurationError{Field: string(dim.Field), Reason: "unknown parameter field"}
		}
		if len(dim.Values) == 0 {
			return &domain.ConfigurationError{Field: string(dim.Field), Reason: "no candidate values"}
		}
	}
	return nil
}
