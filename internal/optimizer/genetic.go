package optimizer

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"atrbacktest/internal/config"
	"atrbacktest/internal/domain"
)

// Genetic searches the space with a fixed-size population: every generation
// evaluates all individuals behind a synchronization barrier, samples
// parents fitness-proportionally, recombines them gene by gene and applies
// single-gene resample mutation. Replacement is generational. The best
// evaluation is tracked across the whole search, not just the final
// generation.
type Genetic struct {
	Space          []Dimension
	PopulationSize int
	Generations    int
	MutationRate   float64
	Workers        int

	// Seed fixes the random source for reproducible searches; zero seeds
	// from the clock.
	Seed int64
	Log  *zap.SugaredLogger
}

func (g *Genetic) Optimize(ctx context.Context, ev Evaluator) (*SearchResult, error) {
	if err := validateSpace(g.Space); err != nil {
		return nil, err
	}
	if g.PopulationSize < 2 {
		return nil, &domain.ConfigurationError{Field: "population_size", Reason: "must be at least 2"}
	}
	if g.Generations < 1 {
		return nil, &domain.ConfigurationError{Field: "generations", Reason: "must be at least 1"}
	}
	if g.MutationRate < 0 || g.MutationRate > 1 {
		return nil, &domain.ConfigurationError{Field: "mutation_rate", Reason: "must be in [0, 1]"}
	}
	log := g.Log
	if log == nil {
		log = zap.S()
	}

	seed := g.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	population := g.seedPopulation(rng)
	var all []*Evaluation
	for gen := 0; gen < g.Generations; gen++ {
		evals := evaluateAll(ctx, ev, population, g.Workers, len(all), log)
		all = append(all, evals...)
		if ctx.Err() != nil || len(evals) == 0 {
			break
		}
		log.Infow("generation evaluated", "generation", gen, "best", bestScore(evals))
		if gen == g.Generations-1 {
			break
		}
		population = g.nextGeneration(rng, evals)
	}
	return rank(all), nil
}

func (g *Genetic) seedPopulation(rng *rand.Rand) []config.ParameterSet {
	population := make([]config.ParameterSet, g.PopulationSize)
	for i := range population {
		ps := config.ParameterSet{}
		for _, dim := range g.Space {
			ps[dim.Field] = dim.Values[rng.Intn(len(dim.Values))]
		}
		population[i] = ps
	}
	return population
}

func (g *Genetic) nextGeneration(rng *rand.Rand, evals []*Evaluation) []config.ParameterSet {
	next := make([]config.ParameterSet, 0, g.PopulationSize)
	for len(next) < g.PopulationSize {
		p1 := selectParent(rng, evals)
		p2 := selectParent(rng, evals)
		child := g.crossover(rng, p1, p2)
		if rng.Float64() < g.MutationRate {
			g.mutate(rng, child)
		}
		next = append(next, child)
	}
	return next
}

// selectParent samples fitness-proportionally. Individuals with non-positive
// fitness carry no selection weight; when every weight is zero the draw
// falls back to uniform. Scores of +Inf split the draw uniformly among
// themselves.
func selectParent(rng *rand.Rand, evals []*Evaluation) config.ParameterSet {
	var unbounded []*Evaluation
	total := 0.0
	for _, e := range evals {
		if math.IsInf(e.Score, 1) {
			unbounded = append(unbounded, e)
		} else if e.Score > 0 {
			total += e.Score
		}
	}
	if len(unbounded) > 0 {
		return unbounded[rng.Intn(len(unbounded))].Params
	}
	if total <= 0 {
		return evals[rng.Intn(len(evals))].Params
	}
	r := rng.Float64() * total
	for _, e := range evals {
		if e.Score > 0 {
			r -= e.Score
			if r <= 0 {
				return e.Params
			}
		}
	}
	return evals[len(evals)-1].Params
}

// crossover picks each gene from either parent with equal probability.
func (g *Genetic) crossover(rng *rand.Rand, a, b config.ParameterSet) config.ParameterSet {
	child := config.ParameterSet{}
	for _, dim := range g.Space {
		if rng.Intn(2) == 0 {
			child[dim.Field] = a[dim.Field]
		} else {
			child[dim.Field] = b[dim.Field]
		}
	}
	return child
}

// mutate resamples a single random gene from its candidate list.
func (g *Genetic) mutate(rng *rand.Rand, ps config.ParameterSet) {
	dim := g.Space[rng.Intn(len(g.Space))]
	ps[dim.Field] = dim.Values[rng.Intn(len(dim.Values))]
}

func bestScore(evals []*Evaluation) float64 {
	best := math.Inf(-1)
	for _, e := range evals {
		if e.Score > best {
			best = e.Score
		}
	}
	return best
}
