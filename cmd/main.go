package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"atrbacktest/internal/backtest"
	"atrbacktest/internal/calculator"
	"atrbacktest/internal/config"
	"atrbacktest/internal/domain"
	"atrbacktest/internal/loader"
	"atrbacktest/internal/logger"
	"atrbacktest/internal/optimizer"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "atrbacktest",
		Short:        "Backtest an ATR-based strategy and optimize its parameters",
		SilenceUsage: true,
	}
	root.AddCommand(runCmd(), optimizeCmd())
	return root
}

// jsonNumber renders non-finite values as null. The analyzer's sentinels
// (+Inf profit factor with no losses, -Inf scores on failed evaluations)
// are legitimate results but not legal JSON numbers.
type jsonNumber float64

func (n jsonNumber) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

func jsonMetrics(metrics map[string]float64) map[string]jsonNumber {
	out := make(map[string]jsonNumber, len(metrics))
	for name, value := range metrics {
		out[name] = jsonNumber(value)
	}
	return out
}

// report bundles the metrics with the full trade history and equity curve
// for downstream rendering; this binary only produces the data.
type report struct {
	Metrics     map[string]jsonNumber  `json:"metrics"`
	Trades      []domain.TradeEvent    `json:"trades"`
	EquityCurve []backtest.EquityPoint `json:"equity_curve"`
}

func runCmd() *cobra.Command {
	var (
		configPath string
		barsPath   string
		vectorized bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one backtest and print the report as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logger.New()
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			bars, err := loader.ReadBarsFile(barsPath)
			if err != nil {
				return err
			}

			result, err := runEngine(*cfg, bars, vectorized, log)
			if err != nil {
				return err
			}
			analyzed := calculator.Analyze(result, cfg.Analysis)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report{
				Metrics:     jsonMetrics(analyzed.Metrics()),
				Trades:      result.Trades,
				EquityCurve: result.EquityCurve,
			})
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "strategy configuration file")
	cmd.Flags().StringVar(&barsPath, "bars", "", "annotated bar series CSV")
	cmd.Flags().BoolVar(&vectorized, "vectorized", false, "use the vectorized engine")
	_ = cmd.MarkFlagRequired("bars")
	return cmd
}

func runEngine(cfg config.StrategyConfig, bars []domain.PriceBar, vectorized bool, log *zap.SugaredLogger) (*backtest.Result, error) {
	if vectorized {
		engine, err := backtest.NewVectorEngine(cfg, log)
		if err != nil {
			return nil, err
		}
		return engine.Run(bars)
	}
	engine, err := backtest.NewEngine(cfg, log)
	if err != nil {
		return nil, err
	}
	return engine.Run(bars)
}

// spaceFile is the YAML layout of a parameter search space.
type spaceFile struct {
	Dimensions []optimizer.Dimension `yaml:"dimensions"`
}

// evalView is the JSON rendering of one evaluation.
type evalView struct {
	ID      uuid.UUID             `json:"id"`
	Params  config.ParameterSet   `json:"params"`
	Metrics map[string]jsonNumber `json:"metrics,omitempty"`
	Score   jsonNumber            `json:"score"`
}

func newEvalView(eval *optimizer.Evaluation) *evalView {
	if eval == nil {
		return nil
	}
	return &evalView{
		ID:      eval.ID,
		Params:  eval.Params,
		Metrics: jsonMetrics(eval.Metrics),
		Score:   jsonNumber(eval.Score),
	}
}

type optimizeReport struct {
	Best   *evalView  `json:"best"`
	Ranked []evalView `json:"ranked"`
}

func newOptimizeReport(result *optimizer.SearchResult, top int) optimizeReport {
	ranked := result.Evaluations
	if top > 0 && top < len(ranked) {
		ranked = ranked[:top]
	}
	out := optimizeReport{
		Best:   newEvalView(result.Best),
		Ranked: make([]evalView, 0, len(ranked)),
	}
	for _, eval := range ranked {
		out.Ranked = append(out.Ranked, *newEvalView(eval))
	}
	return out
}

func optimizeCmd() *cobra.Command {
	var (
		configPath   string
		barsPath     string
		spacePath    string
		method       string
		objective    string
		vectorized   bool
		workers      int
		population   int
		generations  int
		mutationRate float64
		seed         int64
		top          int
	)
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Search a parameter space and rank configurations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logger.New()
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			bars, err := loader.ReadBarsFile(barsPath)
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(spacePath)
			if err != nil {
				return fmt.Errorf("failed to read search space: %w", err)
			}
			var space spaceFile
			if err := yaml.Unmarshal(raw, &space); err != nil {
				return fmt.Errorf("failed to parse search space: %w", err)
			}
			obj, err := optimizer.ObjectiveByName(objective)
			if err != nil {
				return err
			}

			var searcher optimizer.Searcher
			switch method {
			case "grid":
				searcher = &optimizer.GridSearch{Space: space.Dimensions, Workers: workers, Log: log}
			case "genetic":
				searcher = &optimizer.Genetic{
					Space:          space.Dimensions,
					PopulationSize: population,
					Generations:    generations,
					MutationRate:   mutationRate,
					Workers:        workers,
					Seed:           seed,
					Log:            log,
				}
			default:
				return fmt.Errorf("unknown search method %q", method)
			}

			evaluator := &optimizer.BacktestEvaluator{
				Bars:       bars,
				BaseConfig: *cfg,
				Objective:  obj,
				Vectorized: vectorized,
				Log:        log,
			}
			result, err := searcher.Optimize(cmd.Context(), evaluator)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(newOptimizeReport(result, top))
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "strategy configuration file")
	cmd.Flags().StringVar(&barsPath, "bars", "", "annotated bar series CSV")
	cmd.Flags().StringVar(&spacePath, "space", "", "parameter search space YAML")
	cmd.Flags().StringVar(&method, "method", "grid", "search method: grid or genetic")
	cmd.Flags().StringVar(&objective, "objective", "sharpe_ratio", "objective metric")
	cmd.Flags().BoolVar(&vectorized, "vectorized", false, "use the vectorized engine")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker pool size, 0 = all CPUs")
	cmd.Flags().IntVar(&population, "population", 50, "genetic population size")
	cmd.Flags().IntVar(&generations, "generations", 30, "genetic generation count")
	cmd.Flags().Float64Var(&mutationRate, "mutation-rate", 0.1, "genetic mutation probability")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed, 0 = from clock")
	cmd.Flags().IntVar(&top, "top", 20, "limit ranked output, 0 = all")
	_ = cmd.MarkFlagRequired("bars")
	_ = cmd.MarkFlagRequired("space")
	return cmd
}
