package optimizer

import (
	"fmt"
	"math"

	"atrbacktest/internal/calculator"
)

// metricObjective scores a run by one named metric. A metric missing from
// the result map scores −Inf so a degenerate run can never outrank a real
// one.
func metricObjective(name string) Objective {
	return func(metrics map[string]float64) float64 {
		value, ok := metrics[name]
		if !ok {
			return math.Inf(-1)
		}
		return value
	}
}

// Stock objectives.
var (
	SharpeObjective       = metricObjective(calculator.MetricSharpeRatio)
	SortinoObjective      = metricObjective(calculator.MetricSortinoRatio)
	ProfitFactorObjective = metricObjective(calculator.MetricProfitFactor)
	NetProfitObjective    = metricObjective(calculator.MetricNetProfit)
)

// DrawdownObjective favors shallow drawdowns.
func DrawdownObjective(metrics map[string]float64) float64 {
	value, ok := metrics[calculator.MetricMaxDrawdown]
	if !ok {
		return math.Inf(-1)
	}
	return -value
}

// ObjectiveByName resolves the CLI-facing objective names.
func ObjectiveByName(name string) (Objective, error) {
	switch name {
	case "sharpe_ratio":
		return SharpeObjective, nil
	case "sortino_ratio":
		return SortinoObjective, nil
	case "profit_factor":
		return ProfitFactorObjective, nil
	case "net_profit":
		return NetProfitObjective, nil
	case "max_drawdown":
		return DrawdownObjective, nil
	}
	return nil, fmt.Errorf("unknown objective %q", name)
}
