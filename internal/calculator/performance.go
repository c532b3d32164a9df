package calculator

import (
	"math"

	"github.com/montanaflynn/stats"

	"atrbacktest/internal/backtest"
	"atrbacktest/internal/config"
	"atrbacktest/internal/domain"
)

// Metric names, as reported to objective functions and external consumers.
const (
	MetricTotalTrades      = "total_trades"
	MetricWinningTrades    = "winning_trades"
	MetricLosingTrades     = "losing_trades"
	MetricWinRate          = "win_rate"
	MetricGrossProfit      = "gross_profit"
	MetricGrossLoss        = "gross_loss"
	MetricNetProfit        = "net_profit"
	MetricProfitFactor     = "profit_factor"
	MetricMaxDrawdown      = "max_drawdown"
	MetricSharpeRatio      = "sharpe_ratio"
	MetricSortinoRatio     = "sortino_ratio"
	MetricCalmarRatio      = "calmar_ratio"
	MetricAvgTradeDuration = "avg_trade_duration_hours"
	MetricFinalEquity      = "final_equity"
)

// Result holds the risk/return statistics of one simulation run.
type Result struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`

	GrossProfit  float64 `json:"gross_profit"`
	GrossLoss    float64 `json:"gross_loss"`
	NetProfit    float64 `json:"net_profit"`
	ProfitFactor float64 `json:"profit_factor"`

	// MaxDrawdown is a non-negative magnitude in [0, 1].
	MaxDrawdown  float64 `json:"max_drawdown"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	SortinoRatio float64 `json:"sortino_ratio"`
	CalmarRatio  float64 `json:"calmar_ratio"`

	AvgTradeDurationHours float64 `json:"avg_trade_duration_hours"`
	FinalEquity           float64 `json:"final_equity"`
}

// Metrics exposes the result as the name → number mapping consumed by
// objective functions.
func (r Result) Metrics() map[string]float64 {
	return map[string]float64{
		MetricTotalTrades:      float64(r.TotalTrades),
		MetricWinningTrades:    float64(r.WinningTrades),
		MetricLosingTrades:     float64(r.LosingTrades),
		MetricWinRate:          r.WinRate,
		MetricGrossProfit:      r.GrossProfit,
		MetricGrossLoss:        r.GrossLoss,
		MetricNetProfit:        r.NetProfit,
		MetricProfitFactor:     r.ProfitFactor,
		MetricMaxDrawdown:      r.MaxDrawdown,
		MetricSharpeRatio:      r.SharpeRatio,
		MetricSortinoRatio:     r.SortinoRatio,
		MetricCalmarRatio:      r.CalmarRatio,
		MetricAvgTradeDuration: r.AvgTradeDurationHours,
		MetricFinalEquity:      r.FinalEquity,
	}
}

// Analyze reduces a run's closed trade history and equity curve to
// statistics. It is a pure function: the same inputs always produce the
// same output, and degenerate inputs (no trades, no losses, no downside
// periods, zero drawdown) yield defined sentinels instead of faults.
func Analyze(run *backtest.Result, cfg config.Analysis) Result {
	out := Result{FinalEquity: run.FinalEquity}

	for _, event := range run.Trades {
		if event.Action != domain.ActionClose || event.PnL == nil {
			continue
		}
		out.TotalTrades++
		pnl := *event.PnL
		switch {
		case pnl > 0:
			out.WinningTrades++
			out.GrossProfit += pnl
		case pnl < 0:
			out.LosingTrades++
			out.GrossLoss += -pnl
		}
	}
	out.NetProfit = out.GrossProfit - out.GrossLoss
	if out.TotalTrades > 0 {
		out.WinRate = float64(out.WinningTrades) / float64(out.TotalTrades)
	}
	out.ProfitFactor = profitFactor(out.GrossProfit, out.GrossLoss)

	returns := periodReturns(run.EquityCurve)
	out.MaxDrawdown = maxDrawdown(run.EquityCurve)
	out.SharpeRatio = sharpe(returns, cfg)
	out.SortinoRatio = sortino(returns, cfg)
	out.CalmarRatio = calmar(returns, out.MaxDrawdown, cfg)
	out.AvgTradeDurationHours = avgTradeDuration(run.ClosedPositions)

	return out
}

func profitFactor(grossProfit, grossLoss float64) float64 {
	if grossLoss == 0 {
		if grossProfit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return grossProfit / grossLoss
}

// maxDrawdown is the deepest relative decline from the running equity peak,
// reported as a non-negative magnitude. Zero for monotonically
// non-decreasing equity.
func maxDrawdown(curve []backtest.EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].Equity
	worst := 0.0
	for _, point := range curve {
		if point.Equity > peak {
			peak = point.Equity
		}
		if peak > 0 {
			dd := (peak - point.Equity) / peak
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

func periodReturns(curve []backtest.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
	}
	return returns
}

func excessReturns(returns []float64, cfg config.Analysis) []float64 {
	rf := cfg.RiskFreeRate / cfg.PeriodsPerYear
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - rf
	}
	return excess
}

func sharpe(returns []float64, cfg config.Analysis) float64 {
	excess := excessReturns(returns, cfg)
	if len(excess) < 2 {
		return 0
	}
	mean, err := stats.Mean(excess)
	if err != nil {
		return 0
	}
	stdev, err := stats.StandardDeviationSample(excess)
	if err != nil || stdev == 0 {
		return 0
	}
	return math.Sqrt(cfg.PeriodsPerYear) * mean / stdev
}

// sortino is Sharpe with downside deviation in the denominator: the RMS of
// the negative excess returns only. With zero downside periods it reports
// +Inf for a positive mean excess return and 0 otherwise.
func sortino(returns []float64, cfg config.Analysis) float64 {
	excess := excessReturns(returns, cfg)
	if len(excess) == 0 {
		return 0
	}
	mean, err := stats.Mean(excess)
	if err != nil {
		return 0
	}
	downSquares := 0.0
	downCount := 0
	for _, r := range excess {
		if r < 0 {
			downSquares += r * r
			downCount++
		}
	}
	if downCount == 0 {
		if mean > 0 {
			return math.Inf(1)
		}
		return 0
	}
	downside := math.Sqrt(downSquares / float64(downCount))
	if downside == 0 {
		return 0
	}
	return math.Sqrt(cfg.PeriodsPerYear) * mean / downside
}

// calmar divides the annualized mean return by the max drawdown; +Inf when
// there is no drawdown to divide by.
func calmar(returns []float64, maxDD float64, cfg config.Analysis) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean, err := stats.Mean(returns)
	if err != nil {
		return 0
	}
	annualized := mean * cfg.PeriodsPerYear
	if maxDD == 0 {
		return math.Inf(1)
	}
	return annualized / maxDD
}

func avgTradeDuration(closed []*domain.Position) float64 {
	durations := make([]float64, 0, len(closed))
	for _, pos := range closed {
		if pos.ExitTime == nil {
			continue
		}
		durations = append(durations, pos.ExitTime.Sub(pos.EntryTime).Hours())
	}
	if len(durations) == 0 {
		return 0
	}
	mean, err := stats.Mean(durations)
	if err != nil {
		return 0
	}
	return mean
}
