package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"atrbacktest/internal/domain"
)

// Position-sizing modes.
const (
	SizingFixed     = "fixed"
	SizingRiskBased = "risk_based"
)

// ExitRuleFixed sizes exit levels as a fixed multiple of the bar's ATR.
const ExitRuleFixed = "fixed"

type PositionSizing struct {
	Type        string  `yaml:"type"`
	FixedVolume float64 `yaml:"fixed_volume"`
}

type RiskManagement struct {
	InitialCapital     float64        `yaml:"initial_capital"`
	PositionSizing     PositionSizing `yaml:"position_sizing"`
	RiskPercentage     float64        `yaml:"risk_percentage"`
	StopLossMultiplier float64        `yaml:"stop_loss_multiplier"`
	MaxOpenTrades      int            `yaml:"max_open_trades"`
	CommissionPerLot   float64        `yaml:"commission_per_lot"`
	// PipValue converts a stop-loss distance in price units to money per
	// lot when sizing risk-based positions.
	PipValue float64 `yaml:"pip_value"`
}

type ExitRule struct {
	Type  string  `yaml:"type"`
	Value float64 `yaml:"value"`
}

type ExitRules struct {
	StopLoss   ExitRule `yaml:"stop_loss"`
	TakeProfit ExitRule `yaml:"take_profit"`
}

type Trading struct {
	AllowConsecutiveTrades bool      `yaml:"allow_consecutive_trades"`
	ExitRules              ExitRules `yaml:"exit_rules"`
}

// TradingCosts configures the per-leg cost components. A zero value
// disables the corresponding component.
type TradingCosts struct {
	CommissionRate float64 `yaml:"commission_rate"`
	SpreadPoints   float64 `yaml:"spread_points"`
	PointValue     float64 `yaml:"point_value"`
	SlippageRate   float64 `yaml:"slippage_rate"`
}

// Analysis configures the performance analyzer.
type Analysis struct {
	PeriodsPerYear float64 `yaml:"periods_per_year"`
	RiskFreeRate   float64 `yaml:"risk_free_rate"`
}

// StrategyConfig is the full, typed configuration of one simulation run.
// All fields are scalars, so a plain value copy is a deep copy.
type StrategyConfig struct {
	RiskManagement RiskManagement `yaml:"risk_management"`
	Trading        Trading        `yaml:"trading"`
	TradingCosts   TradingCosts   `yaml:"trading_costs"`
	Analysis       Analysis       `yaml:"analysis"`
}

// Default returns a runnable configuration: fixed one-lot sizing, 1.5x/2x
// ATR exits, daily-bar annualization.
func Default() StrategyConfig {
	return StrategyConfig{
		RiskManagement: RiskManagement{
			InitialCapital: 10000,
			PositionSizing: PositionSizing{
				Type:        SizingFixed,
				FixedVolume: 1,
			},
			RiskPercentage:     0.02,
			StopLossMultiplier: 1.5,
			MaxOpenTrades:      5,
			PipValue:           1,
		},
		Trading: Trading{
			ExitRules: ExitRules{
				StopLoss:   ExitRule{Type: ExitRuleFixed, Value: 1.5},
				TakeProfit: ExitRule{Type: ExitRuleFixed, Value: 2},
			},
		},
		Analysis: Analysis{
			PeriodsPerYear: 252,
		},
	}
}

// Load reads and validates a strategy configuration file. Unset analysis
// fields fall back to defaults.
func Load(path string) (*StrategyConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration before any simulation starts. A failure
// here is fatal to the whole run.
func (c *StrategyConfig) Validate() error {
	rm := c.RiskManagement
	if rm.InitialCapital <= 0 {
		return &domain.ConfigurationError{Field: "risk_management.initial_capital", Reason: "must be positive"}
	}
	switch rm.PositionSizing.Type {
	case SizingFixed:
		if rm.PositionSizing.FixedVolume <= 0 {
			return &domain.ConfigurationError{Field: "risk_management.position_sizing.fixed_volume", Reason: "must be positive"}
		}
	case SizingRiskBased:
		if rm.RiskPercentage <= 0 || rm.RiskPercentage >= 1 {
			return &domain.ConfigurationError{Field: "risk_management.risk_percentage", Reason: "must be in (0, 1)"}
		}
		if rm.StopLossMultiplier <= 0 {
			return &domain.ConfigurationError{Field: "risk_management.stop_loss_multiplier", Reason: "must be positive"}
		}
		if rm.PipValue <= 0 {
			return &domain.ConfigurationError{Field: "risk_management.pip_value", Reason: "must be positive"}
		}
	default:
		return &domain.ConfigurationError{Field: "risk_management.position_sizing.type", Reason: fmt.Sprintf("unknown sizing mode %q", rm.PositionSizing.Type)}
	}
	if rm.MaxOpenTrades < 1 {
		return &domain.ConfigurationError{Field: "risk_management.max_open_trades", Reason: "must be at least 1"}
	}
	if rm.CommissionPerLot < 0 {
		return &domain.ConfigurationError{Field: "risk_management.commission_per_lot", Reason: "must not be negative"}
	}

	rules := c.Trading.ExitRules
	if rules.StopLoss.Type != ExitRuleFixed {
		return &domain.ConfigurationError{Field: "trading.exit_rules.stop_loss.type", Reason: fmt.Sprintf("unknown exit rule %q", rules.StopLoss.Type)}
	}
	if rules.StopLoss.Value <= 0 {
		return &domain.ConfigurationError{Field: "trading.exit_rules.stop_loss.value", Reason: "must be positive"}
	}
	if rules.TakeProfit.Type != ExitRuleFixed {
		return &domain.ConfigurationError{Field: "trading.exit_rules.take_profit.type", Reason: fmt.Sprintf("unknown exit rule %q", rules.TakeProfit.Type)}
	}
	if rules.TakeProfit.Value <= 0 {
		return &domain.ConfigurationError{Field: "trading.exit_rules.take_profit.value", Reason: "must be positive"}
	}

	tc := c.TradingCosts
	if tc.CommissionRate < 0 || tc.SpreadPoints < 0 || tc.PointValue < 0 || tc.SlippageRate < 0 {
		return &domain.ConfigurationError{Field: "trading_costs", Reason: "cost rates must not be negative"}
	}

	if c.Analysis.PeriodsPerYear <= 0 {
		return &domain.ConfigurationError{Field: "analysis.periods_per_year", Reason: "must be positive"}
	}
	return nil
}
