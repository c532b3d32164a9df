package config

import "atrbacktest/internal/domain"

// Field identifies one tunable configuration value. Names follow the dotted
// paths used in strategy configuration files; each field resolves to a typed
// setter rather than being poked into a nested map.
type Field string

const (
	FieldRiskPercentage     Field = "risk_management.risk_percentage"
	FieldStopLossMultiplier Field = "risk_management.stop_loss_multiplier"
	FieldMaxOpenTrades      Field = "risk_management.max_open_trades"
	FieldCommissionPerLot   Field = "risk_management.commission_per_lot"
	FieldFixedVolume        Field = "risk_management.position_sizing.fixed_volume"
	FieldStopLossValue      Field = "trading.exit_rules.stop_loss.value"
	FieldTakeProfitValue    Field = "trading.exit_rules.take_profit.value"
	FieldAllowConsecutive   Field = "trading.allow_consecutive_trades"
)

var setters = map[Field]func(*StrategyConfig, float64){
	FieldRiskPercentage:     func(c *StrategyConfig, v float64) { c.RiskManagement.RiskPercentage = v },
	FieldStopLossMultiplier: func(c *StrategyConfig, v float64) { c.RiskManagement.StopLossMultiplier = v },
	FieldMaxOpenTrades:      func(c *StrategyConfig, v float64) { c.RiskManagement.MaxOpenTrades = int(v) },
	FieldCommissionPerLot:   func(c *StrategyConfig, v float64) { c.RiskManagement.CommissionPerLot = v },
	FieldFixedVolume:        func(c *StrategyConfig, v float64) { c.RiskManagement.PositionSizing.FixedVolume = v },
	FieldStopLossValue:      func(c *StrategyConfig, v float64) { c.Trading.ExitRules.StopLoss.Value = v },
	FieldTakeProfitValue:    func(c *StrategyConfig, v float64) { c.Trading.ExitRules.TakeProfit.Value = v },
	FieldAllowConsecutive:   func(c *StrategyConfig, v float64) { c.Trading.AllowConsecutiveTrades = v != 0 },
}

// Known reports whether f has a registered setter.
func (f Field) Known() bool {
	_, ok := setters[f]
	return ok
}

// ParameterSet maps tunable fields to candidate values. A set is applied to
// a copy of the base configuration before a run and is never mutated after
// it has been scored; equality is by value.
type ParameterSet map[Field]float64

// Apply writes every value in the set into cfg. Unknown fields are a
// configuration error.
func (p ParameterSet) Apply(cfg *StrategyConfig) error {
	for field, value := range p {
		set, ok := setters[field]
		if !ok {
			return &domain.ConfigurationError{Field: string(field), Reason: "unknown parameter field"}
		}
		set(cfg, value)
	}
	return nil
}

// Clone returns an independent copy of the set.
func (p ParameterSet) Clone() ParameterSet {
	out := make(ParameterSet, len(p))
	for field, value := range p {
		out[field] = value
	}
	return out
}
