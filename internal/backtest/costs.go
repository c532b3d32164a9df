package backtest

import "atrbacktest/internal/config"

// CostContext carries per-trade inputs that some cost components need
// beyond the leg notional.
type CostContext struct {
	Lots float64
}

// CostComponent prices one kind of trading friction for a single trade leg.
// The set of variants is small and closed: proportional commission, per-lot
// commission, fixed spread and proportional slippage.
type CostComponent interface {
	Calculate(tradeValue float64, ctx CostContext) float64
}

// CommissionCost charges a rate proportional to the leg notional.
type CommissionCost struct {
	Rate float64
}

func (c CommissionCost) Calculate(tradeValue float64, _ CostContext) float64 {
	return tradeValue * c.Rate
}

// PerLotCommissionCost charges a flat amount per traded lot.
type PerLotCommissionCost struct {
	PerLot float64
}

func (c PerLotCommissionCost) Calculate(_ float64, ctx CostContext) float64 {
	return ctx.Lots * c.PerLot
}

// SpreadCost charges a fixed number of points at a configured point value.
type SpreadCost struct {
	Points     float64
	PointValue float64
}

func (c SpreadCost) Calculate(_ float64, _ CostContext) float64 {
	return c.Points * c.PointValue
}

// SlippageCost charges a rate proportional to the leg notional.
type SlippageCost struct {
	Rate float64
}

func (c SlippageCost) Calculate(tradeValue float64, _ CostContext) float64 {
	return tradeValue * c.Rate
}

// CostManager sums the configured components. Costs are charged once per
// trade leg, at both open and close.
type CostManager struct {
	components []CostComponent
}

// NewCostManager builds the component list from the configuration; zero
// rates leave the corresponding component out entirely.
func NewCostManager(cfg config.StrategyConfig) *CostManager {
	m := &CostManager{}
	tc := cfg.TradingCosts
	if tc.CommissionRate > 0 {
		m.components = append(m.components, CommissionCost{Rate: tc.CommissionRate})
	}
	if cfg.RiskManagement.CommissionPerLot > 0 {
		m.components = append(m.components, PerLotCommissionCost{PerLot: cfg.RiskManagement.CommissionPerLot})
	}
	if tc.SpreadPoints > 0 && tc.PointValue > 0 {
		m.components = append(m.components, SpreadCost{Points: tc.SpreadPoints, PointValue: tc.PointValue})
	}
	if tc.SlippageRate > 0 {
		m.components = append(m.components, SlippageCost{Rate: tc.SlippageRate})
	}
	return m
}

// Total is the summed cost of one trade leg.
func (m *CostManager) Total(tradeValue float64, ctx CostContext) float64 {
	total := 0.0
	for _, c := range m.components {
		total += c.Calculate(tradeValue, ctx)
	}
	return total
}
