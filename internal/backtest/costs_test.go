package backtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"atrbacktest/internal/config"
)

func TestCostComponents(t *testing.T) {
	ctx := CostContext{Lots: 3}

	require.InDelta(t, 10, CommissionCost{Rate: 0.001}.Calculate(10000, ctx), 1e-9)
	require.InDelta(t, 6, PerLotCommissionCost{PerLot: 2}.Calculate(10000, ctx), 1e-9)
	require.InDelta(t, 1, SpreadCost{Points: 0.5, PointValue: 2}.Calculate(10000, ctx), 1e-9)
	require.InDelta(t, 5, SlippageCost{Rate: 0.0005}.Calculate(10000, ctx), 1e-9)
}

func TestCostManager_Total(t *testing.T) {
	cfg := config.Default()
	cfg.TradingCosts = config.TradingCosts{
		CommissionRate: 0.001,
		SpreadPoints:   0.5,
		PointValue:     2,
		SlippageRate:   0.0005,
	}
	cfg.RiskManagement.CommissionPerLot = 2

	m := NewCostManager(cfg)

	require.InDelta(t, 22, m.Total(10000, CostContext{Lots: 3}), 1e-9)
}

func TestCostManager_ZeroConfigChargesNothing(t *testing.T) {
	m := NewCostManager(config.Default())

	require.Zero(t, m.Total(10000, CostContext{Lots: 5}))
}
