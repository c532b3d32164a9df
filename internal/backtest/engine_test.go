package backtest

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atrbacktest/internal/config"
	"atrbacktest/internal/domain"
)

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testBar(symbol string, day int, high, low, close, atr float64) domain.PriceBar {
	bar := domain.PriceBar{
		Symbol:    symbol,
		Timestamp: testEpoch.AddDate(0, 0, day),
		Open:      close,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    1000,
	}
	if atr > 0 {
		bar.Indicators = map[string]float64{domain.ATRColumn: atr}
	}
	return bar
}

func long(bar domain.PriceBar) domain.PriceBar {
	bar.LongSignal = true
	return bar
}

func short(bar domain.PriceBar) domain.PriceBar {
	bar.ShortSignal = true
	return bar
}

func mustRun(t *testing.T, cfg config.StrategyConfig, bars []domain.PriceBar) *Result {
	t.Helper()
	engine, err := NewEngine(cfg, nil)
	require.NoError(t, err)
	result, err := engine.Run(bars)
	require.NoError(t, err)
	return result
}

func TestEngine_StopLossHasPriority(t *testing.T) {
	// entry 100, ATR 2 with the default 1.5x/2x exits: stop 97, take 104.
	// The second bar crosses both; the stop wins and fills exactly at 97.
	bars := []domain.PriceBar{
		long(testBar("EURUSD", 0, 101, 99, 100, 2)),
		testBar("EURUSD", 1, 105, 96, 100, 0),
	}

	result := mustRun(t, config.Default(), bars)

	require.Len(t, result.Trades, 2)
	openEvent, closeEvent := result.Trades[0], result.Trades[1]

	assert.Equal(t, domain.ActionOpen, openEvent.Action)
	assert.Equal(t, domain.Long, openEvent.Direction)
	assert.Equal(t, float64(100), openEvent.Price)

	assert.Equal(t, domain.ActionClose, closeEvent.Action)
	assert.Equal(t, float64(97), closeEvent.Price)
	require.NotNil(t, closeEvent.PnL)
	assert.InDelta(t, -3, *closeEvent.PnL, 1e-9)

	require.Len(t, result.EquityCurve, 2)
	assert.InDelta(t, 9900, result.EquityCurve[0].Equity, 1e-9)
	assert.InDelta(t, 9997, result.EquityCurve[1].Equity, 1e-9)
	assert.InDelta(t, 9997, result.FinalEquity, 1e-9)
}

func TestEngine_TakeProfit(t *testing.T) {
	bars := []domain.PriceBar{
		long(testBar("EURUSD", 0, 101, 99, 100, 2)),
		testBar("EURUSD", 1, 105, 98, 100, 0),
	}

	result := mustRun(t, config.Default(), bars)

	require.Len(t, result.Trades, 2)
	assert.Equal(t, float64(104), result.Trades[1].Price)
	assert.InDelta(t, 4, *result.Trades[1].PnL, 1e-9)
}

func TestEngine_ExitFillsAtLevelOnGap(t *testing.T) {
	// the bar gaps through the stop; the fill is still exactly at the level
	bars := []domain.PriceBar{
		long(testBar("EURUSD", 0, 101, 99, 100, 2)),
		testBar("EURUSD", 1, 96, 90, 92, 0),
	}

	result := mustRun(t, config.Default(), bars)

	require.Len(t, result.Trades, 2)
	assert.Equal(t, float64(97), result.Trades[1].Price)
	assert.InDelta(t, -3, *result.Trades[1].PnL, 1e-9)
}

func TestEngine_ShortRoundTrip(t *testing.T) {
	// short entry 100, ATR 2: stop 103, take 96
	bars := []domain.PriceBar{
		short(testBar("EURUSD", 0, 101, 99, 100, 2)),
		testBar("EURUSD", 1, 101, 95, 98, 0),
	}

	result := mustRun(t, config.Default(), bars)

	require.Len(t, result.Trades, 2)
	assert.Equal(t, domain.Short, result.Trades[0].Direction)
	assert.Equal(t, float64(96), result.Trades[1].Price)
	assert.InDelta(t, 4, *result.Trades[1].PnL, 1e-9)
}

func TestEngine_ConsecutiveTradeRule(t *testing.T) {
	bars := []domain.PriceBar{
		long(testBar("EURUSD", 0, 101, 99, 100, 2)),
		testBar("EURUSD", 1, 99, 96, 97, 0), // stops out the long at 97
		long(testBar("EURUSD", 2, 101, 99, 100, 2)),
		short(testBar("EURUSD", 3, 101, 99, 100, 2)),
	}

	t.Run("repeat direction rejected, opposite accepted", func(t *testing.T) {
		result := mustRun(t, config.Default(), bars)

		// open long, stop out, rejected long, open short, forced close
		require.Len(t, result.Trades, 4)
		assert.Equal(t, domain.Short, result.Trades[2].Direction)
		assert.Equal(t, testEpoch.AddDate(0, 0, 3), result.Trades[2].Timestamp)
		require.Len(t, result.ClosedPositions, 2)
	})

	t.Run("allow_consecutive_trades admits the repeat", func(t *testing.T) {
		cfg := config.Default()
		cfg.Trading.AllowConsecutiveTrades = true

		result := mustRun(t, cfg, bars)

		require.Len(t, result.Trades, 4)
		assert.Equal(t, domain.Long, result.Trades[2].Direction)
		assert.Equal(t, testEpoch.AddDate(0, 0, 2), result.Trades[2].Timestamp)
	})
}

func TestEngine_MaxOpenTradesCap(t *testing.T) {
	cfg := config.Default()
	cfg.RiskManagement.MaxOpenTrades = 1

	bars := []domain.PriceBar{
		long(testBar("EURUSD", 0, 101, 99, 100, 2)),
		long(testBar("GBPUSD", 0, 51, 49, 50, 1)),
	}

	result := mustRun(t, cfg, bars)

	require.Len(t, result.ClosedPositions, 1)
	assert.Equal(t, "EURUSD", result.ClosedPositions[0].Symbol)
}

func TestEngine_InsufficientFundsDropsSignal(t *testing.T) {
	cfg := config.Default()
	cfg.RiskManagement.InitialCapital = 50

	bars := []domain.PriceBar{
		long(testBar("EURUSD", 0, 101, 99, 100, 2)),
	}

	result := mustRun(t, cfg, bars)

	assert.Empty(t, result.Trades)
	require.Len(t, result.EquityCurve, 1)
	assert.InDelta(t, 50, result.EquityCurve[0].Equity, 1e-9)
	assert.InDelta(t, 50, result.FinalEquity, 1e-9)
}

func TestEngine_InvalidRowDropsSignal(t *testing.T) {
	bad := long(testBar("EURUSD", 0, 101, 99, 100, 2))
	bad.Volume = 0

	result := mustRun(t, config.Default(), []domain.PriceBar{bad})

	assert.Empty(t, result.Trades)
}

func TestEngine_MissingATRSkipsSignal(t *testing.T) {
	bars := []domain.PriceBar{
		long(testBar("EURUSD", 0, 101, 99, 100, 0)),
	}

	result := mustRun(t, config.Default(), bars)

	assert.Empty(t, result.Trades)
}

func TestEngine_RiskBasedSizing(t *testing.T) {
	cfg := config.Default()
	cfg.RiskManagement.PositionSizing.Type = config.SizingRiskBased

	bars := []domain.PriceBar{
		long(testBar("EURUSD", 0, 101, 99, 100, 2)),
	}

	result := mustRun(t, cfg, bars)

	// risk 2% of 10000 equity over a 1.5x ATR stop distance
	require.NotEmpty(t, result.Trades)
	assert.InDelta(t, 200.0/3.0, result.Trades[0].Size, 1e-9)
}

func TestEngine_EquityMarkedAtCurrentPrice(t *testing.T) {
	cfg := config.Default()
	// push the exit levels out of reach
	cfg.Trading.ExitRules.StopLoss.Value = 10
	cfg.Trading.ExitRules.TakeProfit.Value = 10

	bars := []domain.PriceBar{
		long(testBar("EURUSD", 0, 101, 99, 100, 2)),
		testBar("EURUSD", 1, 101.5, 99.5, 101, 0),
		testBar("EURUSD", 2, 100, 98.5, 99, 0),
	}

	result := mustRun(t, cfg, bars)

	require.Len(t, result.EquityCurve, 3)
	assert.InDelta(t, 9900, result.EquityCurve[0].Equity, 1e-9)
	assert.InDelta(t, 9901, result.EquityCurve[1].Equity, 1e-9)
	assert.InDelta(t, 9899, result.EquityCurve[2].Equity, 1e-9)

	// the open position is force-closed at the final bar's close
	require.Len(t, result.ClosedPositions, 1)
	require.NotNil(t, result.ClosedPositions[0].PnL)
	assert.InDelta(t, -1, *result.ClosedPositions[0].PnL, 1e-9)
	assert.InDelta(t, 9999, result.FinalEquity, 1e-9)
	assert.InDelta(t, result.FinalCash, result.FinalEquity, 1e-9)
}

func TestEngine_PerLegCosts(t *testing.T) {
	cfg := config.Default()
	cfg.TradingCosts.CommissionRate = 0.001
	cfg.RiskManagement.CommissionPerLot = 2

	bars := []domain.PriceBar{
		long(testBar("EURUSD", 0, 101, 99, 100, 2)),
		testBar("EURUSD", 1, 99, 96, 97, 0),
	}

	result := mustRun(t, cfg, bars)

	require.Len(t, result.Trades, 2)
	// gross -3, open leg 100*0.001+2, close leg 97*0.001+2
	require.NotNil(t, result.Trades[1].PnL)
	assert.InDelta(t, -7.197, *result.Trades[1].PnL, 1e-9)
	assert.InDelta(t, 9992.803, result.FinalEquity, 1e-9)
}

func TestNewEngine_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.RiskManagement.InitialCapital = 0

	_, err := NewEngine(cfg, nil)

	var cfgErr *domain.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "risk_management.initial_capital", cfgErr.Field)
}

func TestVectorEngine_MatchesEventEngine(t *testing.T) {
	cfg := config.Default()
	cfg.Trading.AllowConsecutiveTrades = true
	cfg.TradingCosts = config.TradingCosts{
		CommissionRate: 0.001,
		SpreadPoints:   0.5,
		PointValue:     2,
		SlippageRate:   0.0005,
	}
	cfg.RiskManagement.CommissionPerLot = 2

	// two interleaved symbols: a long that take-profits with a same-bar
	// short re-entry, a short that take-profits, and a trade still open at
	// the end of the series
	bars := []domain.PriceBar{
		long(testBar("EURUSD", 0, 101, 99, 100, 2)),
		testBar("EURUSD", 1, 103.5, 99.5, 103, 0),
		long(testBar("GBPUSD", 1, 51, 49.5, 50, 1)),
		short(testBar("EURUSD", 2, 104.5, 101, 104, 2)),
		testBar("EURUSD", 3, 106, 102, 105, 0),
		testBar("GBPUSD", 3, 51.5, 49, 50.5, 0),
		testBar("EURUSD", 4, 105, 99.5, 100, 0),
		testBar("GBPUSD", 5, 51.8, 50.2, 51, 0),
	}

	eventEngine, err := NewEngine(cfg, nil)
	require.NoError(t, err)
	eventResult, err := eventEngine.Run(bars)
	require.NoError(t, err)

	vectorEngine, err := NewVectorEngine(cfg, nil)
	require.NoError(t, err)
	vectorResult, err := vectorEngine.Run(bars)
	require.NoError(t, err)

	// three round trips: two EURUSD exits plus the forced GBPUSD settlement
	require.Len(t, eventResult.Trades, 6)

	assert.Empty(t, cmp.Diff(eventResult.Trades, vectorResult.Trades))
	assert.Empty(t, cmp.Diff(eventResult.EquityCurve, vectorResult.EquityCurve))
	assert.Equal(t, eventResult.FinalEquity, vectorResult.FinalEquity)
	assert.Equal(t, eventResult.FinalCash, vectorResult.FinalCash)

	require.Equal(t, len(eventResult.ClosedPositions), len(vectorResult.ClosedPositions))
	for i := range eventResult.ClosedPositions {
		a, b := eventResult.ClosedPositions[i], vectorResult.ClosedPositions[i]
		assert.Equal(t, a.Symbol, b.Symbol)
		assert.Equal(t, a.Direction, b.Direction)
		assert.Equal(t, *a.PnL, *b.PnL)
		assert.Equal(t, *a.ExitPrice, *b.ExitPrice)
	}
}
