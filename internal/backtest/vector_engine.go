package backtest

import (
	"sort"

	"go.uber.org/zap"

	"atrbacktest/internal/config"
	"atrbacktest/internal/domain"
)

// plannedTrade is one open/close pair confirmed by the vector pass over the
// whole series. Sizing is deferred to replay time because risk-based sizing
// depends on equity at the moment the position opens.
type plannedTrade struct {
	symbol    string
	direction domain.Direction
	openIdx   int
	closeIdx  int
	exitPrice float64
	atr       float64
	forced    bool
	skipped   bool
}

// VectorEngine produces the same trade semantics as Engine for rules with
// no path dependency beyond "first signal wins". It precomputes entry
// eligibility and the first stop/take crossing for every candidate over the
// whole series with array scans, then replays only the confirmed events
// through the same portfolio transitions.
//
// Funds-sufficiency and the global open cap are still enforced at replay; a
// planned open they reject is dropped along with its close.
type VectorEngine struct {
	inner *Engine
}

func NewVectorEngine(cfg config.StrategyConfig, log *zap.SugaredLogger) (*VectorEngine, error) {
	inner, err := NewEngine(cfg, log)
	if err != nil {
		return nil, err
	}
	return &VectorEngine{inner: inner}, nil
}

// Run plans every symbol's trades, then replays them bar by bar.
func (v *VectorEngine) Run(bars []domain.PriceBar) (*Result, error) {
	bySymbol := map[string][]int{}
	for i := range bars {
		bySymbol[bars[i].Symbol] = append(bySymbol[bars[i].Symbol], i)
	}

	openAt := map[int]*plannedTrade{}
	closeAt := map[int]*plannedTrade{}
	var forced []*plannedTrade
	for _, idx := range bySymbol {
		for _, trade := range v.plan(bars, idx) {
			openAt[trade.openIdx] = trade
			if trade.forced {
				forced = append(forced, trade)
			} else {
				closeAt[trade.closeIdx] = trade
			}
		}
	}

	return v.replay(bars, openAt, closeAt, forced)
}

// plan walks one symbol's bars (idx holds their indices in the full series)
// and emits the trades the event-driven machine would confirm. Exit
// scanning starts on the bar after the entry; a close and a re-entry may
// land on the same bar, exits first.
func (v *VectorEngine) plan(bars []domain.PriceBar, idx []int) []*plannedTrade {
	e := v.inner
	var trades []*plannedTrade
	var lastClosed domain.Direction

	i := 0
	for i < len(idx) {
		bar := bars[idx[i]]
		if (!bar.LongSignal && !bar.ShortSignal) || !bar.Valid() {
			i++
			continue
		}
		direction, ok := e.entryDirection(bar, lastClosed)
		if !ok {
			i++
			continue
		}
		atr, hasATR := bar.Indicator(domain.ATRColumn)
		stop, take, ok := e.exitLevels(bar.Close, atr, hasATR, direction)
		if !ok {
			i++
			continue
		}

		trade := &plannedTrade{
			symbol:    bar.Symbol,
			direction: direction,
			openIdx:   idx[i],
			atr:       atr,
		}
		hit := false
		for j := i + 1; j < len(idx); j++ {
			if price, crossed := crossingExit(direction, stop, take, bars[idx[j]]); crossed {
				trade.closeIdx = idx[j]
				trade.exitPrice = price
				hit = true
				i = j
				break
			}
		}
		if !hit {
			last := idx[len(idx)-1]
			trade.closeIdx = last
			trade.exitPrice = bars[last].Close
			trade.forced = true
			trades = append(trades, trade)
			break
		}
		trades = append(trades, trade)
		lastClosed = direction
	}
	return trades
}

func (v *VectorEngine) replay(bars []domain.PriceBar, openAt, closeAt map[int]*plannedTrade, forced []*plannedTrade) (*Result, error) {
	e := v.inner
	portfolio := NewPortfolio(e.cfg.RiskManagement.InitialCapital)
	open := map[string]*domain.Position{}
	curve := make([]EquityPoint, 0, len(bars))

	for i := range bars {
		bar := bars[i]
		portfolio.Mark(bar.Symbol, bar.Close)

		if trade, ok := closeAt[i]; ok && !trade.skipped {
			pos := open[trade.symbol]
			closeCost := e.costs.Total(pos.Notional(trade.exitPrice), CostContext{Lots: pos.Size})
			if err := portfolio.RemovePosition(pos, trade.exitPrice, bar.Timestamp, closeCost); err != nil {
				return nil, err
			}
			delete(open, trade.symbol)
		}

		if trade, ok := openAt[i]; ok {
			size, sizeOK := e.positionSize(portfolio, trade.atr, trade.atr > 0)
			if !sizeOK || size <= 0 || portfolio.OpenCount() >= e.cfg.RiskManagement.MaxOpenTrades {
				trade.skipped = true
			} else {
				pos := domain.NewPosition(trade.symbol, trade.direction, bar.Close, size, bar.Timestamp)
				openCost := e.costs.Total(pos.Notional(bar.Close), CostContext{Lots: size})
				if err := portfolio.AddPosition(pos, openCost); err != nil {
					e.log.Debugw("planned open rejected", "symbol", trade.symbol, "err", err)
					trade.skipped = true
				} else {
					open[trade.symbol] = pos
				}
			}
		}

		curve = append(curve, EquityPoint{Timestamp: bar.Timestamp, Equity: portfolio.Equity()})
	}

	// settle forced trades after the last sample, matching the
	// event-driven engine
	sort.Slice(forced, func(i, j int) bool { return forced[i].symbol < forced[j].symbol })
	for _, trade := range forced {
		if trade.skipped {
			continue
		}
		pos := open[trade.symbol]
		bar := bars[trade.closeIdx]
		closeCost := e.costs.Total(pos.Notional(trade.exitPrice), CostContext{Lots: pos.Size})
		if err := portfolio.RemovePosition(pos, trade.exitPrice, bar.Timestamp, closeCost); err != nil {
			return nil, err
		}
		delete(open, trade.symbol)
	}

	return &Result{
		Trades:          portfolio.Events(),
		ClosedPositions: portfolio.ClosedPositions(),
		EquityCurve:     curve,
		InitialCapital:  portfolio.InitialCapital(),
		FinalEquity:     portfolio.Equity(),
		FinalCash:       portfolio.Cash(),
	}, nil
}
