package backtest

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"atrbacktest/internal/config"
	"atrbacktest/internal/domain"
)

// slot holds the per-symbol state of the Flat → Open → Flat machine: the
// open position with its exit levels, and the direction of the most recent
// closed trade for the consecutive-trade rule.
type slot struct {
	position   *domain.Position
	stopLoss   float64
	takeProfit float64
	lastClosed domain.Direction
}

// Engine replays a time-ordered bar series through a fresh portfolio,
// opening positions on entry signals and closing them when a bar's range
// crosses the stop-loss or take-profit level. One engine run is
// single-threaded and deterministic.
type Engine struct {
	cfg   config.StrategyConfig
	costs *CostManager
	log   *zap.SugaredLogger
}

func NewEngine(cfg config.StrategyConfig, log *zap.SugaredLogger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.S()
	}
	return &Engine{cfg: cfg, costs: NewCostManager(cfg), log: log}, nil
}

// Run consumes the bar series in order and returns the trade history and
// equity curve. Signal-level rejections (insufficient funds, duplicate
// position, invalid rows) drop the signal and continue; only bookkeeping
// invariant violations abort the run.
func (e *Engine) Run(bars []domain.PriceBar) (*Result, error) {
	portfolio := NewPortfolio(e.cfg.RiskManagement.InitialCapital)
	slots := map[string]*slot{}
	lastBar := map[string]domain.PriceBar{}
	curve := make([]EquityPoint, 0, len(bars))

	for i := range bars {
		bar := bars[i]
		s := slots[bar.Symbol]
		if s == nil {
			s = &slot{}
			slots[bar.Symbol] = s
		}
		lastBar[bar.Symbol] = bar

		portfolio.Mark(bar.Symbol, bar.Close)

		if s.position != nil {
			if exitPrice, hit := crossingExit(s.position.Direction, s.stopLoss, s.takeProfit, bar); hit {
				if err := e.closePosition(portfolio, s, exitPrice, bar.Timestamp); err != nil {
					return nil, err
				}
			}
		}
		if s.position == nil {
			e.tryOpen(portfolio, s, bar)
		}

		curve = append(curve, EquityPoint{Timestamp: bar.Timestamp, Equity: portfolio.Equity()})
	}

	if err := e.settle(portfolio, slots, lastBar); err != nil {
		return nil, err
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

// crossingExit applies the intrabar tie-break: the stop-loss is checked
// before the take-profit, so a bar whose range crosses both fills at the
// stop. Exits always fill exactly at the triggered level.
func crossingExit(direction domain.Direction, stop, take float64, bar domain.PriceBar) (float64, bool) {
	if direction == domain.Long {
		if bar.Low <= stop {
			return stop, true
		}
		if bar.High >= take {
			return take, true
		}
		return 0, false
	}
	if bar.High >= stop {
		return stop, true
	}
	if bar.Low <= take {
		return take, true
	}
	return 0, false
}

func (e *Engine) closePosition(p *Portfolio, s *slot, exitPrice float64, ts time.Time) error {
	pos := s.position
	closeCost := e.costs.Total(pos.Notional(exitPrice), CostContext{Lots: pos.Size})
	if err := p.RemovePosition(pos, exitPrice, ts, closeCost); err != nil {
		return fmt.Errorf("failed to close %s position: %w", pos.Symbol, err)
	}
	s.lastClosed = pos.Direction
	s.position = nil
	return nil
}

// tryOpen runs the Flat → Open transition checks for one bar: signal
// present, row valid, consecutive-trade rule, global open cap, sizing and
// exit levels resolvable, funds sufficient.
func (e *Engine) tryOpen(p *Portfolio, s *slot, bar domain.PriceBar) {
	if !bar.LongSignal && !bar.ShortSignal {
		return
	}
	if !bar.Valid() {
		e.log.Debugw("dropping signal on invalid row", "symbol", bar.Symbol, "timestamp", bar.Timestamp)
		return
	}

	direction, ok := e.entryDirection(bar, s.lastClosed)
	if !ok {
		e.log.Debugw("consecutive trade rejected", "symbol", bar.Symbol, "last", s.lastClosed)
		return
	}

	if p.OpenCount() >= e.cfg.RiskManagement.MaxOpenTrades {
		e.log.Debugw("open-trade cap reached", "symbol", bar.Symbol, "cap", e.cfg.RiskManagement.MaxOpenTrades)
		return
	}

	atr, hasATR := bar.Indicator(domain.ATRColumn)
	size, ok := e.positionSize(p, atr, hasATR)
	if !ok || size <= 0 {
		return
	}
	entry := bar.Close
	stop, take, ok := e.exitLevels(entry, atr, hasATR, direction)
	if !ok {
		return
	}

	pos := domain.NewPosition(bar.Symbol, direction, entry, size, bar.Timestamp)
	openCost := e.costs.Total(pos.Notional(entry), CostContext{Lots: size})
	if err := p.AddPosition(pos, openCost); err != nil {
		e.log.Debugw("signal rejected", "symbol", bar.Symbol, "err", err)
		return
	}
	s.position = pos
	s.stopLoss = stop
	s.takeProfit = take
}

// entryDirection resolves a bar's signals against the consecutive-trade
// rule: with allow_consecutive_trades off, a fresh position may not repeat
// the direction of the previous closed trade, though the opposite direction
// is always fair game. Long signals win when both fire.
func (e *Engine) entryDirection(bar domain.PriceBar, lastClosed domain.Direction) (domain.Direction, bool) {
	allow := e.cfg.Trading.AllowConsecutiveTrades
	switch {
	case bar.LongSignal && (allow || lastClosed != domain.Long):
		return domain.Long, true
	case bar.ShortSignal && (allow || lastClosed != domain.Short):
		return domain.Short, true
	}
	return "", false
}

// positionSize returns the lot size for a new position. Risk-based sizing
// needs the ATR column; without it the signal is skipped.
func (e *Engine) positionSize(p *Portfolio, atr float64, hasATR bool) (float64, bool) {
	rm := e.cfg.RiskManagement
	if rm.PositionSizing.Type == config.SizingFixed {
		return rm.PositionSizing.FixedVolume, true
	}
	if !hasATR || atr <= 0 {
		return 0, false
	}
	riskAmount := p.Equity() * rm.RiskPercentage
	stopDistance := atr * rm.StopLossMultiplier
	return riskAmount / (stopDistance * rm.PipValue), true
}

// exitLevels computes the stop-loss and take-profit levels from the entry
// price and the bar's ATR, sign depending on direction.
func (e *Engine) exitLevels(entry, atr float64, hasATR bool, direction domain.Direction) (stop, take float64, ok bool) {
	if !hasATR || atr <= 0 {
		return 0, 0, false
	}
	rules := e.cfg.Trading.ExitRules
	if direction == domain.Long {
		return entry - atr*rules.StopLoss.Value, entry + atr*rules.TakeProfit.Value, true
	}
	return entry + atr*rules.StopLoss.Value, entry - atr*rules.TakeProfit.Value, true
}

// settle force-closes anything still open at its symbol's final bar close so
// the trade history is complete. Symbols are visited in sorted order to keep
// the event log deterministic.
func (e *Engine) settle(p *Portfolio, slots map[string]*slot, lastBar map[string]domain.PriceBar) error {
	symbols := make([]string, 0, len(slots))
	for symbol, s := range slots {
		if s.position != nil {
			symbols = append(symbols, symbol)
		}
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		s := slots[symbol]
		bar := lastBar[symbol]
		if err := e.closePosition(p, s, bar.Close, bar.Timestamp); err != nil {
			return err
		}
	}
	return nil
}
