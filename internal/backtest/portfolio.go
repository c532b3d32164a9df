package backtest

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"atrbacktest/internal/domain"
)

// Portfolio owns the cash, equity and open positions of one simulation run.
// Cash and equity are kept in decimal so repeated debits and credits do not
// accumulate float error; equity-curve samples are exported as float64.
//
// Invariant, recomputed after every mutation:
//
//	equity = cash + Σ unrealized P&L of open positions
type Portfolio struct {
	initialCapital decimal.Decimal
	cash           decimal.Decimal
	equity         decimal.Decimal

	positions map[string]*domain.Position
	closed    []*domain.Position
	events    []domain.TradeEvent

	// marks holds the latest reference price per symbol. Unrealized P&L
	// is always computed against the latest mark, never the entry price.
	marks map[string]float64
}

func NewPortfolio(initialCapital float64) *Portfolio {
	c := decimal.NewFromFloat(initialCapital)
	return &Portfolio{
		initialCapital: c,
		cash:           c,
		equity:         c,
		positions:      map[string]*domain.Position{},
		marks:          map[string]float64{},
	}
}

func (p *Portfolio) InitialCapital() float64 { return p.initialCapital.InexactFloat64() }
func (p *Portfolio) Cash() float64           { return p.cash.InexactFloat64() }
func (p *Portfolio) Equity() float64         { return p.equity.InexactFloat64() }
func (p *Portfolio) OpenCount() int          { return len(p.positions) }

// Position returns the open position for symbol, if any.
func (p *Portfolio) Position(symbol string) (*domain.Position, bool) {
	pos, ok := p.positions[symbol]
	return pos, ok
}

// ClosedPositions is the log of positions in close order.
func (p *Portfolio) ClosedPositions() []*domain.Position { return p.closed }

// Events is the chronological, append-only trade log.
func (p *Portfolio) Events() []domain.TradeEvent { return p.events }

func (p *Portfolio) HasSufficientFunds(amount float64) bool {
	return p.cash.GreaterThanOrEqual(decimal.NewFromFloat(amount))
}

// Mark records the latest reference price for symbol and recomputes equity
// against it.
func (p *Portfolio) Mark(symbol string, price float64) {
	p.marks[symbol] = price
	p.updateEquity()
}

// AddPosition opens pos, debiting the entry notional as margin plus the
// open-leg trading cost. At most one position may be open per symbol, and
// cash never goes negative; a signal violating either is rejected.
func (p *Portfolio) AddPosition(pos *domain.Position, openCost float64) error {
	if _, ok := p.positions[pos.Symbol]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicatePosition, pos.Symbol)
	}
	required := pos.Notional(pos.EntryPrice) + openCost
	if !p.HasSufficientFunds(required) {
		return fmt.Errorf("%w: need %.2f, have %s", domain.ErrInsufficientFunds, required, p.cash)
	}
	pos.EntryCost = openCost
	p.cash = p.cash.Sub(decimal.NewFromFloat(required))
	p.positions[pos.Symbol] = pos
	p.marks[pos.Symbol] = pos.EntryPrice
	p.updateEquity()
	p.record(pos, domain.ActionOpen, pos.EntryPrice, pos.EntryTime, nil)
	return nil
}

// RemovePosition closes the open position for pos.Symbol at exitPrice,
// moving it to the closed log. It is a no-op when the symbol has no open
// position. Closing releases the entry margin plus realized P&L, which for
// longs equals the exit notional and keeps short accounting symmetric.
func (p *Portfolio) RemovePosition(pos *domain.Position, exitPrice float64, ts time.Time, closeCost float64) error {
	if _, ok := p.positions[pos.Symbol]; !ok {
		return nil
	}
	if err := pos.Close(exitPrice, ts); err != nil {
		return err
	}
	gross := *pos.PnL
	release := pos.Notional(pos.EntryPrice) + gross - closeCost
	p.cash = p.cash.Add(decimal.NewFromFloat(release))
	delete(p.positions, pos.Symbol)
	p.closed = append(p.closed, pos)
	p.updateEquity()
	net := gross - pos.EntryCost - closeCost
	p.record(pos, domain.ActionClose, exitPrice, ts, &net)
	return nil
}

// updateEquity recomputes equity from cash and the mark-to-market value of
// every open position. Decimal addition is exact, so map iteration order
// cannot change the result.
func (p *Portfolio) updateEquity() {
	equity := p.cash
	for _, pos := range p.positions {
		mark, ok := p.marks[pos.Symbol]
		if !ok {
			mark = pos.EntryPrice
		}
		equity = equity.Add(decimal.NewFromFloat(pos.UnrealizedPnL(mark)))
	}
	p.equity = equity
}

func (p *Portfolio) record(pos *domain.Position, action domain.TradeAction, price float64, ts time.Time, pnl *float64) {
	p.events = append(p.events, domain.TradeEvent{
		Timestamp: ts,
		Symbol:    pos.Symbol,
		Action:    action,
		Direction: pos.Direction,
		Price:     price,
		Size:      pos.Size,
		PnL:       pnl,
		Cash:      p.cash.InexactFloat64(),
		Equity:    p.equity.InexactFloat64(),
	})
}
