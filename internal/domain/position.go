package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Direction of a position. Size stays positive; the direction carries the
// sign in P&L math.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Position is a single directional exposure in one symbol. It is created
// only through Portfolio.AddPosition and owned by the portfolio until it is
// closed, at which point ownership moves to the closed-positions log.
type Position struct {
	ID         uuid.UUID `json:"id"`
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	Size       float64   `json:"size"`
	EntryTime  time.Time `json:"entry_time"`

	// EntryCost is the trading cost charged on the open leg, retained so
	// the close leg can report P&L net of both legs.
	EntryCost float64 `json:"entry_cost"`

	ExitPrice *float64   `json:"exit_price,omitempty"`
	ExitTime  *time.Time `json:"exit_time,omitempty"`

	// PnL is the realized gross P&L, set exactly once by Close. Trading
	// costs are netted on the close trade event, not here.
	PnL *float64 `json:"pnl,omitempty"`

	closed bool
}

func NewPosition(symbol string, direction Direction, entryPrice, size float64, entryTime time.Time) *Position {
	return &Position{
		ID:         uuid.New(),
		Symbol:     symbol,
		Direction:  direction,
		EntryPrice: entryPrice,
		Size:       size,
		EntryTime:  entryTime,
	}
}

// UnrealizedPnL marks the position to market at price without mutating it.
func (p *Position) UnrealizedPnL(price float64) float64 {
	if p.Direction == Long {
		return (price - p.EntryPrice) * p.Size
	}
	return (p.EntryPrice - price) * p.Size
}

// Notional is price × size, used for margin and cash bookkeeping.
func (p *Position) Notional(price float64) float64 {
	return p.Size * price
}

// Close realizes the position at exitPrice. Entry and exit fields are
// immutable afterwards; a second Close is a bookkeeping bug, not a
// recoverable condition.
func (p *Position) Close(exitPrice float64, ts time.Time) error {
	if p.closed {
		return fmt.Errorf("%w: position %s already closed", ErrInvalidState, p.ID)
	}
	pnl := p.UnrealizedPnL(exitPrice)
	p.ExitPrice = &exitPrice
	p.ExitTime = &ts
	p.PnL = &pnl
	p.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (p *Position) Closed() bool { return p.closed }

func (p *Position) String() string {
	return fmt.Sprintf("Position(%s, %s, entry=%.5f, size=%.2f)", p.Symbol, p.Direction, p.EntryPrice, p.Size)
}
