package domain

import "time"

// TradeAction distinguishes the two legs of a trade.
type TradeAction string

const (
	ActionOpen  TradeAction = "open"
	ActionClose TradeAction = "close"
)

// TradeEvent is one row of the append-only audit log kept by the portfolio.
// Events are never mutated after they are recorded.
type TradeEvent struct {
	Timestamp time.Time   `json:"timestamp"`
	Symbol    string      `json:"symbol"`
	Action    TradeAction `json:"action"`
	Direction Direction   `json:"direction"`
	Price     float64     `json:"price"`
	Size      float64     `json:"size"`

	// PnL is net of trading costs on both legs; nil for open events.
	PnL *float64 `json:"pnl,omitempty"`

	Cash   float64 `json:"cash"`
	Equity float64 `json:"equity"`
}
