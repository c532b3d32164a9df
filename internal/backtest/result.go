package backtest

import (
	"time"

	"atrbacktest/internal/domain"
)

// EquityPoint is one equity-curve sample, taken once per bar.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// Result is the raw output of one simulation run: the audit log, the closed
// positions and the equity trajectory. The performance analyzer reduces it
// to statistics; external reporting consumes it as-is.
type Result struct {
	Trades          []domain.TradeEvent `json:"trades"`
	ClosedPositions []*domain.Position  `json:"closed_positions"`
	EquityCurve     []EquityPoint       `json:"equity_curve"`
	InitialCapital  float64             `json:"initial_capital"`
	FinalEquity     float64             `json:"final_equity"`
	FinalCash       float64             `json:"final_cash"`
}
