package domain

import "time"

// ATRColumn is the conventional indicator column name for the Average True
// Range, which sizes stops, targets and risk-based positions.
const ATRColumn = "ATR"

// PriceBar is one OHLCV sample of a price series, annotated upstream with
// entry signals and indicator columns. Bars are immutable once produced;
// the simulation never writes to them.
type PriceBar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`

	LongSignal  bool `json:"long_signal"`
	ShortSignal bool `json:"short_signal"`

	// Indicators holds externally computed numeric columns keyed by name.
	// A missing column disables the features that depend on it rather
	// than failing the run.
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

// Indicator returns the named column and whether it is present.
func (b PriceBar) Indicator(name string) (float64, bool) {
	v, ok := b.Indicators[name]
	return v, ok
}

// Valid reports whether the bar carries the fields required to act on a
// signal. Signals on invalid bars are dropped; the bar itself still
// contributes to the series.
func (b PriceBar) Valid() bool {
	return b.Symbol != "" && b.Close > 0 && b.Volume > 0
}
