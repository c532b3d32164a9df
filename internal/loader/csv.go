package loader

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/gocarina/gocsv"

	"atrbacktest/internal/domain"
)

// barRow mirrors one CSV row of an annotated price series. The atr column
// is optional; a zero or absent value means the indicator is unavailable
// for that bar.
type barRow struct {
	Symbol      string  `csv:"symbol"`
	Timestamp   string  `csv:"timestamp"`
	Open        float64 `csv:"open"`
	High        float64 `csv:"high"`
	Low         float64 `csv:"low"`
	Close       float64 `csv:"close"`
	Volume      float64 `csv:"volume"`
	ATR         float64 `csv:"atr"`
	LongSignal  bool    `csv:"long_signal"`
	ShortSignal bool    `csv:"short_signal"`
}

// ReadBars parses an annotated bar series from CSV and returns it sorted by
// timestamp. Rows that would fail signal validation are kept; the engine
// drops their signals. An unparseable timestamp fails the load.
func ReadBars(r io.Reader) ([]domain.PriceBar, error) {
	rows := []*barRow{}
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse bar series: %w", err)
	}

	bars := make([]domain.PriceBar, 0, len(rows))
	for i, row := range rows {
		ts, err := time.Parse(time.RFC3339, row.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp on row %d: %w", i+1, err)
		}
		bar := domain.PriceBar{
			Symbol:      row.Symbol,
			Timestamp:   ts,
			Open:        row.Open,
			High:        row.High,
			Low:         row.Low,
			Close:       row.Close,
			Volume:      row.Volume,
			LongSignal:  row.LongSignal,
			ShortSignal: row.ShortSignal,
		}
		if row.ATR > 0 {
			bar.Indicators = map[string]float64{domain.ATRColumn: row.ATR}
		}
		bars = append(bars, bar)
	}

	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	return bars, nil
}

// ReadBarsFile is ReadBars over a file path.
func ReadBarsFile(path string) ([]domain.PriceBar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bar series: %w", err)
	}
	defer f.Close()
	return ReadBars(f)
}
