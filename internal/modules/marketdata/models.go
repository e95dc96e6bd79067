// Package marketdata provides price history storage and loading for Folio.
package marketdata

import "fmt"

// TimeSeries holds aligned daily closes for a set of tickers.
// Dates is trading-day ordered (ascending); each ticker column has one entry
// per date, with NaN marking a missing observation.
type TimeSeries struct {
	Dates []string             `json:"dates"`
	Data  map[string][]float64 `json:"data"`
}

// Tickers returns the ticker set of the series in no particular order.
func (ts TimeSeries) Tickers() []string {
	tickers := make([]string, 0, len(ts.Data))
	for ticker := range ts.Data {
		tickers = append(tickers, ticker)
	}
	return tickers
}

// DailyPrice represents a single daily close observation.
type DailyPrice struct {
	Ticker string  `json:"ticker"`
	Date   string  `json:"date"` // YYYY-MM-DD
	Close  float64 `json:"close"`
}

// DataError signals a malformed or empty price/portfolio table.
// It is fatal: surfaced immediately, never retried.
type DataError struct {
	Msg string
}

func (e *DataError) Error() string {
	return "data error: " + e.Msg
}

// NewDataError creates a DataError with a formatted message.
func NewDataError(format string, args ...interface{}) *DataError {
	return &DataError{Msg: fmt.Sprintf(format, args...)}
}
