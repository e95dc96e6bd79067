package marketdata

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"
)

// LoadPricesCSV parses a price sheet: first column is the trading date,
// remaining columns are one ticker each. Empty cells are missing observations.
//
// Rows are expected in ascending date order, matching the input artifact.
func LoadPricesCSV(r io.Reader) (TimeSeries, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return TimeSeries{}, NewDataError("failed to parse price sheet: %v", err)
	}

	if len(records) < 2 {
		return TimeSeries{}, NewDataError("price sheet has no data rows")
	}

	header := records[0]
	if len(header) < 2 {
		return TimeSeries{}, NewDataError("price sheet needs a date column and at least one ticker column")
	}

	tickers := make([]string, len(header)-1)
	for i, name := range header[1:] {
		ticker := strings.TrimSpace(name)
		if ticker == "" {
			return TimeSeries{}, NewDataError("price sheet column %d has an empty ticker name", i+2)
		}
		tickers[i] = ticker
	}

	ts := TimeSeries{
		Dates: make([]string, 0, len(records)-1),
		Data:  make(map[string][]float64, len(tickers)),
	}
	for _, ticker := range tickers {
		ts.Data[ticker] = make([]float64, 0, len(records)-1)
	}

	for rowIdx, record := range records[1:] {
		if len(record) != len(header) {
			return TimeSeries{}, NewDataError("price sheet row %d has %d columns, expected %d", rowIdx+2, len(record), len(header))
		}

		date := strings.TrimSpace(record[0])
		if date == "" {
			return TimeSeries{}, NewDataError("price sheet row %d has an empty date", rowIdx+2)
		}
		ts.Dates = append(ts.Dates, date)

		for i, ticker := range tickers {
			cell := strings.TrimSpace(record[i+1])
			if cell == "" {
				ts.Data[ticker] = append(ts.Data[ticker], math.NaN())
				continue
			}
			price, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return TimeSeries{}, NewDataError("price sheet row %d, ticker %s: invalid price %q", rowIdx+2, ticker, cell)
			}
			ts.Data[ticker] = append(ts.Data[ticker], price)
		}
	}

	return ts, nil
}
