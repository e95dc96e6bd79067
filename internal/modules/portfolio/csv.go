package portfolio

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/aristath/folio/internal/modules/marketdata"
)

// LoadWeightsCSV reads a two-column Ticker,Weight file. The header row is
// required; weights are not normalized here. A malformed or empty table
// surfaces as marketdata.DataError, same as the price-table loader.
func LoadWeightsCSV(r io.Reader) (map[string]float64, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, marketdata.NewDataError("holdings table has no header row: %v", err)
	}
	if len(header) < 2 {
		return nil, marketdata.NewDataError("holdings table needs Ticker and Weight columns, got %d columns", len(header))
	}

	weights := make(map[string]float64)
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, marketdata.NewDataError("malformed holdings row on line %d: %v", line, err)
		}

		weight, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, marketdata.NewDataError("invalid weight %q for %s on line %d", record[1], record[0], line)
		}
		weights[record[0]] = weight
	}

	return weights, nil
}

// WriteWeightsCSV writes an allocation as a two-column Ticker,Weight file,
// sorted by ticker so output is diffable.
func WriteWeightsCSV(w io.Writer, weights map[string]float64) error {
	tickers := make([]string, 0, len(weights))
	for ticker := range weights {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Ticker", "Weight"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, ticker := range tickers {
		record := []string{ticker, strconv.FormatFloat(weights[ticker], 'f', -1, 64)}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row for %s: %w", ticker, err)
		}
	}
	writer.Flush()
	return writer.Error()
}
