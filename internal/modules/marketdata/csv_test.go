package marketdata

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPricesCSV(t *testing.T) {
	sheet := strings.Join([]string{
		"Date,AAPL,MSFT",
		"2024-01-02,185.5,370.1",
		"2024-01-03,,372.4",
		"2024-01-04,182.0,369.8",
	}, "\n")

	ts, err := LoadPricesCSV(strings.NewReader(sheet))
	require.NoError(t, err)

	assert.Equal(t, []string{"2024-01-02", "2024-01-03", "2024-01-04"}, ts.Dates)
	require.Contains(t, ts.Data, "AAPL")
	require.Contains(t, ts.Data, "MSFT")

	assert.Equal(t, 185.5, ts.Data["AAPL"][0])
	assert.True(t, math.IsNaN(ts.Data["AAPL"][1]), "empty cell should be NaN")
	assert.Equal(t, 182.0, ts.Data["AAPL"][2])
	assert.Equal(t, []float64{370.1, 372.4, 369.8}, ts.Data["MSFT"])
}

func TestLoadPricesCSV_Errors(t *testing.T) {
	testCases := []struct {
		name  string
		sheet string
	}{
		{"empty input", ""},
		{"header only", "Date,AAPL"},
		{"no ticker columns", "Date\n2024-01-02"},
		{"empty ticker name", "Date,AAPL,\n2024-01-02,1,2"},
		{"ragged row", "Date,AAPL\n2024-01-02,185.5,42"},
		{"empty date", "Date,AAPL\n,185.5"},
		{"bad price", "Date,AAPL\n2024-01-02,not-a-number"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadPricesCSV(strings.NewReader(tc.sheet))
			require.Error(t, err)

			var dataErr *DataError
			assert.ErrorAs(t, err, &dataErr)
		})
	}
}

func TestTimeSeries_Tickers(t *testing.T) {
	ts := TimeSeries{Data: map[string][]float64{"AAPL": nil, "MSFT": nil}}
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, ts.Tickers())
}
