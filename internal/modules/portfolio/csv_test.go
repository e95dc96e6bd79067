package portfolio

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/folio/internal/modules/marketdata"
)

func TestLoadWeightsCSV(t *testing.T) {
	input := "Ticker,Weight\nAAA,0.6\nBBB,0.4\n"

	weights, err := LoadWeightsCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"AAA": 0.6, "BBB": 0.4}, weights)
}

func TestLoadWeightsCSV_BadWeight(t *testing.T) {
	input := "Ticker,Weight\nAAA,not-a-number\n"

	_, err := LoadWeightsCSV(strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AAA")
}

// Malformed or empty holdings tables must carry the same error type as
// malformed price tables, so callers can tell bad input from I/O faults.
func TestLoadWeightsCSV_Errors(t *testing.T) {
	testCases := []struct {
		name  string
		input string
	}{
		{"empty file", ""},
		{"missing weight column", "Ticker\nAAA\n"},
		{"non-numeric weight", "Ticker,Weight\nAAA,notanumber\n"},
		{"ragged row", "Ticker,Weight\nAAA,0.5,extra\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadWeightsCSV(strings.NewReader(tc.input))
			require.Error(t, err)

			var dataErr *marketdata.DataError
			assert.ErrorAs(t, err, &dataErr)
		})
	}
}

func TestWriteWeightsCSV_SortedRoundTrip(t *testing.T) {
	weights := map[string]float64{"ZZZ": 0.25, "AAA": 0.5, "MMM": 0.25}

	var buf bytes.Buffer
	require.NoError(t, WriteWeightsCSV(&buf, weights))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Ticker,Weight", lines[0])
	assert.Equal(t, "AAA,0.5", lines[1])
	assert.Equal(t, "MMM,0.25", lines[2])
	assert.Equal(t, "ZZZ,0.25", lines[3])

	parsed, err := LoadWeightsCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, weights, parsed)
}
