package statistics

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/folio/internal/modules/marketdata"
)

type fakeHistory struct {
	ts    marketdata.TimeSeries
	calls int
}

func (f *fakeHistory) GetTimeSeries(tickers []string, lookbackDays int) (marketdata.TimeSeries, error) {
	f.calls++
	return f.ts, nil
}

func testSeries() marketdata.TimeSeries {
	return marketdata.TimeSeries{
		Dates: []string{"d1", "d2", "d3"},
		Data: map[string][]float64{
			"AAPL": {100, 102, 101},
			"MSFT": {50, 51, 52},
		},
	}
}

func TestService_GetEstimates_NoCache(t *testing.T) {
	history := &fakeHistory{ts: testSeries()}
	svc := NewService(history, NewBuilder(zerolog.Nop()), nil, zerolog.Nop())

	est, err := svc.GetEstimates([]string{"AAPL", "MSFT"}, 252)
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "MSFT"}, est.Tickers)
	assert.Equal(t, 1, history.calls)
}

func TestService_GetEstimates_CacheHit(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	cache := NewCache(db, zerolog.Nop())
	require.NoError(t, cache.InitSchema())

	history := &fakeHistory{ts: testSeries()}
	svc := NewService(history, NewBuilder(zerolog.Nop()), cache, zerolog.Nop())

	_, err = svc.GetEstimates([]string{"AAPL", "MSFT"}, 252)
	require.NoError(t, err)
	require.Equal(t, 1, history.calls)

	// Second call is served from the cache
	est, err := svc.GetEstimates([]string{"AAPL", "MSFT"}, 252)
	require.NoError(t, err)
	assert.Equal(t, 1, history.calls)
	assert.Equal(t, []string{"AAPL", "MSFT"}, est.Tickers)

	// Rebuild bypasses the cache
	_, err = svc.Rebuild([]string{"AAPL", "MSFT"}, 252)
	require.NoError(t, err)
	assert.Equal(t, 2, history.calls)
}
