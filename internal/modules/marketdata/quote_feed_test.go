package marketdata

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	prices []DailyPrice
}

func (s *recordingSink) UpsertClose(p DailyPrice) error {
	s.prices = append(s.prices, p)
	return nil
}

func TestQuoteFeed_HandleMessage(t *testing.T) {
	sink := &recordingSink{}
	feed := NewQuoteFeed("ws://example.invalid/quotes", []string{"AAPL"}, sink, zerolog.Nop())

	feed.handleMessage([]byte(`{"ticker":"AAPL","date":"2024-01-02","close":185.5}`))

	assert.Len(t, sink.prices, 1)
	assert.Equal(t, DailyPrice{Ticker: "AAPL", Date: "2024-01-02", Close: 185.5}, sink.prices[0])
}

func TestQuoteFeed_HandleMessage_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
	}{
		{"not json", `quote AAPL 185.5`},
		{"missing ticker", `{"date":"2024-01-02","close":185.5}`},
		{"missing date", `{"ticker":"AAPL","close":185.5}`},
		{"non-positive close", `{"ticker":"AAPL","date":"2024-01-02","close":0}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sink := &recordingSink{}
			feed := NewQuoteFeed("ws://example.invalid/quotes", nil, sink, zerolog.Nop())

			feed.handleMessage([]byte(tc.raw))
			assert.Empty(t, sink.prices)
		})
	}
}

// An unreachable feed at startup must not be fatal: Start hands off to the
// reconnect loop and returns nil, and Stop still shuts the loop down cleanly.
func TestQuoteFeed_StartUnreachableHandsOffToReconnect(t *testing.T) {
	feed := NewQuoteFeed("ws://127.0.0.1:1/quotes", []string{"AAPL"}, &recordingSink{}, zerolog.Nop())

	assert.NoError(t, feed.Start())
	assert.NoError(t, feed.Stop())
}

func TestQuoteFeed_StopIdempotent(t *testing.T) {
	feed := NewQuoteFeed("ws://example.invalid/quotes", nil, &recordingSink{}, zerolog.Nop())

	assert.NoError(t, feed.Stop())
	assert.NoError(t, feed.Stop())
}
