package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	feedWriteWait   = 10 * time.Second
	feedDialTimeout = 30 * time.Second

	baseReconnectDelay   = 5 * time.Second
	maxReconnectDelay    = 5 * time.Minute
	maxReconnectAttempts = 10
)

// PriceSink receives daily closes from the quote feed.
type PriceSink interface {
	UpsertClose(p DailyPrice) error
}

// QuoteFeed streams end-of-day quotes from a websocket source and writes
// them into the price history. It reconnects with exponential backoff and
// is safe to stop at any time.
type QuoteFeed struct {
	url     string
	tickers []string
	sink    PriceSink
	log     zerolog.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	connCtx    context.Context
	cancelFunc context.CancelFunc
	connected  bool
	stopped    bool
	stopChan   chan struct{}
}

// quoteMessage is the wire format of a single quote update.
type quoteMessage struct {
	Ticker string  `json:"ticker"`
	Date   string  `json:"date"`
	Close  float64 `json:"close"`
}

// NewQuoteFeed creates a quote feed for the given tickers.
func NewQuoteFeed(url string, tickers []string, sink PriceSink, log zerolog.Logger) *QuoteFeed {
	return &QuoteFeed{
		url:      url,
		tickers:  tickers,
		sink:     sink,
		log:      log.With().Str("component", "quote_feed").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start establishes the connection and begins the read loop. An initial
// connection failure is not fatal: the reconnect loop takes over in the
// background and Start still returns nil, so a transient outage at boot
// does not take the caller down with it.
func (qf *QuoteFeed) Start() error {
	qf.log.Info().Str("url", qf.url).Msg("Starting quote feed")

	if err := qf.connect(); err != nil {
		qf.log.Warn().Err(err).Msg("Initial quote feed connection failed, will retry in background")
		go qf.reconnectLoop()
		return nil
	}

	qf.mu.Lock()
	ctx := qf.connCtx
	qf.mu.Unlock()
	go qf.readMessages(ctx)

	return nil
}

// Stop gracefully shuts down the feed.
func (qf *QuoteFeed) Stop() error {
	qf.mu.Lock()
	if qf.stopped {
		qf.mu.Unlock()
		return nil
	}
	qf.stopped = true
	qf.mu.Unlock()

	qf.log.Info().Msg("Stopping quote feed")
	close(qf.stopChan)
	return qf.disconnect()
}

func (qf *QuoteFeed) connect() error {
	qf.mu.Lock()
	defer qf.mu.Unlock()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), feedDialTimeout)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, qf.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial quote feed: %w", err)
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	qf.conn = conn
	qf.connCtx = connCtx
	qf.cancelFunc = connCancel
	qf.connected = true

	if err := qf.subscribe(connCtx); err != nil {
		connCancel()
		conn.Close(websocket.StatusNormalClosure, "subscribe failed")
		qf.conn = nil
		qf.connCtx = nil
		qf.cancelFunc = nil
		qf.connected = false
		return fmt.Errorf("failed to subscribe to quotes: %w", err)
	}

	qf.log.Info().Int("num_tickers", len(qf.tickers)).Msg("Connected to quote feed")
	return nil
}

func (qf *QuoteFeed) disconnect() error {
	qf.mu.Lock()
	defer qf.mu.Unlock()

	if qf.conn == nil {
		return nil
	}

	if qf.cancelFunc != nil {
		qf.cancelFunc()
		qf.cancelFunc = nil
	}

	err := qf.conn.Close(websocket.StatusNormalClosure, "")
	qf.conn = nil
	qf.connCtx = nil
	qf.connected = false

	if err != nil {
		return fmt.Errorf("error closing quote feed: %w", err)
	}
	return nil
}

func (qf *QuoteFeed) subscribe(ctx context.Context) error {
	data, err := json.Marshal(map[string]interface{}{
		"action":  "subscribe",
		"tickers": qf.tickers,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal subscription message: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, feedWriteWait)
	defer cancel()

	if err := qf.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to send subscription message: %w", err)
	}
	return nil
}

func (qf *QuoteFeed) readMessages(ctx context.Context) {
	for {
		qf.mu.Lock()
		conn := qf.conn
		qf.mu.Unlock()

		if conn == nil {
			return
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			select {
			case <-qf.stopChan:
				return
			default:
			}

			qf.log.Warn().Err(err).Msg("Quote feed read failed, reconnecting")
			_ = qf.disconnect()
			go qf.reconnectLoop()
			return
		}

		qf.handleMessage(data)
	}
}

func (qf *QuoteFeed) handleMessage(data []byte) {
	var msg quoteMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		qf.log.Warn().Err(err).Msg("Failed to decode quote message")
		return
	}

	if msg.Ticker == "" || msg.Date == "" || msg.Close <= 0 || math.IsNaN(msg.Close) {
		qf.log.Debug().
			Str("ticker", msg.Ticker).
			Str("date", msg.Date).
			Float64("close", msg.Close).
			Msg("Ignoring invalid quote")
		return
	}

	if err := qf.sink.UpsertClose(DailyPrice{Ticker: msg.Ticker, Date: msg.Date, Close: msg.Close}); err != nil {
		qf.log.Error().Err(err).Str("ticker", msg.Ticker).Msg("Failed to store quote")
	}
}

func (qf *QuoteFeed) reconnectLoop() {
	delay := baseReconnectDelay

	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		select {
		case <-qf.stopChan:
			return
		case <-time.After(delay):
		}

		qf.log.Info().Int("attempt", attempt).Msg("Reconnecting quote feed")

		if err := qf.connect(); err == nil {
			qf.mu.Lock()
			ctx := qf.connCtx
			qf.mu.Unlock()
			go qf.readMessages(ctx)
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}

	qf.log.Error().
		Int("max_attempts", maxReconnectAttempts).
		Msg("Quote feed reconnection gave up")
}
