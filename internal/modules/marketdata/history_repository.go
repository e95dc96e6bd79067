package marketdata

import (
	"database/sql"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
)

// HistoryRepository provides access to the daily price history database.
type HistoryRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryRepository creates a new history repository.
func NewHistoryRepository(db *sql.DB, log zerolog.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:  db,
		log: log.With().Str("component", "history_repo").Logger(),
	}
}

// InitSchema creates the daily_prices table if it does not exist.
func (r *HistoryRepository) InitSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS daily_prices (
			ticker TEXT NOT NULL,
			date   TEXT NOT NULL,
			close  REAL NOT NULL,
			PRIMARY KEY (ticker, date)
		);
		CREATE INDEX IF NOT EXISTS idx_daily_prices_date ON daily_prices(date);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create daily_prices schema: %w", err)
	}
	return nil
}

// UpsertClose inserts or replaces a single daily close.
func (r *HistoryRepository) UpsertClose(p DailyPrice) error {
	query := `
		INSERT INTO daily_prices (ticker, date, close)
		VALUES (?, ?, ?)
		ON CONFLICT(ticker, date) DO UPDATE SET close = excluded.close
	`
	if _, err := r.db.Exec(query, p.Ticker, p.Date, p.Close); err != nil {
		return fmt.Errorf("failed to upsert close for %s@%s: %w", p.Ticker, p.Date, err)
	}
	return nil
}

// SaveSeries stores a whole time series in one transaction.
// NaN entries are skipped (they stay missing in the database).
func (r *HistoryRepository) SaveSeries(ts TimeSeries) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO daily_prices (ticker, date, close)
		VALUES (?, ?, ?)
		ON CONFLICT(ticker, date) DO UPDATE SET close = excluded.close
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	rows := 0
	for ticker, prices := range ts.Data {
		for i, price := range prices {
			if math.IsNaN(price) {
				continue
			}
			if _, err := stmt.Exec(ticker, ts.Dates[i], price); err != nil {
				return fmt.Errorf("failed to insert %s@%s: %w", ticker, ts.Dates[i], err)
			}
			rows++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit price series: %w", err)
	}

	r.log.Debug().
		Int("rows", rows).
		Int("num_tickers", len(ts.Data)).
		Msg("Saved price series")

	return nil
}

// ListTickers returns every ticker with stored price history, sorted.
func (r *HistoryRepository) ListTickers() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT ticker FROM daily_prices ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickers: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		tickers = append(tickers, ticker)
	}

	return tickers, rows.Err()
}

// GetTimeSeries fetches the most recent lookbackDays of closes for the given
// tickers and aligns them on the union of trading dates. Dates where a ticker
// has no observation are NaN.
func (r *HistoryRepository) GetTimeSeries(tickers []string, lookbackDays int) (TimeSeries, error) {
	if len(tickers) == 0 {
		return TimeSeries{}, NewDataError("no tickers requested")
	}

	pricesByTicker := make(map[string]map[string]float64, len(tickers))
	dateSet := make(map[string]struct{})

	query := `
		SELECT date, close
		FROM daily_prices
		WHERE ticker = ?
		ORDER BY date DESC
		LIMIT ?
	`

	for _, ticker := range tickers {
		rows, err := r.db.Query(query, ticker, lookbackDays)
		if err != nil {
			return TimeSeries{}, fmt.Errorf("failed to query prices for %s: %w", ticker, err)
		}

		byDate := make(map[string]float64)
		for rows.Next() {
			var date string
			var close float64
			if err := rows.Scan(&date, &close); err != nil {
				rows.Close()
				return TimeSeries{}, fmt.Errorf("failed to scan price row: %w", err)
			}
			byDate[date] = close
			dateSet[date] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return TimeSeries{}, fmt.Errorf("failed to iterate price rows: %w", err)
		}
		rows.Close()

		pricesByTicker[ticker] = byDate
	}

	if len(dateSet) == 0 {
		return TimeSeries{}, NewDataError("no price history for requested tickers")
	}

	dates := make([]string, 0, len(dateSet))
	for date := range dateSet {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	data := make(map[string][]float64, len(tickers))
	for _, ticker := range tickers {
		prices := make([]float64, len(dates))
		for i, date := range dates {
			if price, ok := pricesByTicker[ticker][date]; ok {
				prices[i] = price
			} else {
				prices[i] = math.NaN()
			}
		}
		data[ticker] = prices
	}

	r.log.Debug().
		Int("num_dates", len(dates)).
		Int("num_tickers", len(data)).
		Msg("Built price time series")

	return TimeSeries{Dates: dates, Data: data}, nil
}
