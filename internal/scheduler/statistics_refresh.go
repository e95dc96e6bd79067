package scheduler

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/modules/statistics"
)

// TickerSource lists the universe to refresh estimates for.
type TickerSource interface {
	ListTickers() ([]string, error)
}

// StatisticsRebuilder recomputes estimates, bypassing any cache.
type StatisticsRebuilder interface {
	Rebuild(tickers []string, lookbackDays int) (*statistics.Estimates, error)
}

// StatisticsRefreshJob recomputes return and covariance estimates for every
// ticker with stored history, so the first optimize request after new prices
// arrive does not pay the estimation cost.
type StatisticsRefreshJob struct {
	tickers      TickerSource
	stats        StatisticsRebuilder
	lookbackDays int
	log          zerolog.Logger
}

// NewStatisticsRefreshJob creates the refresh job.
func NewStatisticsRefreshJob(
	tickers TickerSource,
	stats StatisticsRebuilder,
	lookbackDays int,
	log zerolog.Logger,
) *StatisticsRefreshJob {
	return &StatisticsRefreshJob{
		tickers:      tickers,
		stats:        stats,
		lookbackDays: lookbackDays,
		log:          log.With().Str("job", "statistics_refresh").Logger(),
	}
}

// Name implements Job.
func (j *StatisticsRefreshJob) Name() string {
	return "statistics_refresh"
}

// Run implements Job. An empty universe is a no-op, not an error.
func (j *StatisticsRefreshJob) Run() error {
	tickers, err := j.tickers.ListTickers()
	if err != nil {
		return fmt.Errorf("failed to list tickers: %w", err)
	}
	if len(tickers) == 0 {
		j.log.Info().Msg("No price history yet, skipping refresh")
		return nil
	}

	est, err := j.stats.Rebuild(tickers, j.lookbackDays)
	if err != nil {
		return fmt.Errorf("failed to rebuild estimates: %w", err)
	}

	j.log.Info().
		Int("num_tickers", len(est.Tickers)).
		Int("observations", est.Observations).
		Msg("Refreshed return and covariance estimates")

	return nil
}
