package statistics

import (
	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/modules/marketdata"
)

// HistorySource provides aligned price history for a ticker universe.
type HistorySource interface {
	GetTimeSeries(tickers []string, lookbackDays int) (marketdata.TimeSeries, error)
}

// Service builds estimates from stored price history, with caching.
type Service struct {
	history HistorySource
	builder *Builder
	cache   *Cache // optional
	log     zerolog.Logger
}

// NewService creates a statistics service. cache may be nil.
func NewService(history HistorySource, builder *Builder, cache *Cache, log zerolog.Logger) *Service {
	return &Service{
		history: history,
		builder: builder,
		cache:   cache,
		log:     log.With().Str("component", "statistics_service").Logger(),
	}
}

// GetEstimates returns estimates for the universe, from cache when fresh.
func (s *Service) GetEstimates(tickers []string, lookbackDays int) (*Estimates, error) {
	key := CacheKey(tickers, lookbackDays)

	if s.cache != nil {
		if est, ok := s.cache.Get(key); ok {
			s.log.Debug().
				Int("num_tickers", len(tickers)).
				Str("key", key[:8]).
				Msg("Using cached estimates")
			return est, nil
		}
	}

	est, err := s.Rebuild(tickers, lookbackDays)
	if err != nil {
		return nil, err
	}

	return est, nil
}

// Rebuild recomputes estimates from price history, bypassing the cache,
// and stores the fresh result when a cache is configured.
func (s *Service) Rebuild(tickers []string, lookbackDays int) (*Estimates, error) {
	ts, err := s.history.GetTimeSeries(tickers, lookbackDays)
	if err != nil {
		return nil, err
	}

	est, err := s.builder.Build(ts)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		key := CacheKey(tickers, lookbackDays)
		if err := s.cache.Set(key, est, DefaultTTL); err != nil {
			s.log.Warn().Err(err).Msg("Failed to cache estimates")
		}
	}

	return est, nil
}
