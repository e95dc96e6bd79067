package portfolio

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
)

// Service wraps the holdings repository with validation.
type Service struct {
	repo *Repository
	log  zerolog.Logger
}

// NewService creates a portfolio service.
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("component", "portfolio").Logger(),
	}
}

// GetHoldings returns the stored allocation.
func (s *Service) GetHoldings() ([]Holding, error) {
	return s.repo.GetAll()
}

// GetWeights returns the stored allocation keyed by ticker. An empty
// portfolio is a valid state: every weight reads as 0.
func (s *Service) GetWeights() (map[string]float64, error) {
	return s.repo.GetWeights()
}

// SetWeights validates and stores a new allocation. Weights must be
// non-negative and sum to 1 (or the map must be empty).
func (s *Service) SetWeights(weights map[string]float64) error {
	sum := 0.0
	for ticker, weight := range weights {
		if weight < 0 {
			return fmt.Errorf("holding %s has negative weight %g", ticker, weight)
		}
		sum += weight
	}
	if len(weights) > 0 && math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("holdings weights sum to %g, expected 1", sum)
	}

	return s.repo.ReplaceAll(weights)
}
