package optimization

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/modules/statistics"
)

// SolverFactory creates a fresh solver session. Each built model owns one
// solver instance, so sweeps and scenarios never share mutable solver state.
type SolverFactory func() Solver

// HoldingsSource provides the old portfolio weights.
type HoldingsSource interface {
	GetWeights() (map[string]float64, error)
}

// EstimatesSource provides return/covariance estimates for a universe.
type EstimatesSource interface {
	GetEstimates(tickers []string, lookbackDays int) (*statistics.Estimates, error)
}

// RunRecorder persists solve outcomes. Recording failures must not fail
// the solve, so implementations log and swallow their own errors.
type RunRecorder interface {
	RecordOptimize(tickers []string, params Parameters, sol *Solution)
	RecordSweep(tickers []string, params Parameters, points []SweepPoint)
}

// Service orchestrates statistics, model construction and solving.
type Service struct {
	stats        EstimatesSource
	holdings     HoldingsSource
	factory      SolverFactory
	recorder     RunRecorder // optional
	tolerance    float64
	lookbackDays int
	log          zerolog.Logger
}

// NewService creates the optimization service.
func NewService(
	stats EstimatesSource,
	holdings HoldingsSource,
	factory SolverFactory,
	tolerance float64,
	lookbackDays int,
	log zerolog.Logger,
) *Service {
	return &Service{
		stats:        stats,
		holdings:     holdings,
		factory:      factory,
		tolerance:    tolerance,
		lookbackDays: lookbackDays,
		log:          log.With().Str("component", "optimizer").Logger(),
	}
}

// OptimizeRequest describes one allocation scenario.
type OptimizeRequest struct {
	Tickers []string   `json:"tickers"`
	Params  Parameters `json:"params"`
	Mode    Mode       `json:"mode,omitempty"` // default max_return
}

// SweepRequest describes a parameter sweep over one constraint.
type SweepRequest struct {
	Tickers []string   `json:"tickers"`
	Params  Parameters `json:"params"`
	Kind    SweepKind  `json:"kind"`
	Targets []float64  `json:"targets"`
}

// Optimize solves a single scenario.
func (s *Service) Optimize(ctx context.Context, req OptimizeRequest) (*Solution, error) {
	model, err := s.buildModel(req.Tickers, req.Params)
	if err != nil {
		return nil, err
	}
	if req.Mode != "" {
		model.SetMode(req.Mode)
	}

	sol, err := model.Solve(ctx)
	if err != nil {
		return nil, err
	}

	if s.recorder != nil {
		s.recorder.RecordOptimize(req.Tickers, model.Params(), sol)
	}
	return sol, nil
}

// SetRecorder attaches a run recorder. Call before serving requests.
func (s *Service) SetRecorder(recorder RunRecorder) {
	s.recorder = recorder
}

// Sweep runs a parameter sweep, recording infeasible points and continuing.
func (s *Service) Sweep(ctx context.Context, req SweepRequest) ([]SweepPoint, error) {
	if len(req.Targets) == 0 {
		return nil, fmt.Errorf("sweep needs at least one target value")
	}

	model, err := s.buildModel(req.Tickers, req.Params)
	if err != nil {
		return nil, err
	}

	points, err := RunSweep(ctx, model, req.Kind, req.Targets, s.log)
	if err != nil {
		return nil, err
	}

	if s.recorder != nil {
		s.recorder.RecordSweep(req.Tickers, model.Params(), points)
	}
	return points, nil
}

func (s *Service) buildModel(tickers []string, params Parameters) (*Model, error) {
	if len(tickers) == 0 {
		return nil, fmt.Errorf("no tickers in universe")
	}

	est, err := s.stats.GetEstimates(tickers, s.lookbackDays)
	if err != nil {
		return nil, fmt.Errorf("failed to build estimates: %w", err)
	}

	oldWeights, err := s.holdings.GetWeights()
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings: %w", err)
	}

	return BuildModel(s.factory(), est, oldWeights, params, s.tolerance, s.log)
}
