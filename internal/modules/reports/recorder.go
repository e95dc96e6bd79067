package reports

import (
	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/modules/optimization"
)

// Recorder adapts the run repository to the optimizer's RunRecorder
// interface. Persistence failures are logged, never surfaced: losing a
// report must not fail the solve that produced it.
type Recorder struct {
	repo *Repository
	log  zerolog.Logger
}

// NewRecorder creates a run recorder.
func NewRecorder(repo *Repository, log zerolog.Logger) *Recorder {
	return &Recorder{
		repo: repo,
		log:  log.With().Str("component", "run_recorder").Logger(),
	}
}

// RecordOptimize implements optimization.RunRecorder.
func (r *Recorder) RecordOptimize(tickers []string, params optimization.Parameters, sol *optimization.Solution) {
	_, err := r.repo.Save(Run{
		Kind:     RunOptimize,
		Tickers:  tickers,
		Params:   params,
		Solution: sol,
	})
	if err != nil {
		r.log.Error().Err(err).Msg("Failed to record optimize run")
	}
}

// RecordSweep implements optimization.RunRecorder.
func (r *Recorder) RecordSweep(tickers []string, params optimization.Parameters, points []optimization.SweepPoint) {
	_, err := r.repo.Save(Run{
		Kind:    RunSweep,
		Tickers: tickers,
		Params:  params,
		Points:  points,
	})
	if err != nil {
		r.log.Error().Err(err).Msg("Failed to record sweep run")
	}
}
