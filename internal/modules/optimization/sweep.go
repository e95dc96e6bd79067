package optimization

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// SweepKind selects which constraint's right-hand side a sweep mutates.
type SweepKind string

const (
	// SweepRisk sweeps the risk cap σ_target (efficient frontier).
	SweepRisk SweepKind = "risk"
	// SweepTurnover sweeps the turnover cap Δ.
	SweepTurnover SweepKind = "turnover"
)

// SweepPoint is one sweep observation. Infeasible targets are recorded with
// Feasible=false and a nil Solution; the sweep continues past them.
type SweepPoint struct {
	Target    float64   `json:"target"`
	Feasible  bool      `json:"feasible"`
	Objective float64   `json:"objective,omitempty"`
	Solution  *Solution `json:"solution,omitempty"`
}

// RunSweep re-solves the model once per target, mutating only the selected
// constraint's right-hand side between solves. The model is left
// parameterized at the last target; callers wanting the original value back
// must restore it themselves.
//
// Solver failures abort the sweep; infeasible points do not.
func RunSweep(ctx context.Context, model *Model, kind SweepKind, targets []float64, log zerolog.Logger) ([]SweepPoint, error) {
	sweepLog := log.With().Str("component", "sweep").Str("kind", string(kind)).Logger()
	points := make([]SweepPoint, 0, len(targets))

	for _, target := range targets {
		var err error
		switch kind {
		case SweepRisk:
			err = model.SetRiskTarget(target)
		case SweepTurnover:
			err = model.SetTurnoverCap(target)
		default:
			return nil, &SolverError{Diagnostic: "unknown sweep kind: " + string(kind)}
		}
		if err != nil {
			return nil, err
		}

		sol, err := model.Solve(ctx)
		if err != nil {
			var infeasible *InfeasibleError
			if errors.As(err, &infeasible) {
				sweepLog.Info().
					Float64("target", target).
					Str("status", string(infeasible.Status)).
					Msg("Sweep point infeasible, continuing")
				points = append(points, SweepPoint{Target: target, Feasible: false})
				continue
			}
			return nil, err
		}

		points = append(points, SweepPoint{
			Target:    target,
			Feasible:  true,
			Objective: sol.Objective,
			Solution:  sol,
		})
	}

	sweepLog.Info().
		Int("num_targets", len(targets)).
		Int("feasible", countFeasible(points)).
		Msg("Completed parameter sweep")

	return points, nil
}

func countFeasible(points []SweepPoint) int {
	n := 0
	for _, p := range points {
		if p.Feasible {
			n++
		}
	}
	return n
}
