package optimization

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/modules/statistics"
)

// weightEpsilon snaps solver noise below this magnitude to exactly zero
// when extracting weights.
const weightEpsilon = 1e-9

// Mode selects the objective of the allocation model. The constraint set is
// identical across modes; an efficient frontier is traced by sweeping the
// risk constraint's right-hand side in ModeMaxReturn.
type Mode string

const (
	// ModeMaxReturn maximizes expected return subject to the risk cap.
	ModeMaxReturn Mode = "max_return"
	// ModeMinRisk minimizes total portfolio variance, ignoring returns.
	ModeMinRisk Mode = "min_risk"
)

// Parameters configures one allocation scenario.
type Parameters struct {
	SigmaTarget float64 `json:"sigma_target"` // max annualized volatility, > 0
	MaxChange   float64 `json:"max_change"`   // total one-way turnover cap Δ, >= 0
	MaxStocks   int     `json:"max_stocks"`   // cardinality cap k, >= 1
	MinWeight   float64 `json:"min_weight"`   // minimum nonzero stake ε, in (0, 1/k)
}

// Validate checks the parameter ranges.
func (p Parameters) Validate() error {
	if p.SigmaTarget <= 0 {
		return fmt.Errorf("sigma_target must be > 0, got %g", p.SigmaTarget)
	}
	if p.MaxChange < 0 {
		return fmt.Errorf("max_change must be >= 0, got %g", p.MaxChange)
	}
	if p.MaxStocks < 1 {
		return fmt.Errorf("max_stocks must be >= 1, got %d", p.MaxStocks)
	}
	if p.MinWeight <= 0 {
		return fmt.Errorf("min_weight must be > 0, got %g", p.MinWeight)
	}
	if p.MinWeight >= 1.0/float64(p.MaxStocks) {
		return fmt.Errorf("min_weight %g must be < 1/max_stocks (%g) for feasibility",
			p.MinWeight, 1.0/float64(p.MaxStocks))
	}
	return nil
}

// Solution is the extracted outcome of one solve. Immutable after extraction.
type Solution struct {
	Weights        map[string]float64 `json:"weights"` // nonzero positions only
	Objective      float64            `json:"objective"`
	Status         Status             `json:"status"`
	Gap            float64            `json:"gap"`
	MaxViolation   float64            `json:"max_violation"`
	ExpectedReturn float64            `json:"expected_return"`
	Volatility     float64            `json:"volatility"`
	StockCount     int                `json:"stock_count"`
	Turnover       float64            `json:"turnover"`
}

// Model is a built allocation model bound to one solver instance.
//
// Per stock i in the estimate universe it owns three variables:
//
//	x_i ∈ [0,1] continuous — new weight
//	δ_i ≥ 0    continuous — absolute deviation bound from the old weight
//	z_i ∈ {0,1} binary    — inclusion indicator
//
// and records the risk, turnover and cardinality constraint handles so a
// re-solve can mutate a single right-hand side without rebuilding.
//
// A Model is not safe for concurrent use.
type Model struct {
	solver     Solver
	est        *statistics.Estimates
	tickers    []string
	oldW       []float64
	liquidated float64

	x     []VarRef
	delta []VarRef
	z     []VarRef

	returnExpr *LinearExpr
	riskExpr   *QuadExpr

	riskCons        ConsRef
	turnoverCons    ConsRef
	cardinalityCons ConsRef

	params    Parameters
	mode      Mode
	tolerance float64

	log zerolog.Logger
}

// BuildModel constructs the full variable and constraint set on the solver.
// oldWeights maps ticker to existing weight; tickers absent from the map
// hold weight 0. Tickers in oldWeights but outside the estimate universe get
// no variables of their own: the model only reallocates within the universe
// it has statistics for, so those holdings are fully liquidated and their
// sale is charged to the solution's reported turnover.
//
// tolerance is the maximum accepted constraint violation: below it a
// violating solution is logged and kept, above it the solve fails.
func BuildModel(
	solver Solver,
	est *statistics.Estimates,
	oldWeights map[string]float64,
	params Parameters,
	tolerance float64,
	log zerolog.Logger,
) (*Model, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if len(est.Tickers) == 0 {
		return nil, fmt.Errorf("estimate universe is empty")
	}

	m := &Model{
		solver:    solver,
		est:       est,
		tickers:   est.Tickers,
		params:    params,
		mode:      ModeMaxReturn,
		tolerance: tolerance,
		log:       log.With().Str("component", "allocation_model").Logger(),
	}

	n := len(m.tickers)
	m.oldW = make([]float64, n)
	for i, ticker := range m.tickers {
		m.oldW[i] = oldWeights[ticker]
	}
	for ticker, w := range oldWeights {
		if _, ok := est.Return(ticker); !ok {
			m.liquidated += math.Abs(w) / 2
		}
	}

	m.x = make([]VarRef, n)
	m.delta = make([]VarRef, n)
	m.z = make([]VarRef, n)
	for i := 0; i < n; i++ {
		m.x[i] = solver.AddVariable(VarContinuous, 0, 1)
		m.delta[i] = solver.AddVariable(VarContinuous, 0, math.Inf(1))
		m.z[i] = solver.AddVariable(VarBinary, 0, 1)
	}

	// Budget: Σ x_i = 1
	budget := NewLinearExpr()
	for i := 0; i < n; i++ {
		budget.Add(m.x[i], 1)
	}
	solver.AddLinearConstraint(budget, SenseEQ, 1)

	// Risk: Σ_i Σ_j C_ij x_i x_j ≤ σ²
	m.riskExpr = NewQuadExpr()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if c := est.Cov[i][j]; c != 0 {
				m.riskExpr.Add(m.x[i], m.x[j], c)
			}
		}
	}
	m.riskCons = solver.AddQuadraticConstraint(m.riskExpr, SenseLE, params.SigmaTarget*params.SigmaTarget)

	// Turnover: x_i - w_i ≤ δ_i and w_i - x_i ≤ δ_i bound the deviation,
	// ½ Σ δ_i ≤ Δ caps total one-way turnover.
	for i := 0; i < n; i++ {
		up := NewLinearExpr().Add(m.x[i], 1).Add(m.delta[i], -1)
		solver.AddLinearConstraint(up, SenseLE, m.oldW[i])

		down := NewLinearExpr().Add(m.x[i], -1).Add(m.delta[i], -1)
		solver.AddLinearConstraint(down, SenseLE, -m.oldW[i])
	}
	turnover := NewLinearExpr()
	for i := 0; i < n; i++ {
		turnover.Add(m.delta[i], 0.5)
	}
	m.turnoverCons = solver.AddLinearConstraint(turnover, SenseLE, params.MaxChange)

	// Linking: ε z_i ≤ x_i ≤ z_i forces nonzero positions to meet the
	// minimum stake and zeroes x when z is off.
	for i := 0; i < n; i++ {
		lower := NewLinearExpr().Add(m.z[i], params.MinWeight).Add(m.x[i], -1)
		solver.AddLinearConstraint(lower, SenseLE, 0)

		upper := NewLinearExpr().Add(m.x[i], 1).Add(m.z[i], -1)
		solver.AddLinearConstraint(upper, SenseLE, 0)
	}

	// Cardinality: Σ z_i ≤ k
	cardinality := NewLinearExpr()
	for i := 0; i < n; i++ {
		cardinality.Add(m.z[i], 1)
	}
	m.cardinalityCons = solver.AddLinearConstraint(cardinality, SenseLE, float64(params.MaxStocks))

	// Expected-return expression, kept for the objective and for metrics.
	m.returnExpr = NewLinearExpr()
	for i, ticker := range m.tickers {
		r, _ := est.Return(ticker)
		m.returnExpr.Add(m.x[i], r)
	}

	m.applyObjective()

	m.log.Debug().
		Int("num_tickers", n).
		Float64("sigma_target", params.SigmaTarget).
		Float64("max_change", params.MaxChange).
		Int("max_stocks", params.MaxStocks).
		Msg("Built allocation model")

	return m, nil
}

// Tickers returns the model's universe in variable order.
func (m *Model) Tickers() []string {
	return m.tickers
}

// Params returns the model's current parameters.
func (m *Model) Params() Parameters {
	return m.params
}

// SetMode switches the objective without rebuilding the model.
func (m *Model) SetMode(mode Mode) {
	m.mode = mode
	m.applyObjective()
}

func (m *Model) applyObjective() {
	switch m.mode {
	case ModeMinRisk:
		m.solver.SetObjective(nil, m.riskExpr, Minimize)
	default:
		m.solver.SetObjective(m.returnExpr, nil, Maximize)
	}
}

// SetRiskTarget mutates only the risk constraint's right-hand side.
func (m *Model) SetRiskTarget(sigma float64) error {
	if sigma <= 0 {
		return fmt.Errorf("sigma_target must be > 0, got %g", sigma)
	}
	if err := m.solver.MutateRHS(m.riskCons, sigma*sigma); err != nil {
		return fmt.Errorf("failed to mutate risk target: %w", err)
	}
	m.params.SigmaTarget = sigma
	return nil
}

// SetTurnoverCap mutates only the turnover constraint's right-hand side.
func (m *Model) SetTurnoverCap(maxChange float64) error {
	if maxChange < 0 {
		return fmt.Errorf("max_change must be >= 0, got %g", maxChange)
	}
	if err := m.solver.MutateRHS(m.turnoverCons, maxChange); err != nil {
		return fmt.Errorf("failed to mutate turnover cap: %w", err)
	}
	m.params.MaxChange = maxChange
	return nil
}

// Solve submits the model and extracts the solution.
//
// Infeasible or unbounded models return *InfeasibleError. A constraint
// violation within the configured tolerance is logged and the solution
// accepted; beyond it the solve fails.
func (m *Model) Solve(ctx context.Context) (*Solution, error) {
	result, err := m.solver.Solve(ctx)
	if err != nil {
		var solverErr *SolverError
		if errors.As(err, &solverErr) {
			return nil, err
		}
		return nil, &SolverError{Diagnostic: "solve failed", Err: err}
	}

	switch result.Status {
	case StatusInfeasible, StatusUnbounded:
		return nil, &InfeasibleError{Status: result.Status}
	case StatusError:
		return nil, &SolverError{Diagnostic: result.Message}
	}

	if !result.HasSolution() {
		return nil, &InfeasibleError{Status: result.Status}
	}

	if result.MaxViolation > m.tolerance {
		return nil, &SolverError{
			Diagnostic: fmt.Sprintf("constraint violation %g exceeds tolerance %g", result.MaxViolation, m.tolerance),
		}
	}
	if result.MaxViolation > 0 {
		m.log.Warn().
			Float64("max_violation", result.MaxViolation).
			Float64("tolerance", m.tolerance).
			Msg("Solution violates constraints within tolerance, accepting")
	}

	return m.extract(result), nil
}

// extract derives the solution weights and reported metrics.
func (m *Model) extract(result Result) *Solution {
	n := len(m.tickers)

	weights := make([]float64, n)
	for i := 0; i < n; i++ {
		w := result.Values[m.x[i]]
		if math.Abs(w) < weightEpsilon {
			w = 0
		}
		weights[i] = w
	}

	sol := &Solution{
		Weights:      make(map[string]float64),
		Objective:    result.Objective,
		Status:       result.Status,
		Gap:          result.Gap,
		MaxViolation: result.MaxViolation,
		// Selling off old holdings outside the universe counts too.
		Turnover: m.liquidated,
	}

	variance := 0.0
	for i := 0; i < n; i++ {
		if weights[i] > 0 {
			sol.Weights[m.tickers[i]] = weights[i]
			sol.StockCount++
		}

		r, _ := m.est.Return(m.tickers[i])
		sol.ExpectedReturn += r * weights[i]
		sol.Turnover += math.Abs(weights[i]-m.oldW[i]) / 2

		for j := 0; j < n; j++ {
			variance += m.est.Cov[i][j] * weights[i] * weights[j]
		}
	}
	if variance > 0 {
		sol.Volatility = math.Sqrt(variance)
	}

	m.log.Info().
		Str("status", string(sol.Status)).
		Float64("objective", sol.Objective).
		Float64("expected_return", sol.ExpectedReturn).
		Float64("volatility", sol.Volatility).
		Int("stock_count", sol.StockCount).
		Float64("turnover", sol.Turnover).
		Msg("Extracted solution")

	return sol
}
