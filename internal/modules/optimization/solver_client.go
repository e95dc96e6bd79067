package optimization

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// SolverOptions are passed through to the external solver on every solve.
type SolverOptions struct {
	TimeLimit time.Duration // 0 = solver default
	MIPGap    float64       // relative MIP gap, 0 = solver default
}

// RemoteSolver implements Solver against the external MIQP solver service.
//
// The model is accumulated locally and uploaded once on the first Solve; the
// service keeps it in a session so later solves only push right-hand-side
// mutations and objective changes. This keeps re-parameterized sweeps cheap:
// solver setup cost dominates for large universes.
type RemoteSolver struct {
	baseURL string
	client  *http.Client
	opts    SolverOptions
	log     zerolog.Logger

	vars       []wireVariable
	linCons    []wireLinearConstraint
	quadCons   []wireQuadConstraint
	objective  wireObjective
	modelID    string
	pendingRHS map[ConsRef]float64
	dirtyObj   bool
}

// NewRemoteSolver creates a client for one model session. Each model needs
// its own RemoteSolver instance.
func NewRemoteSolver(baseURL string, opts SolverOptions, log zerolog.Logger) *RemoteSolver {
	return &RemoteSolver{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 120 * time.Second, // branch-and-bound can take a while
		},
		opts:       opts,
		log:        log.With().Str("client", "solver").Logger(),
		pendingRHS: make(map[ConsRef]float64),
	}
}

// Wire types (mirror the solver service API)

type wireVariable struct {
	Kind  string   `json:"kind"`
	Lower float64  `json:"lower"`
	Upper *float64 `json:"upper"` // null = unbounded above
}

type wireLinearTerm struct {
	Var   int     `json:"var"`
	Coeff float64 `json:"coeff"`
}

type wireQuadTerm struct {
	VarI  int     `json:"var_i"`
	VarJ  int     `json:"var_j"`
	Coeff float64 `json:"coeff"`
}

type wireLinearConstraint struct {
	Terms []wireLinearTerm `json:"terms"`
	Sense string           `json:"sense"`
	RHS   float64          `json:"rhs"`
}

type wireQuadConstraint struct {
	Terms []wireQuadTerm `json:"terms"`
	Sense string         `json:"sense"`
	RHS   float64        `json:"rhs"`
}

type wireObjective struct {
	Linear    []wireLinearTerm `json:"linear,omitempty"`
	Quadratic []wireQuadTerm   `json:"quadratic,omitempty"`
	Direction string           `json:"direction"`
}

type wireModel struct {
	Variables            []wireVariable         `json:"variables"`
	LinearConstraints    []wireLinearConstraint `json:"linear_constraints"`
	QuadraticConstraints []wireQuadConstraint   `json:"quadratic_constraints"`
	Objective            wireObjective          `json:"objective"`
}

type wireSolveRequest struct {
	TimeLimitSeconds float64 `json:"time_limit_seconds,omitempty"`
	MIPGap           float64 `json:"mip_gap,omitempty"`
}

type wireSolveResult struct {
	Status       string    `json:"status"`
	Objective    float64   `json:"objective"`
	Values       []float64 `json:"values"`
	Gap          float64   `json:"gap"`
	MaxViolation float64   `json:"max_violation"`
	Message      string    `json:"message"`
}

// serviceResponse is the standard envelope from the solver service.
type serviceResponse struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *string         `json:"error"`
	Timestamp string          `json:"timestamp"`
}

// AddVariable registers a variable and returns its handle.
func (s *RemoteSolver) AddVariable(kind VarKind, lower, upper float64) VarRef {
	v := wireVariable{Kind: string(kind), Lower: lower}
	if !isInf(upper) {
		u := upper
		v.Upper = &u
	}
	s.vars = append(s.vars, v)
	return VarRef(len(s.vars) - 1)
}

// AddLinearConstraint registers a linear row and returns its handle.
// Linear and quadratic rows share one handle space: quadratic handles are
// offset past the linear ones.
func (s *RemoteSolver) AddLinearConstraint(expr *LinearExpr, sense Sense, rhs float64) ConsRef {
	row := wireLinearConstraint{Sense: string(sense), RHS: rhs}
	for _, v := range expr.Vars() {
		row.Terms = append(row.Terms, wireLinearTerm{Var: int(v), Coeff: expr.Coeffs[v]})
	}
	s.linCons = append(s.linCons, row)
	return ConsRef(len(s.linCons) - 1)
}

// quadConsOffset keeps quadratic handles disjoint from linear ones.
const quadConsOffset = 1 << 20

// AddQuadraticConstraint registers a quadratic row and returns its handle.
func (s *RemoteSolver) AddQuadraticConstraint(expr *QuadExpr, sense Sense, rhs float64) ConsRef {
	row := wireQuadConstraint{Sense: string(sense), RHS: rhs}
	for _, k := range expr.Terms() {
		row.Terms = append(row.Terms, wireQuadTerm{VarI: int(k.I), VarJ: int(k.J), Coeff: expr.Coeffs[k]})
	}
	s.quadCons = append(s.quadCons, row)
	return ConsRef(quadConsOffset + len(s.quadCons) - 1)
}

// SetObjective replaces the objective. Either expression may be nil.
func (s *RemoteSolver) SetObjective(linear *LinearExpr, quad *QuadExpr, direction Direction) {
	obj := wireObjective{Direction: string(direction)}
	if linear != nil {
		for _, v := range linear.Vars() {
			obj.Linear = append(obj.Linear, wireLinearTerm{Var: int(v), Coeff: linear.Coeffs[v]})
		}
	}
	if quad != nil {
		for _, k := range quad.Terms() {
			obj.Quadratic = append(obj.Quadratic, wireQuadTerm{VarI: int(k.I), VarJ: int(k.J), Coeff: quad.Coeffs[k]})
		}
	}
	s.objective = obj
	s.dirtyObj = s.modelID != ""
}

// MutateRHS stages a right-hand-side change, pushed before the next solve.
func (s *RemoteSolver) MutateRHS(cons ConsRef, rhs float64) error {
	if cons >= quadConsOffset {
		idx := int(cons - quadConsOffset)
		if idx >= len(s.quadCons) {
			return &SolverError{Diagnostic: fmt.Sprintf("unknown quadratic constraint handle %d", cons)}
		}
		s.quadCons[idx].RHS = rhs
	} else {
		idx := int(cons)
		if idx >= len(s.linCons) {
			return &SolverError{Diagnostic: fmt.Sprintf("unknown linear constraint handle %d", cons)}
		}
		s.linCons[idx].RHS = rhs
	}

	if s.modelID != "" {
		s.pendingRHS[cons] = rhs
	}
	return nil
}

// Solve uploads the model (or its staged mutations) and runs the solver.
func (s *RemoteSolver) Solve(ctx context.Context) (Result, error) {
	if s.modelID == "" {
		if err := s.uploadModel(ctx); err != nil {
			return Result{}, err
		}
	} else {
		if err := s.pushMutations(ctx); err != nil {
			return Result{}, err
		}
	}

	req := wireSolveRequest{MIPGap: s.opts.MIPGap}
	if s.opts.TimeLimit > 0 {
		req.TimeLimitSeconds = s.opts.TimeLimit.Seconds()
	}

	data, err := s.post(ctx, "/models/"+s.modelID+"/solve", req)
	if err != nil {
		return Result{}, err
	}

	var wire wireSolveResult
	if err := json.Unmarshal(data, &wire); err != nil {
		return Result{}, &SolverError{Diagnostic: "failed to parse solve result", Err: err}
	}

	result := Result{
		Status:       mapStatus(wire.Status),
		Objective:    wire.Objective,
		Gap:          wire.Gap,
		MaxViolation: wire.MaxViolation,
		Message:      wire.Message,
		Values:       make(map[VarRef]float64, len(wire.Values)),
	}
	for i, v := range wire.Values {
		result.Values[VarRef(i)] = v
	}

	s.log.Debug().
		Str("status", string(result.Status)).
		Float64("objective", result.Objective).
		Float64("gap", result.Gap).
		Msg("Solver returned")

	return result, nil
}

func (s *RemoteSolver) uploadModel(ctx context.Context) error {
	model := wireModel{
		Variables:            s.vars,
		LinearConstraints:    s.linCons,
		QuadraticConstraints: s.quadCons,
		Objective:            s.objective,
	}

	data, err := s.post(ctx, "/models", model)
	if err != nil {
		return err
	}

	var created struct {
		ModelID string `json:"model_id"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		return &SolverError{Diagnostic: "failed to parse model id", Err: err}
	}
	if created.ModelID == "" {
		return &SolverError{Diagnostic: "solver service returned empty model id"}
	}

	s.modelID = created.ModelID
	s.log.Debug().
		Str("model_id", s.modelID).
		Int("num_vars", len(s.vars)).
		Int("num_linear", len(s.linCons)).
		Int("num_quadratic", len(s.quadCons)).
		Msg("Uploaded model to solver service")

	return nil
}

func (s *RemoteSolver) pushMutations(ctx context.Context) error {
	// Constraint handles are a client-side encoding; the service sees the
	// uploaded linear and quadratic arrays, so mutations address a row by
	// kind and index within its array.
	for cons, rhs := range s.pendingRHS {
		kind, index := "linear", int(cons)
		if cons >= quadConsOffset {
			kind, index = "quadratic", int(cons-quadConsOffset)
		}
		payload := map[string]interface{}{
			"kind":  kind,
			"index": index,
			"rhs":   rhs,
		}
		if _, err := s.post(ctx, "/models/"+s.modelID+"/rhs", payload); err != nil {
			return err
		}
	}
	s.pendingRHS = make(map[ConsRef]float64)

	if s.dirtyObj {
		if _, err := s.post(ctx, "/models/"+s.modelID+"/objective", s.objective); err != nil {
			return err
		}
		s.dirtyObj = false
	}
	return nil
}

// post sends a JSON request and unwraps the service envelope.
func (s *RemoteSolver) post(ctx context.Context, path string, payload interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &SolverError{Diagnostic: "failed to marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &SolverError{Diagnostic: "failed to build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &SolverError{Diagnostic: "solver service unreachable", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &SolverError{Diagnostic: "failed to read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &SolverError{
			Diagnostic: fmt.Sprintf("solver service returned HTTP %d: %s", resp.StatusCode, truncate(string(raw), 500)),
		}
	}

	var envelope serviceResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &SolverError{Diagnostic: "failed to parse response envelope", Err: err}
	}
	if !envelope.Success {
		diagnostic := "solver service reported failure"
		if envelope.Error != nil {
			diagnostic = *envelope.Error
		}
		return nil, &SolverError{Diagnostic: diagnostic}
	}

	return envelope.Data, nil
}

func mapStatus(s string) Status {
	switch s {
	case "optimal":
		return StatusOptimal
	case "infeasible":
		return StatusInfeasible
	case "unbounded":
		return StatusUnbounded
	case "time_limit":
		return StatusTimeLimit
	default:
		return StatusError
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func isInf(f float64) bool {
	return f > 1e300
}
