package optimization

import (
	"context"
	"fmt"
)

// VarKind distinguishes continuous from binary decision variables.
type VarKind string

const (
	VarContinuous VarKind = "continuous"
	VarBinary     VarKind = "binary"
)

// Sense is a constraint comparison direction.
type Sense string

const (
	SenseLE Sense = "<="
	SenseGE Sense = ">="
	SenseEQ Sense = "="
)

// Direction is the optimization direction of the objective.
type Direction string

const (
	Minimize Direction = "minimize"
	Maximize Direction = "maximize"
)

// Status is the solver's reported outcome.
type Status string

const (
	StatusOptimal    Status = "optimal"
	StatusInfeasible Status = "infeasible"
	StatusUnbounded  Status = "unbounded"
	StatusTimeLimit  Status = "time_limit"
	StatusError      Status = "error"
)

// Result is what a solve returns: the terminal status, the incumbent (when
// one exists), the reported optimality gap and the worst constraint
// violation the solver measured against its own tolerances.
type Result struct {
	Status       Status
	Objective    float64
	Values       map[VarRef]float64
	Gap          float64
	MaxViolation float64
	Message      string
}

// HasSolution reports whether the result carries usable variable values.
// A time-limited solve may still carry an incumbent.
func (r Result) HasSolution() bool {
	if len(r.Values) == 0 {
		return false
	}
	return r.Status == StatusOptimal || r.Status == StatusTimeLimit
}

// Solver is the narrow interface to the external combinatorial solver.
// Implementations must support mutating a single constraint's right-hand
// side or replacing the objective between solves without rebuilding the
// model, since solver setup cost dominates for large universes.
//
// A Solver instance is not safe for concurrent use; parallel sweeps need
// independently built models.
type Solver interface {
	AddVariable(kind VarKind, lower, upper float64) VarRef
	AddLinearConstraint(expr *LinearExpr, sense Sense, rhs float64) ConsRef
	AddQuadraticConstraint(expr *QuadExpr, sense Sense, rhs float64) ConsRef
	SetObjective(linear *LinearExpr, quad *QuadExpr, direction Direction)
	MutateRHS(cons ConsRef, rhs float64) error
	Solve(ctx context.Context) (Result, error)
}

// InfeasibleError reports that the solver found the model infeasible or
// unbounded. Recoverable at the sweep level, fatal for a single scenario.
type InfeasibleError struct {
	Status Status
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("model has no usable solution: %s", e.Status)
}

// SolverError reports that the underlying solver crashed or could not be
// invoked. The solver's diagnostic text is attached.
type SolverError struct {
	Diagnostic string
	Err        error
}

func (e *SolverError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("solver error: %s: %v", e.Diagnostic, e.Err)
	}
	return "solver error: " + e.Diagnostic
}

func (e *SolverError) Unwrap() error {
	return e.Err
}
