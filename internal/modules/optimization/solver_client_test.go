package optimization

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// solverStub fakes the external solver service, recording everything it
// receives and replaying canned solve results.
type solverStub struct {
	t *testing.T

	uploads    []wireModel
	mutations  []map[string]interface{}
	objectives []wireObjective
	solves     int

	solveResult  wireSolveResult
	failSolve    string // non-empty: respond with a failure envelope
	failSolveRaw int    // non-zero: respond with this HTTP status and no envelope
}

func (s *solverStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		var m wireModel
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&m))
		s.uploads = append(s.uploads, m)
		s.respond(w, map[string]string{"model_id": fmt.Sprintf("m%d", len(s.uploads))})
	})
	mux.HandleFunc("/models/m1/rhs", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&payload))
		s.mutations = append(s.mutations, payload)
		s.respond(w, map[string]string{})
	})
	mux.HandleFunc("/models/m1/objective", func(w http.ResponseWriter, r *http.Request) {
		var obj wireObjective
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&obj))
		s.objectives = append(s.objectives, obj)
		s.respond(w, map[string]string{})
	})
	mux.HandleFunc("/models/m1/solve", func(w http.ResponseWriter, r *http.Request) {
		s.solves++
		if s.failSolveRaw != 0 {
			http.Error(w, "internal solver crash", s.failSolveRaw)
			return
		}
		if s.failSolve != "" {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"error":   s.failSolve,
			})
			return
		}
		s.respond(w, s.solveResult)
	})
	return mux
}

func (s *solverStub) respond(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

func newStubSolver(t *testing.T) (*solverStub, *RemoteSolver, func()) {
	stub := &solverStub{
		t: t,
		solveResult: wireSolveResult{
			Status:    "optimal",
			Objective: 0.25,
			Values:    []float64{0.5, 0.15, 1},
		},
	}
	server := httptest.NewServer(stub.handler())
	solver := NewRemoteSolver(server.URL, SolverOptions{}, zerolog.Nop())
	return stub, solver, server.Close
}

func TestRemoteSolver_UploadsModelOnFirstSolve(t *testing.T) {
	stub, solver, done := newStubSolver(t)
	defer done()

	x := solver.AddVariable(VarContinuous, 0, 1)
	d := solver.AddVariable(VarContinuous, 0, math.Inf(1))
	z := solver.AddVariable(VarBinary, 0, 1)

	solver.AddLinearConstraint(NewLinearExpr().Add(x, 1), SenseEQ, 1)
	solver.AddQuadraticConstraint(NewQuadExpr().Add(x, x, 0.125), SenseLE, 0.0625)
	solver.SetObjective(NewLinearExpr().Add(x, 0.3), nil, Maximize)

	result, err := solver.Solve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusOptimal, result.Status)
	assert.Equal(t, 0.25, result.Objective)
	assert.Equal(t, 0.5, result.Values[x])
	assert.Equal(t, 0.15, result.Values[d])
	assert.Equal(t, 1.0, result.Values[z])

	require.Len(t, stub.uploads, 1)
	model := stub.uploads[0]
	require.Len(t, model.Variables, 3)
	assert.Equal(t, "binary", model.Variables[2].Kind)

	// Unbounded-above variable serialized with null upper.
	assert.Nil(t, model.Variables[1].Upper)
	require.NotNil(t, model.Variables[0].Upper)
	assert.Equal(t, 1.0, *model.Variables[0].Upper)

	require.Len(t, model.LinearConstraints, 1)
	assert.Equal(t, "=", model.LinearConstraints[0].Sense)
	require.Len(t, model.QuadraticConstraints, 1)
	assert.Equal(t, 0.0625, model.QuadraticConstraints[0].RHS)
	assert.Equal(t, "maximize", model.Objective.Direction)
}

func TestRemoteSolver_ResolvePushesOnlyMutations(t *testing.T) {
	stub, solver, done := newStubSolver(t)
	defer done()

	x := solver.AddVariable(VarContinuous, 0, 1)
	linear := solver.AddLinearConstraint(NewLinearExpr().Add(x, 1), SenseLE, 0.3)
	quad := solver.AddQuadraticConstraint(NewQuadExpr().Add(x, x, 0.125), SenseLE, 0.0625)
	solver.SetObjective(NewLinearExpr().Add(x, 0.3), nil, Maximize)

	_, err := solver.Solve(context.Background())
	require.NoError(t, err)

	require.NoError(t, solver.MutateRHS(quad, 0.09))
	require.NoError(t, solver.MutateRHS(linear, 0.5))

	_, err = solver.Solve(context.Background())
	require.NoError(t, err)

	// Still only one upload; the second solve pushed RHS mutations instead.
	assert.Len(t, stub.uploads, 1)
	assert.Equal(t, 2, stub.solves)
	require.Len(t, stub.mutations, 2)

	// The wire payload addresses rows by kind and array index, not by the
	// client-side handle, so the service can resolve quadratic rows too.
	type rowKey struct {
		kind  string
		index int
	}
	byRow := make(map[rowKey]float64)
	for _, m := range stub.mutations {
		key := rowKey{kind: m["kind"].(string), index: int(m["index"].(float64))}
		byRow[key] = m["rhs"].(float64)
	}
	assert.Equal(t, 0.5, byRow[rowKey{kind: "linear", index: int(linear)}])
	assert.Equal(t, 0.09, byRow[rowKey{kind: "quadratic", index: 0}])
}

func TestRemoteSolver_ResolvePushesObjectiveChange(t *testing.T) {
	stub, solver, done := newStubSolver(t)
	defer done()

	x := solver.AddVariable(VarContinuous, 0, 1)
	solver.AddLinearConstraint(NewLinearExpr().Add(x, 1), SenseEQ, 1)
	solver.SetObjective(NewLinearExpr().Add(x, 0.3), nil, Maximize)

	_, err := solver.Solve(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stub.objectives)

	solver.SetObjective(nil, NewQuadExpr().Add(x, x, 0.125), Minimize)
	_, err = solver.Solve(context.Background())
	require.NoError(t, err)

	require.Len(t, stub.objectives, 1)
	assert.Equal(t, "minimize", stub.objectives[0].Direction)
	assert.Empty(t, stub.objectives[0].Linear)
	require.Len(t, stub.objectives[0].Quadratic, 1)
}

func TestRemoteSolver_MutateUnknownHandle(t *testing.T) {
	_, solver, done := newStubSolver(t)
	defer done()

	assert.Error(t, solver.MutateRHS(ConsRef(5), 1))
	assert.Error(t, solver.MutateRHS(ConsRef(quadConsOffset+5), 1))
}

func TestRemoteSolver_FailureEnvelope(t *testing.T) {
	stub, solver, done := newStubSolver(t)
	defer done()
	stub.failSolve = "model has no objective"

	x := solver.AddVariable(VarContinuous, 0, 1)
	solver.AddLinearConstraint(NewLinearExpr().Add(x, 1), SenseEQ, 1)

	_, err := solver.Solve(context.Background())
	require.Error(t, err)

	var solverErr *SolverError
	require.ErrorAs(t, err, &solverErr)
	assert.Contains(t, solverErr.Error(), "model has no objective")
}

func TestRemoteSolver_HTTPError(t *testing.T) {
	stub, solver, done := newStubSolver(t)
	defer done()
	stub.failSolveRaw = http.StatusInternalServerError

	x := solver.AddVariable(VarContinuous, 0, 1)
	solver.AddLinearConstraint(NewLinearExpr().Add(x, 1), SenseEQ, 1)

	_, err := solver.Solve(context.Background())
	require.Error(t, err)

	var solverErr *SolverError
	require.ErrorAs(t, err, &solverErr)
	assert.Contains(t, solverErr.Error(), "HTTP 500")
}

func TestRemoteSolver_Unreachable(t *testing.T) {
	solver := NewRemoteSolver("http://127.0.0.1:1", SolverOptions{}, zerolog.Nop())
	solver.AddVariable(VarContinuous, 0, 1)

	_, err := solver.Solve(context.Background())
	var solverErr *SolverError
	assert.ErrorAs(t, err, &solverErr)
}

func TestMapStatus(t *testing.T) {
	assert.Equal(t, StatusOptimal, mapStatus("optimal"))
	assert.Equal(t, StatusInfeasible, mapStatus("infeasible"))
	assert.Equal(t, StatusUnbounded, mapStatus("unbounded"))
	assert.Equal(t, StatusTimeLimit, mapStatus("time_limit"))
	assert.Equal(t, StatusError, mapStatus("exploded"))
}
