package optimization

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/folio/internal/modules/statistics"
)

type stubEstimates struct {
	est   *statistics.Estimates
	err   error
	calls int
}

func (s *stubEstimates) GetEstimates(tickers []string, lookbackDays int) (*statistics.Estimates, error) {
	s.calls++
	return s.est, s.err
}

type stubHoldings struct {
	weights map[string]float64
	err     error
}

func (s *stubHoldings) GetWeights() (map[string]float64, error) {
	return s.weights, s.err
}

func newTestService(solver *fakeSolver) (*Service, *stubEstimates) {
	stats := &stubEstimates{est: testUniverse()}
	holdings := &stubHoldings{weights: testOldWeights()}
	factory := func() Solver { return solver }
	return NewService(stats, holdings, factory, 1e-4, 252, zerolog.Nop()), stats
}

func TestService_Optimize(t *testing.T) {
	solver := &fakeSolver{}
	service, stats := newTestService(solver)

	solver.solveFn = func(call int) Result {
		return resultForWeights([]string{"AAA", "BBB", "CCC"}, map[string]float64{"AAA": 0.5, "BBB": 0.5}, testOldWeights(), 0.2567)
	}

	sol, err := service.Optimize(context.Background(), OptimizeRequest{
		Tickers: []string{"AAA", "BBB", "CCC"},
		Params:  testParams(),
	})
	require.NoError(t, err)
	assert.Equal(t, 0.2567, sol.Objective)
	assert.Equal(t, 1, stats.calls)

	// Default mode is max-return.
	require.NotNil(t, solver.objLinear)
	assert.Equal(t, Maximize, solver.objDir)
}

func TestService_OptimizeMinRiskMode(t *testing.T) {
	solver := &fakeSolver{}
	service, _ := newTestService(solver)

	solver.solveFn = func(call int) Result {
		return resultForWeights([]string{"AAA", "BBB", "CCC"}, map[string]float64{"AAA": 0.5, "BBB": 0.5}, testOldWeights(), 0.0254)
	}

	_, err := service.Optimize(context.Background(), OptimizeRequest{
		Tickers: []string{"AAA", "BBB", "CCC"},
		Params:  testParams(),
		Mode:    ModeMinRisk,
	})
	require.NoError(t, err)

	assert.Nil(t, solver.objLinear)
	require.NotNil(t, solver.objQuad)
	assert.Equal(t, Minimize, solver.objDir)
}

func TestService_OptimizeEmptyUniverse(t *testing.T) {
	service, _ := newTestService(&fakeSolver{})

	_, err := service.Optimize(context.Background(), OptimizeRequest{Params: testParams()})
	assert.Error(t, err)
}

func TestService_OptimizeInvalidParams(t *testing.T) {
	service, _ := newTestService(&fakeSolver{})

	params := testParams()
	params.SigmaTarget = -1

	_, err := service.Optimize(context.Background(), OptimizeRequest{
		Tickers: []string{"AAA"},
		Params:  params,
	})
	assert.Error(t, err)
}

func TestService_OptimizeEstimatesFailure(t *testing.T) {
	solver := &fakeSolver{}
	stats := &stubEstimates{err: fmt.Errorf("no price history")}
	holdings := &stubHoldings{weights: testOldWeights()}
	service := NewService(stats, holdings, func() Solver { return solver }, 1e-4, 252, zerolog.Nop())

	_, err := service.Optimize(context.Background(), OptimizeRequest{
		Tickers: []string{"AAA"},
		Params:  testParams(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no price history")
}

func TestService_Sweep(t *testing.T) {
	solver := &fakeSolver{}
	service, _ := newTestService(solver)

	solver.solveFn = func(call int) Result {
		return resultForWeights([]string{"AAA", "BBB", "CCC"}, map[string]float64{"AAA": 0.5, "BBB": 0.5}, testOldWeights(), 0.2+0.02*float64(call))
	}

	points, err := service.Sweep(context.Background(), SweepRequest{
		Tickers: []string{"AAA", "BBB", "CCC"},
		Params:  testParams(),
		Kind:    SweepRisk,
		Targets: []float64{0.20, 0.25},
	})
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Less(t, points[0].Objective, points[1].Objective)
}

func TestService_SweepNoTargets(t *testing.T) {
	service, _ := newTestService(&fakeSolver{})

	_, err := service.Sweep(context.Background(), SweepRequest{
		Tickers: []string{"AAA"},
		Params:  testParams(),
		Kind:    SweepRisk,
	})
	assert.Error(t, err)
}
