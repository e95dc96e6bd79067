package optimization

import (
	"context"
	"math"
)

// fakeQuadConsOffset keeps fake quadratic handles disjoint from linear ones.
const fakeQuadConsOffset = 1000

type fakeVariable struct {
	kind         VarKind
	lower, upper float64
}

type fakeLinearCons struct {
	expr  *LinearExpr
	sense Sense
	rhs   float64
}

type fakeQuadCons struct {
	expr  *QuadExpr
	sense Sense
	rhs   float64
}

// fakeSolver records the submitted model and replays scripted results.
type fakeSolver struct {
	vars     []fakeVariable
	linCons  []fakeLinearCons
	quadCons []fakeQuadCons

	objLinear *LinearExpr
	objQuad   *QuadExpr
	objDir    Direction

	script  []Result
	solves  int
	solveFn func(call int) Result // overrides script when set
}

func (f *fakeSolver) AddVariable(kind VarKind, lower, upper float64) VarRef {
	f.vars = append(f.vars, fakeVariable{kind: kind, lower: lower, upper: upper})
	return VarRef(len(f.vars) - 1)
}

func (f *fakeSolver) AddLinearConstraint(expr *LinearExpr, sense Sense, rhs float64) ConsRef {
	f.linCons = append(f.linCons, fakeLinearCons{expr: expr, sense: sense, rhs: rhs})
	return ConsRef(len(f.linCons) - 1)
}

func (f *fakeSolver) AddQuadraticConstraint(expr *QuadExpr, sense Sense, rhs float64) ConsRef {
	f.quadCons = append(f.quadCons, fakeQuadCons{expr: expr, sense: sense, rhs: rhs})
	return ConsRef(fakeQuadConsOffset + len(f.quadCons) - 1)
}

func (f *fakeSolver) SetObjective(linear *LinearExpr, quad *QuadExpr, direction Direction) {
	f.objLinear = linear
	f.objQuad = quad
	f.objDir = direction
}

func (f *fakeSolver) MutateRHS(cons ConsRef, rhs float64) error {
	if cons >= fakeQuadConsOffset {
		f.quadCons[cons-fakeQuadConsOffset].rhs = rhs
		return nil
	}
	f.linCons[cons].rhs = rhs
	return nil
}

func (f *fakeSolver) Solve(ctx context.Context) (Result, error) {
	call := f.solves
	f.solves++

	if f.solveFn != nil {
		return f.solveFn(call), nil
	}
	if call < len(f.script) {
		return f.script[call], nil
	}
	return Result{Status: StatusError, Message: "no scripted result"}, nil
}

// resultForWeights builds an optimal Result assigning the given new weights.
// Variable handles follow BuildModel's allocation order: x_i, δ_i, z_i per
// ticker i in universe order.
func resultForWeights(tickers []string, weights, oldWeights map[string]float64, objective float64) Result {
	values := make(map[VarRef]float64, 3*len(tickers))
	for i, ticker := range tickers {
		w := weights[ticker]
		values[VarRef(3*i)] = w
		values[VarRef(3*i+1)] = math.Abs(w - oldWeights[ticker])
		if w > 0 {
			values[VarRef(3*i+2)] = 1
		}
	}
	return Result{
		Status:    StatusOptimal,
		Objective: objective,
		Values:    values,
	}
}
