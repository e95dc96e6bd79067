// Package optimization builds the portfolio allocation model and hands it to
// an external mixed-integer solver through a narrow adapter interface.
package optimization

import "sort"

// VarRef is an opaque handle to a decision variable owned by a Solver.
type VarRef int

// ConsRef is an opaque handle to a constraint owned by a Solver.
type ConsRef int

// LinearExpr is a linear expression as an explicit coefficient map over
// variable handles.
type LinearExpr struct {
	Coeffs map[VarRef]float64
}

// NewLinearExpr creates an empty linear expression.
func NewLinearExpr() *LinearExpr {
	return &LinearExpr{Coeffs: make(map[VarRef]float64)}
}

// Add accumulates coeff onto the term for v and returns the expression for
// chaining.
func (e *LinearExpr) Add(v VarRef, coeff float64) *LinearExpr {
	e.Coeffs[v] += coeff
	return e
}

// Vars returns the referenced variables in ascending handle order.
func (e *LinearExpr) Vars() []VarRef {
	vars := make([]VarRef, 0, len(e.Coeffs))
	for v := range e.Coeffs {
		vars = append(vars, v)
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i] < vars[j] })
	return vars
}

// QuadKey identifies a quadratic term. Keys are normalized so that I <= J,
// making x_i*x_j and x_j*x_i the same term.
type QuadKey struct {
	I, J VarRef
}

// QuadExpr is a quadratic expression as an explicit coefficient map over
// variable handle pairs.
type QuadExpr struct {
	Coeffs map[QuadKey]float64
}

// NewQuadExpr creates an empty quadratic expression.
func NewQuadExpr() *QuadExpr {
	return &QuadExpr{Coeffs: make(map[QuadKey]float64)}
}

// Add accumulates coeff onto the term for a*b and returns the expression for
// chaining.
func (e *QuadExpr) Add(a, b VarRef, coeff float64) *QuadExpr {
	if b < a {
		a, b = b, a
	}
	e.Coeffs[QuadKey{I: a, J: b}] += coeff
	return e
}

// Terms returns the quadratic terms in deterministic (I, J) order.
func (e *QuadExpr) Terms() []QuadKey {
	keys := make([]QuadKey, 0, len(e.Coeffs))
	for k := range e.Coeffs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].I != keys[j].I {
			return keys[i].I < keys[j].I
		}
		return keys[i].J < keys[j].J
	})
	return keys
}

// Evaluate computes the expression value for a variable assignment.
func (e *LinearExpr) Evaluate(values map[VarRef]float64) float64 {
	total := 0.0
	for v, coeff := range e.Coeffs {
		total += coeff * values[v]
	}
	return total
}

// Evaluate computes the expression value for a variable assignment.
func (e *QuadExpr) Evaluate(values map[VarRef]float64) float64 {
	total := 0.0
	for k, coeff := range e.Coeffs {
		total += coeff * values[k.I] * values[k.J]
	}
	return total
}
