// Package solver implements the nonlinear solver stack: a damped-Newton base
// solver, a K-D-tree caching warm starter, and a homotopy continuation
// driver. All solvers share one contract: given a parameter vector p they
// return a root z of the parametric residual with the infinity norm of the
// residual below the absolute tolerance.
package solver

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultResAbsTol is the residual tolerance solvers start with.
const DefaultResAbsTol = 1e-10

// Residual is the parametric nonlinear system a solver operates on. The
// implementation owns a scratch holding the full parameter vector and the
// Jacobian with respect to the underlying quantities; Eval refreshes that
// scratch, and CalcJp reuses it, so CalcJp is only valid right after Eval.
type Residual interface {
	// Dims returns the number of unknowns and the parameter dimension.
	Dims() (nn, np int)
	// SetP populates the scratch with the full parameter derived from p.
	SetP(p []float64)
	// Eval writes the residual and its Jacobian with respect to z.
	Eval(z []float64, res []float64, jac *mat.Dense)
	// CalcJp writes the Jacobian of the residual with respect to p.
	CalcJp(jp *mat.Dense)
}

// Solver finds roots of a parametric residual. Solve returns the current
// iterate whether or not it converged; HasConverged tells which.
type Solver interface {
	Dims() (nn, np int)
	Solve(p []float64) []float64
	HasConverged() bool
	// SetExtrapolationOrigin installs a known solution z at parameter p,
	// used to seed subsequent solves.
	SetExtrapolationOrigin(p, z []float64)
	SetResAbsTol(tol float64)
}

// Factory builds a solver for a residual with the given initial root.
type Factory func(res Residual, z0 []float64) Solver

// NewHomotopySimple wraps a SimpleSolver in a HomotopySolver.
func NewHomotopySimple(res Residual, z0 []float64) Solver {
	return NewHomotopySolver(NewSimpleSolver(res, z0))
}

// NewHomotopyCachingSimple is the full stack: homotopy over a caching
// warm-started damped Newton.
func NewHomotopyCachingSimple(res Residual, z0 []float64) Solver {
	return NewHomotopySolver(NewCachingSolver(NewSimpleSolver(res, z0)))
}

func linf(v []float64) float64 {
	m := 0.0
	for _, x := range v {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// AllFinite reports whether every component of v is finite.
func AllFinite(v []float64) bool { return allFinite(v) }
