// Package linalg provides the dense factorization kernel used by the
// nonlinear solvers and the steady-state pre-factorization. It reports
// singularity at factor time and its solves are strictly allocation free,
// which the per-sample loop depends on.
package linalg

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// LU holds an LU factorization with partial pivoting. A zero LU is ready for
// use; SetLHS sizes it on first call and buffers are reused afterwards.
type LU struct {
	n    int
	a    []float64 // packed L\U, row major
	piv  []int
	work []float64
	ok   bool
}

// SetLHS copies a and factors it. It returns false for a singular matrix and
// leaves the solver marked unusable, without raising.
func (lu *LU) SetLHS(a *mat.Dense) bool {
	n, c := a.Dims()
	if n != c {
		panic("linalg: SetLHS requires a square matrix")
	}
	if cap(lu.a) < n*n {
		lu.a = make([]float64, n*n)
		lu.piv = make([]int, n)
		lu.work = make([]float64, n)
	}
	lu.n = n
	lu.a = lu.a[:n*n]
	lu.piv = lu.piv[:n]
	lu.work = lu.work[:n]

	raw := a.RawMatrix()
	norm := 0.0
	for i := 0; i < n; i++ {
		copy(lu.a[i*n:(i+1)*n], raw.Data[i*raw.Stride:i*raw.Stride+n])
		for _, v := range lu.a[i*n : (i+1)*n] {
			if av := math.Abs(v); av > norm {
				norm = av
			}
		}
	}
	tiny := float64(n) * 2.220446049250313e-16 * norm

	for k := 0; k < n; k++ {
		p, pmax := k, math.Abs(lu.a[k*n+k])
		for i := k + 1; i < n; i++ {
			if v := math.Abs(lu.a[i*n+k]); v > pmax {
				p, pmax = i, v
			}
		}
		if pmax <= tiny || pmax == 0 {
			lu.ok = false
			return false
		}
		lu.piv[k] = p
		if p != k {
			for j := 0; j < n; j++ {
				lu.a[k*n+j], lu.a[p*n+j] = lu.a[p*n+j], lu.a[k*n+j]
			}
		}
		d := lu.a[k*n+k]
		for i := k + 1; i < n; i++ {
			f := lu.a[i*n+k] / d
			lu.a[i*n+k] = f
			if f == 0 {
				continue
			}
			for j := k + 1; j < n; j++ {
				lu.a[i*n+j] -= f * lu.a[k*n+j]
			}
		}
	}
	lu.ok = true
	return true
}

// Ok reports whether the last SetLHS succeeded.
func (lu *LU) Ok() bool { return lu.ok }

// Solve writes the solution of A*y = x into y. y and x may be the same slice.
func (lu *LU) Solve(y, x []float64) {
	if !lu.ok {
		panic("linalg: Solve on unfactored or singular matrix")
	}
	n := lu.n
	if len(y) != n || len(x) != n {
		panic("linalg: Solve dimension mismatch")
	}
	w := lu.work
	copy(w, x)
	// SetLHS swapped whole rows, so L is stored in final pivot order: apply
	// every interchange before the forward substitution
	for k := 0; k < n; k++ {
		w[k], w[lu.piv[k]] = w[lu.piv[k]], w[k]
	}
	for k := 0; k < n; k++ {
		for i := k + 1; i < n; i++ {
			w[i] -= lu.a[i*n+k] * w[k]
		}
	}
	for i := n - 1; i >= 0; i-- {
		s := w[i]
		for j := i + 1; j < n; j++ {
			s -= lu.a[i*n+j] * w[j]
		}
		w[i] = s / lu.a[i*n+i]
	}
	copy(y, w)
}
