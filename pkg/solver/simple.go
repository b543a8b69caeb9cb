package solver

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"statespice/pkg/linalg"
)

const (
	maxIterations = 500
	minDamping    = 1.0 / 1024
)

// SimpleSolver is a damped Newton iteration. The Jacobian factorization of
// the last converged solve is kept to extrapolate the seed of the next one
// linearly in the parameter.
type SimpleSolver struct {
	res    Residual
	nn, np int

	z      []float64
	dz     []float64
	resbuf []float64
	jac    *mat.Dense
	jp     *mat.Dense
	dzdp   *mat.Dense
	pdiff  []float64
	rhs    []float64

	originP   []float64
	originZ   []float64
	haveSlope bool

	lu        linalg.LU
	tol       float64
	converged bool
}

// NewSimpleSolver returns a solver seeded at z0.
func NewSimpleSolver(res Residual, z0 []float64) *SimpleSolver {
	nn, np := res.Dims()
	if len(z0) != nn {
		panic("solver: initial root dimension mismatch")
	}
	s := &SimpleSolver{
		res:     res,
		nn:      nn,
		np:      np,
		z:       append([]float64(nil), z0...),
		dz:      make([]float64, nn),
		resbuf:  make([]float64, nn),
		jac:     mat.NewDense(nn, nn, nil),
		originP: make([]float64, np),
		originZ: append([]float64(nil), z0...),
		tol:     DefaultResAbsTol,
	}
	if np > 0 {
		s.jp = mat.NewDense(nn, np, nil)
		s.dzdp = mat.NewDense(nn, np, nil)
		s.pdiff = make([]float64, np)
		s.rhs = make([]float64, nn)
	}
	return s
}

func (s *SimpleSolver) Dims() (nn, np int) { return s.nn, s.np }

func (s *SimpleSolver) SetResAbsTol(tol float64) { s.tol = tol }

func (s *SimpleSolver) HasConverged() bool { return s.converged }

// SetExtrapolationOrigin installs z as a known solution at p. The slope
// information of any previous origin is discarded.
func (s *SimpleSolver) SetExtrapolationOrigin(p, z []float64) {
	copy(s.originP, p)
	copy(s.originZ, z)
	s.haveSlope = false
}

// Solve runs the damped Newton iteration at parameter p.
func (s *SimpleSolver) Solve(p []float64) []float64 {
	s.res.SetP(p)

	copy(s.z, s.originZ)
	if s.haveSlope {
		for j := 0; j < s.np; j++ {
			s.pdiff[j] = p[j] - s.originP[j]
		}
		for i := 0; i < s.nn; i++ {
			acc := s.z[i]
			for j := 0; j < s.np; j++ {
				acc += s.dzdp.At(i, j) * s.pdiff[j]
			}
			s.z[i] = acc
		}
	}

	s.converged = false
	alpha := 1.0
	prevNorm := math.Inf(1)
	for iter := 0; iter < maxIterations; iter++ {
		s.res.Eval(s.z, s.resbuf, s.jac)
		norm := linf(s.resbuf)
		if math.IsNaN(norm) || math.IsInf(norm, 0) {
			break
		}
		if norm <= s.tol {
			s.converged = true
			break
		}
		if norm > 0.5*prevNorm {
			alpha = math.Max(alpha/2, minDamping)
		} else if alpha < 1 {
			alpha = math.Min(2*alpha, 1)
		}
		prevNorm = norm
		if !s.lu.SetLHS(s.jac) {
			break
		}
		s.lu.Solve(s.dz, s.resbuf)
		for i := range s.z {
			s.z[i] -= alpha * s.dz[i]
		}
	}

	if s.converged {
		s.updateOrigin(p)
	}
	return s.z
}

// updateOrigin records the fresh solution and the sensitivity dz/dp = -J⁻¹Jp
// for seed extrapolation. Eval has just been called at the solution, so the
// residual scratch holds the matching Jacobians.
func (s *SimpleSolver) updateOrigin(p []float64) {
	copy(s.originP, p)
	copy(s.originZ, s.z)
	s.haveSlope = false
	if s.np == 0 {
		return
	}
	if !s.lu.SetLHS(s.jac) {
		return
	}
	s.res.CalcJp(s.jp)
	for j := 0; j < s.np; j++ {
		for i := 0; i < s.nn; i++ {
			s.rhs[i] = s.jp.At(i, j)
		}
		s.lu.Solve(s.rhs, s.rhs)
		for i := 0; i < s.nn; i++ {
			s.dzdp.Set(i, j, -s.rhs[i])
		}
	}
	s.haveSlope = true
}
