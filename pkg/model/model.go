// Package model contains the model compiler and runtime. Compile turns a
// frozen circuit into a fixed-step discrete-time state-space simulator: it
// assembles the generalized system over exact rationals, eliminates
// algebraic redundancy, decomposes the nonlinearity into minimum-dimensional
// sub-problems with strictly lower-triangular coupling, reduces each
// sub-problem's parameter dimension, and precomputes everything the
// per-sample loop needs.
package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"statespice/pkg/circuit"
	"statespice/pkg/solver"
)

// subproblem is one independent block of coupled nonlinear unknowns.
type subproblem struct {
	nn, nq, np int
	colStart   int
	elems      []elemRef

	q0       []float64
	pexp, fq *mat.Dense // nq x np, nq x nn

	dq, eq, fqprev             *mat.Dense // np x (nx | nu | nn total)
	dqFull, eqFull, fqprevFull *mat.Dense // nq x (nx | nu | nn total)

	z0       []float64
	residual *nlResidual
	solver   solver.Solver
}

// DiscreteModel is the compiled artifact. It is immutable after compilation
// except for the hidden state vector.
type DiscreteModel struct {
	nx, nu, ny, nn int
	t              float64

	a, b, c *mat.Dense // nx x (nx | nu | nn)
	x0      []float64

	dy, ey, fy *mat.Dense // ny x (nx | nu | nn)
	y0         []float64

	subs []*subproblem

	x []float64 // state
}

// Options tune the compilation.
type Options struct {
	// DisableDecomposition keeps the whole nonlinearity as one sub-problem.
	DisableDecomposition bool
}

// Compile builds a discrete model with sample period t. A nil factory
// selects the homotopy/caching/Newton stack.
func Compile(circ *circuit.Circuit, t float64, factory solver.Factory) (*DiscreteModel, error) {
	return CompileOpts(circ, t, factory, Options{})
}

// CompileOpts is Compile with explicit options.
func CompileOpts(circ *circuit.Circuit, t float64, factory solver.Factory, opts Options) (*DiscreteModel, error) {
	if factory == nil {
		factory = solver.NewHomotopyCachingSimple
	}

	cm, err := assemble(circ, t)
	if err != nil {
		return nil, err
	}
	cm.removeRedundancy()

	blocks, err := decompose(cm, circ, !opts.DisableDecomposition)
	if err != nil {
		return nil, err
	}
	subsR := buildSubMats(cm, blocks)
	reduceParams(cm, subsR)

	m := toFloat(circ, cm, subsR, blocks, t)
	if err := m.foldConstants(); err != nil {
		return nil, err
	}
	if err := m.initialSolutions(factory); err != nil {
		return nil, err
	}
	return m, nil
}

func toFloat(circ *circuit.Circuit, cm *compMats, subsR []*subMats, blocks []block, t float64) *DiscreteModel {
	m := &DiscreteModel{
		nx: cm.nx, nu: cm.nu, ny: cm.ny, nn: cm.nn, t: t,
		a: cm.a.Dense(), b: cm.b.Dense(), c: cm.c.Dense(),
		dy: cm.dy.Dense(), ey: cm.ey.Dense(), fy: cm.fy.Dense(),
		x0: cm.x0.DenseVec(),
		y0: cm.y0.DenseVec(),
		x:  make([]float64, cm.nx),
	}
	for k, s := range subsR {
		sp := &subproblem{
			nn: s.nn, nq: s.nq, np: s.np,
			colStart:   s.colStart,
			q0:         s.q0.DenseVec(),
			pexp:       s.pexp.Dense(),
			fq:         s.fq.Dense(),
			dq:         s.dq.Dense(),
			eq:         s.eq.Dense(),
			fqprev:     s.fqprev.Dense(),
			dqFull:     s.dqFull.Dense(),
			eqFull:     s.eqFull.Dense(),
			fqprevFull: s.fqprevFull.Dense(),
		}
		for _, ei := range blocks[k].elems {
			e := circ.Elements()[ei]
			sp.elems = append(sp.elems, elemRef{fn: e.Nonlinear, nq: e.NQ(), nn: e.NN()})
		}
		m.subs = append(m.subs, sp)
	}
	return m
}

// foldConstants removes sub-problems whose parameter space is empty: their
// solution is a constant, computed once and folded into the affine terms of
// the state and output updates and into the later sub-problems' offsets.
func (m *DiscreteModel) foldConstants() error {
	for {
		k := -1
		for i, s := range m.subs {
			if s.np == 0 || (allZero(s.dq) && allZero(s.eq) && allZero(s.fqprev)) {
				k = i
				break
			}
		}
		if k < 0 {
			return nil
		}
		s := m.subs[k]

		z, err := solveFixedQuantities(s.elems, s.fq, s.q0)
		if err != nil {
			return fmt.Errorf("model: constant sub-problem has no solution: %w", err)
		}

		mulColsAdd(m.x0, m.c, s.colStart, s.nn, z)
		mulColsAdd(m.y0, m.fy, s.colStart, s.nn, z)
		for j, o := range m.subs {
			if j == k {
				continue
			}
			mulColsAdd(o.q0, o.fqprevFull, s.colStart, s.nn, z)
		}

		m.c = deleteCols(m.c, s.colStart, s.nn)
		m.fy = deleteCols(m.fy, s.colStart, s.nn)
		for j, o := range m.subs {
			if j == k {
				continue
			}
			o.fqprev = deleteCols(o.fqprev, s.colStart, s.nn)
			o.fqprevFull = deleteCols(o.fqprevFull, s.colStart, s.nn)
			if o.colStart > s.colStart {
				o.colStart -= s.nn
			}
		}
		m.nn -= s.nn
		m.subs = append(m.subs[:k], m.subs[k+1:]...)
	}
}

// solveFixedQuantities finds z with f(qTarget + fq·z) = 0 by homotopy over
// the full quantity offset, starting from the trivial solution f(0) = 0 that
// every element's residual has at the quantity origin.
func solveFixedQuantities(elems []elemRef, fq *mat.Dense, qTarget []float64) ([]float64, error) {
	nq, nn := 0, 0
	for _, e := range elems {
		nq += e.nq
		nn += e.nn
	}
	res := newResidual(elems, make([]float64, nq), nil, nq, fq)
	slv := solver.NewHomotopySimple(res, make([]float64, nn))
	slv.SetExtrapolationOrigin(make([]float64, nq), make([]float64, nn))
	z := slv.Solve(qTarget)
	if !slv.HasConverged() {
		return nil, fmt.Errorf("homotopy did not converge")
	}
	return append([]float64(nil), z...), nil
}

// initialSolutions computes each remaining sub-problem's initial root in
// order, feeding earlier roots into the coupling term, then instantiates the
// runtime solvers seeded and anchored at that operating point.
func (m *DiscreteModel) initialSolutions(factory solver.Factory) error {
	zfull := make([]float64, m.nn)
	for k, s := range m.subs {
		qTarget := append([]float64(nil), s.q0...)
		mulAdd(qTarget, s.fqprevFull, zfull)
		z, err := solveFixedQuantities(s.elems, s.fq, qTarget)
		if err != nil {
			return fmt.Errorf("model: no initial solution for sub-problem %d: %w", k, err)
		}
		s.z0 = z
		copy(zfull[s.colStart:s.colStart+s.nn], z)
	}
	for _, s := range m.subs {
		s.residual = newResidual(s.elems, s.q0, s.pexp, s.np, s.fq)
		s.solver = factory(s.residual, s.z0)
		p0 := make([]float64, s.np)
		mulAdd(p0, s.fqprev, zfull)
		s.solver.SetExtrapolationOrigin(p0, s.z0)
	}
	return nil
}

// NumSubproblems returns the number of nonlinear sub-problems after
// decomposition and constant folding.
func (m *DiscreteModel) NumSubproblems() int { return len(m.subs) }

// NX returns the state dimension.
func (m *DiscreteModel) NX() int { return m.nx }

// NU returns the input dimension.
func (m *DiscreteModel) NU() int { return m.nu }

// NY returns the output dimension.
func (m *DiscreteModel) NY() int { return m.ny }

// NN returns the total nonlinear unknown count after folding.
func (m *DiscreteModel) NN() int { return m.nn }

// SamplePeriod returns the sample period the model was compiled for.
func (m *DiscreteModel) SamplePeriod() float64 { return m.t }

// State returns a copy of the hidden state vector.
func (m *DiscreteModel) State() []float64 { return append([]float64(nil), m.x...) }

// SetState overwrites the hidden state vector.
func (m *DiscreteModel) SetState(x []float64) error {
	if len(x) != m.nx {
		return fmt.Errorf("model: state has %d entries, want %d", len(x), m.nx)
	}
	copy(m.x, x)
	return nil
}

// Reset zeroes the hidden state.
func (m *DiscreteModel) Reset() {
	for i := range m.x {
		m.x[i] = 0
	}
}
