package model

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"

	"statespice/pkg/linalg"
	"statespice/pkg/solver"
)

const steadyResAbsTol = 1e-15

// SteadyState finds the state x* that reproduces itself under a constant
// input u (nil meaning zero): (I-A)·x* = B·u + C·z* + x0, with z* solving
// every sub-problem at the steady parameters. The model state is untouched.
func (m *DiscreteModel) SteadyState(u []float64) ([]float64, error) {
	if u == nil {
		u = make([]float64, m.nu)
	}
	if len(u) != m.nu {
		return nil, fmt.Errorf("model: steady-state input has %d channels, want %d", len(u), m.nu)
	}

	var ia linalg.LU
	if m.nx > 0 {
		iaDense := mat.NewDense(m.nx, m.nx, nil)
		for i := 0; i < m.nx; i++ {
			for j := 0; j < m.nx; j++ {
				v := 0.0
				if m.a != nil {
					v = m.a.At(i, j)
				}
				if i == j {
					v = 1 - v
				} else {
					v = -v
				}
				iaDense.Set(i, j, v)
			}
		}
		if !ia.SetLHS(iaDense) {
			return nil, fmt.Errorf("model: I-A is singular, the circuit has no unique steady state")
		}
	}

	// xconst = (I-A)^-1 (B·u + x0)
	xconst := append([]float64(nil), m.x0...)
	mulAdd(xconst, m.b, u)
	if m.nx > 0 {
		ia.Solve(xconst, xconst)
	}

	if len(m.subs) == 0 {
		return xconst, nil
	}

	// iac = (I-A)^-1 C, the state feedback every quantity sees at steady state
	var iac *mat.Dense
	if m.nx > 0 && m.c != nil {
		iac = mat.NewDense(m.nx, m.nn, nil)
		col := make([]float64, m.nx)
		for j := 0; j < m.nn; j++ {
			for i := 0; i < m.nx; i++ {
				col[i] = m.c.At(i, j)
			}
			ia.Solve(col, col)
			for i := 0; i < m.nx; i++ {
				iac.Set(i, j, col[i])
			}
		}
	}

	// one combined system over the full z: q = q0ss + fqss·z
	nqTotal := 0
	var elems []elemRef
	for _, s := range m.subs {
		nqTotal += s.nq
		elems = append(elems, s.elems...)
	}
	q0ss := make([]float64, nqTotal)
	fqss := mat.NewDense(nqTotal, m.nn, nil)
	roff := 0
	for _, s := range m.subs {
		part := q0ss[roff : roff+s.nq]
		copy(part, s.q0)
		mulAdd(part, s.dqFull, xconst)
		mulAdd(part, s.eqFull, u)

		for i := 0; i < s.nq; i++ {
			for j := 0; j < m.nn; j++ {
				v := 0.0
				if s.fqprevFull != nil {
					v = s.fqprevFull.At(i, j)
				}
				if j >= s.colStart && j < s.colStart+s.nn {
					v += s.fq.At(i, j-s.colStart)
				}
				if iac != nil && s.dqFull != nil {
					for kx := 0; kx < m.nx; kx++ {
						v += s.dqFull.At(i, kx) * iac.At(kx, j)
					}
				}
				fqss.Set(roff+i, j, v)
			}
		}
		roff += s.nq
	}

	res := newResidual(elems, make([]float64, nqTotal), nil, nqTotal, fqss)
	slv := solver.NewHomotopySimple(res, make([]float64, m.nn))
	slv.SetResAbsTol(steadyResAbsTol)
	slv.SetExtrapolationOrigin(make([]float64, nqTotal), make([]float64, m.nn))
	z := slv.Solve(q0ss)
	if !slv.HasConverged() {
		if !solver.AllFinite(z) {
			return nil, fmt.Errorf("model: steady-state solve diverged")
		}
		fmt.Fprintf(os.Stderr, "warning: steady-state solve did not converge\n")
	}

	xs := append([]float64(nil), m.x0...)
	mulAdd(xs, m.b, u)
	mulAdd(xs, m.c, z)
	if m.nx > 0 {
		ia.Solve(xs, xs)
	}
	return xs, nil
}

// SteadyStateInstall computes the steady state and installs it as the
// model's current state.
func (m *DiscreteModel) SteadyStateInstall(u []float64) ([]float64, error) {
	xs, err := m.SteadyState(u)
	if err != nil {
		return nil, err
	}
	copy(m.x, xs)
	return xs, nil
}
