// Package device provides the element library: each element is an immutable
// bundle of sparse constitutive and output matrices over exact rationals,
// a pin map naming its terminal branches, and — for elements with a
// nonlinear port — a residual closure with its Jacobian.
//
// The constitutive law of an element with nl equations is
//
//	Mv·v + Mi·i + Mx·x + Mxd·ẋ + Mq·q + Mu·u + U0 = 0
//
// and its output law is y = Pv·v + Pi·i + Px·x + Pxd·ẋ + Pq·q.
package device

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"statespice/pkg/ratmat"
)

// Terminal is one end of a branch: the branch index local to the element and
// the polarity (+1 for the positive terminal, -1 for the negative one).
type Terminal struct {
	Branch   int
	Polarity int
}

// Pin is a named connection point. A pin may touch several branches (a BJT
// base sits on both junction branches).
type Pin struct {
	Name  string
	Terms []Terminal
}

// NonlinearFunc evaluates the element's nonlinear equations at the quantity
// vector q, writing the residual and its Jacobian with respect to q.
type NonlinearFunc func(q []float64, res []float64, jq *mat.Dense)

// Element is a frozen circuit primitive.
type Element struct {
	Kind string

	Mv, Mi, Mx, Mxd, Mq, Mu *ratmat.Matrix // nl rows each
	U0                      *ratmat.Matrix // nl x 1
	Pv, Pi, Px, Pxd, Pq     *ratmat.Matrix // ny rows each

	Pins      []Pin
	Nonlinear NonlinearFunc

	// Params keeps the constructor parameters for companion analyses
	// (nodal stamping) and diagnostics.
	Params map[string]float64
}

// NL returns the number of constitutive equations.
func (e *Element) NL() int { r, _ := e.Mv.Dims(); return r }

// NB returns the number of branches.
func (e *Element) NB() int { _, c := e.Mv.Dims(); return c }

// NX returns the number of states.
func (e *Element) NX() int { _, c := e.Mx.Dims(); return c }

// NQ returns the number of nonlinear quantities.
func (e *Element) NQ() int { _, c := e.Mq.Dims(); return c }

// NU returns the number of inputs.
func (e *Element) NU() int { _, c := e.Mu.Dims(); return c }

// NY returns the number of outputs.
func (e *Element) NY() int { r, _ := e.Pv.Dims(); return r }

// NN returns the number of nonlinear unknowns, nb+nx+nq-nl.
func (e *Element) NN() int { return e.NB() + e.NX() + e.NQ() - e.NL() }

// PinNames lists pins in declaration order; netlists bind nodes in this
// order.
func (e *Element) PinNames() []string {
	names := make([]string, len(e.Pins))
	for i, p := range e.Pins {
		names[i] = p.Name
	}
	return names
}

// FindPin returns the pin with the given name.
func (e *Element) FindPin(name string) (Pin, bool) {
	for _, p := range e.Pins {
		if p.Name == name {
			return p, true
		}
	}
	return Pin{}, false
}

// newElement fills in zero matrices for the blocks a constructor left nil
// and validates row consistency.
func newElement(e *Element, nl, nb, nx, nq, nu, ny int) *Element {
	fill := func(m *ratmat.Matrix, rows, cols int, what string) *ratmat.Matrix {
		if m == nil {
			return ratmat.New(rows, cols)
		}
		r, c := m.Dims()
		if r != rows || c != cols {
			panic(fmt.Sprintf("device: %s %s is %dx%d, want %dx%d", e.Kind, what, r, c, rows, cols))
		}
		return m
	}
	e.Mv = fill(e.Mv, nl, nb, "mv")
	e.Mi = fill(e.Mi, nl, nb, "mi")
	e.Mx = fill(e.Mx, nl, nx, "mx")
	e.Mxd = fill(e.Mxd, nl, nx, "mxd")
	e.Mq = fill(e.Mq, nl, nq, "mq")
	e.Mu = fill(e.Mu, nl, nu, "mu")
	e.U0 = fill(e.U0, nl, 1, "u0")
	e.Pv = fill(e.Pv, ny, nb, "pv")
	e.Pi = fill(e.Pi, ny, nb, "pi")
	e.Px = fill(e.Px, ny, nx, "px")
	e.Pxd = fill(e.Pxd, ny, nx, "pxd")
	e.Pq = fill(e.Pq, ny, nq, "pq")
	if nq > 0 && e.Nonlinear == nil {
		panic(fmt.Sprintf("device: %s has nonlinear quantities but no residual", e.Kind))
	}
	return e
}

func twoPins() []Pin {
	return []Pin{
		{Name: "1", Terms: []Terminal{{Branch: 0, Polarity: 1}}},
		{Name: "2", Terms: []Terminal{{Branch: 0, Polarity: -1}}},
	}
}
