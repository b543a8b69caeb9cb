package model

import (
	"gonum.org/v1/gonum/mat"

	"statespice/pkg/device"
)

// elemRef is one element's nonlinear port within a sub-problem.
type elemRef struct {
	fn     device.NonlinearFunc
	nq, nn int
}

type elemSlot struct {
	fn         device.NonlinearFunc
	qoff, roff int
	res        []float64
	jq         *mat.Dense // element rows of the quantity Jacobian
}

// nlResidual is the parametric residual handed to the solver stack. Its
// scratch holds the linear part of the quantity vector (refreshed by SetP)
// and the quantity Jacobian Jq (refreshed by Eval and reused by CalcJp):
//
//	q   = q0 + pexp·p + fq·z
//	res = f(q),  J = Jq·fq,  Jp = Jq·pexp
//
// A nil pexp means the parameter is the full quantity offset itself, the
// form the initial-solution and steady-state searches use.
type nlResidual struct {
	nn, np, nq int
	q0         []float64
	pexp       *mat.Dense // nq x np, nil for identity
	fq         *mat.Dense // nq x nn

	slots []elemSlot

	qlin []float64
	q    []float64
	jq   *mat.Dense // nn x nq, block diagonal over elements
}

func newResidual(elems []elemRef, q0 []float64, pexp *mat.Dense, np int, fq *mat.Dense) *nlResidual {
	nq, nn := 0, 0
	for _, e := range elems {
		nq += e.nq
		nn += e.nn
	}
	r := &nlResidual{
		nn:   nn,
		np:   np,
		nq:   nq,
		q0:   append([]float64(nil), q0...),
		pexp: pexp,
		fq:   fq,
		qlin: make([]float64, nq),
		q:    make([]float64, nq),
		jq:   mat.NewDense(nn, nq, nil),
	}
	qoff, roff := 0, 0
	for _, e := range elems {
		r.slots = append(r.slots, elemSlot{
			fn:   e.fn,
			qoff: qoff,
			roff: roff,
			res:  make([]float64, e.nn),
			jq:   mat.NewDense(e.nn, e.nq, nil),
		})
		qoff += e.nq
		roff += e.nn
	}
	return r
}

func (r *nlResidual) Dims() (nn, np int) { return r.nn, r.np }

func (r *nlResidual) SetP(p []float64) {
	copy(r.qlin, r.q0)
	if r.pexp == nil {
		for i := range r.qlin {
			r.qlin[i] += p[i]
		}
		return
	}
	mulAdd(r.qlin, r.pexp, p)
}

func (r *nlResidual) Eval(z []float64, res []float64, jac *mat.Dense) {
	copy(r.q, r.qlin)
	mulAdd(r.q, r.fq, z)
	for _, s := range r.slots {
		_, enq := s.jq.Dims()
		s.fn(r.q[s.qoff:s.qoff+enq], s.res, s.jq)
		copy(res[s.roff:s.roff+len(s.res)], s.res)
		for i := 0; i < len(s.res); i++ {
			for j := 0; j < enq; j++ {
				r.jq.Set(s.roff+i, s.qoff+j, s.jq.At(i, j))
			}
		}
	}
	jac.Mul(r.jq, r.fq)
}

func (r *nlResidual) CalcJp(jp *mat.Dense) {
	if r.pexp == nil {
		jp.Copy(r.jq)
		return
	}
	jp.Mul(r.jq, r.pexp)
}
