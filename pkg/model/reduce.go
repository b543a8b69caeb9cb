package model

import (
	"statespice/pkg/ratmat"
)

// subMats are the exact-arithmetic matrices of one sub-problem before
// conversion to the runtime representation.
type subMats struct {
	elems    []int
	rows     []int
	colStart int
	nn, nq   int

	q0                         *ratmat.Matrix // nq x 1
	dqFull, eqFull, fqprevFull *ratmat.Matrix // nq x (nx | nu | nnTotal)
	fq                         *ratmat.Matrix // nq x nn

	pexp           *ratmat.Matrix // nq x np
	dq, eq, fqprev *ratmat.Matrix // np x (nx | nu | nnTotal)
	np             int
}

// buildSubMats slices the global matrices into per-block pieces. The
// below-diagonal part of fq becomes the sub-problem's coupling to earlier
// blocks, zero padded over the full nonlinear column space.
func buildSubMats(m *compMats, blocks []block) []*subMats {
	subs := make([]*subMats, len(blocks))
	for k, b := range blocks {
		s := &subMats{
			elems:    b.elems,
			rows:     b.rows,
			colStart: b.colStart,
			nn:       b.nn,
			nq:       b.nq,
		}
		s.q0 = m.q0.SelectRows(b.rows)
		s.dqFull = m.dqFull.SelectRows(b.rows)
		s.eqFull = m.eqFull.SelectRows(b.rows)
		fqRows := m.fq.SelectRows(b.rows)
		s.fq = fqRows.SliceCols(b.colStart, b.colStart+b.nn)
		s.fqprevFull = ratmat.Hcat(
			fqRows.SliceCols(0, b.colStart),
			ratmat.New(b.nq, m.nn-b.colStart),
		)
		subs[k] = s
	}
	return subs
}

// reduceParams shrinks every sub-problem's parameter to the dimension of its
// moving subspace, then drops the components lying in the column span of fq.
// Those components only translate the solver coordinate; when dropping them
// pays off (the rank falls), the translation is a known linear function of
// state, input and earlier solutions, and is folded back into the state,
// output and coupling matrices so the model equations are unchanged.
func reduceParams(m *compMats, subs []*subMats) {
	for k, s := range subs {
		stacked := ratmat.Hcat(s.dqFull, s.eqFull, s.fqprevFull)
		pexp, fac := ratmat.RankFactorize(stacked)
		_, np := pexp.Dims()
		s.pexp = pexp
		s.splitReduced(fac, m.nx, m.nu)
		s.np = np
		if np == 0 {
			continue
		}

		// project pexp onto the orthogonal complement of span(fq); fq has
		// full column rank here, so fq'fq is invertible
		ftf := ratmat.Mul(s.fq.T(), s.fq)
		fty := ratmat.Mul(s.fq.T(), s.pexp)
		g, _ := ratmat.Gensolve(ftf, fty, nil)
		proj := ratmat.Sub(s.pexp, ratmat.Mul(s.fq, g))

		pexp2, cof := ratmat.RankFactorize(proj)
		_, np2 := pexp2.Dims()
		if np2 >= np {
			continue
		}

		// adopting the projected pexp shifts the solver coordinate by
		// d = g*fac*(x; u; z_prev); compensate everything that reads z
		d := ratmat.Mul(g, fac)
		dx := d.SliceCols(0, m.nx)
		du := d.SliceCols(m.nx, m.nx+m.nu)
		dz := d.SliceCols(m.nx+m.nu, m.nx+m.nu+m.nn)

		ck := m.c.SliceCols(s.colStart, s.colStart+s.nn)
		m.a = ratmat.Sub(m.a, ratmat.Mul(ck, dx))
		m.b = ratmat.Sub(m.b, ratmat.Mul(ck, du))
		m.c = ratmat.Sub(m.c, ratmat.Mul(ck, dz))

		fyk := m.fy.SliceCols(s.colStart, s.colStart+s.nn)
		m.dy = ratmat.Sub(m.dy, ratmat.Mul(fyk, dx))
		m.ey = ratmat.Sub(m.ey, ratmat.Mul(fyk, du))
		m.fy = ratmat.Sub(m.fy, ratmat.Mul(fyk, dz))

		for _, later := range subs[k+1:] {
			fj := later.fqprevFull.SliceCols(s.colStart, s.colStart+s.nn)
			later.dqFull = ratmat.Sub(later.dqFull, ratmat.Mul(fj, dx))
			later.eqFull = ratmat.Sub(later.eqFull, ratmat.Mul(fj, du))
			later.fqprevFull = ratmat.Sub(later.fqprevFull, ratmat.Mul(fj, dz))
		}

		s.pexp = pexp2
		s.splitReduced(ratmat.Mul(cof, fac), m.nx, m.nu)
		s.np = np2
		s.dqFull = ratmat.Mul(s.pexp, s.dq)
		s.eqFull = ratmat.Mul(s.pexp, s.eq)
		s.fqprevFull = ratmat.Mul(s.pexp, s.fqprev)
	}
}

func (s *subMats) splitReduced(fac *ratmat.Matrix, nx, nu int) {
	_, cols := fac.Dims()
	s.dq = fac.SliceCols(0, nx)
	s.eq = fac.SliceCols(nx, nx+nu)
	s.fqprev = fac.SliceCols(nx+nu, cols)
}
