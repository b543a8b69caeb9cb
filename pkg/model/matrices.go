package model

import (
	"fmt"
	"math/big"
	"os"

	"statespice/pkg/circuit"
	"statespice/pkg/ratmat"
)

// compMats holds the exact-arithmetic intermediate matrices of a compilation.
// Row layout of the generalized system is (v; i; x'; q), column layout of the
// particular solution is (const; u; x).
type compMats struct {
	nb, nx, nq, nu, ny, nn int

	v0, ev, dv         *ratmat.Matrix
	i0, ei, di         *ratmat.Matrix
	x0, b, a           *ratmat.Matrix
	q0, eqFull, dqFull *ratmat.Matrix

	f  *ratmat.Matrix // nullspace basis, rows as above
	fq *ratmat.Matrix // q rows of f
	c  *ratmat.Matrix // x rows of f

	p              *ratmat.Matrix // output row map over (v; i; x'; q)
	dy, ey, fy, y0 *ratmat.Matrix
}

// assemble builds the discretized generalized system for sample period t and
// solves it, splitting the particular solution and nullspace into the named
// blocks. The trapezoidal rule is folded in through the Mxd/T ± Mx/2 pattern.
func assemble(circ *circuit.Circuit, t float64) (*compMats, error) {
	if t <= 0 {
		return nil, fmt.Errorf("model: sample period must be positive, got %g", t)
	}
	tv, ti, err := circ.Topology()
	if err != nil {
		return nil, err
	}
	tvr, _ := tv.Dims()
	tir, _ := ti.Dims()

	nb, nx, nq, nu, ny := circ.NB(), circ.NX(), circ.NQ(), circ.NU(), circ.NY()
	invT := new(big.Rat).Inv(ratmat.FromFloat(t))
	half := big.NewRat(1, 2)
	negOne := big.NewRat(-1, 1)

	mxdT := ratmat.Scale(circ.Mxd(), invT)
	mx2 := ratmat.Scale(circ.Mx(), half)

	lhs := ratmat.Vcat(
		ratmat.Hcat(circ.Mv(), circ.Mi(), ratmat.Add(mxdT, mx2), circ.Mq()),
		ratmat.Hcat(tv, ratmat.New(tvr, nb), ratmat.New(tvr, nx), ratmat.New(tvr, nq)),
		ratmat.Hcat(ratmat.New(tir, nb), ti, ratmat.New(tir, nx), ratmat.New(tir, nq)),
	)
	rhs := ratmat.Vcat(
		ratmat.Hcat(ratmat.Scale(circ.U0(), negOne), ratmat.Scale(circ.Mu(), negOne), ratmat.Sub(mxdT, mx2)),
		ratmat.New(tvr+tir, 1+nu+nx),
	)

	x, f := ratmat.Gensolve(lhs, rhs, nil)

	m := &compMats{nb: nb, nx: nx, nq: nq, nu: nu, ny: ny, f: f}
	_, m.nn = f.Dims()

	split := func(src *ratmat.Matrix, r0, r1 int) (c0, cu, cx *ratmat.Matrix) {
		rows := src.SliceRows(r0, r1)
		return rows.SliceCols(0, 1), rows.SliceCols(1, 1+nu), rows.SliceCols(1+nu, 1+nu+nx)
	}
	m.v0, m.ev, m.dv = split(x, 0, nb)
	m.i0, m.ei, m.di = split(x, nb, 2*nb)
	m.x0, m.b, m.a = split(x, 2*nb, 2*nb+nx)
	m.q0, m.eqFull, m.dqFull = split(x, 2*nb+nx, 2*nb+nx+nq)

	m.splitF()

	px2 := ratmat.Scale(circ.Px(), half)
	pxdT := ratmat.Scale(circ.Pxd(), invT)
	m.p = ratmat.Hcat(circ.Pv(), circ.Pi(), ratmat.Add(px2, pxdT), circ.Pq())

	m.dy = ratmat.Add(
		ratmat.Mul(m.p, ratmat.Vcat(m.dv, m.di, m.a, m.dqFull)),
		ratmat.Sub(px2, pxdT),
	)
	m.ey = ratmat.Mul(m.p, ratmat.Vcat(m.ev, m.ei, m.b, m.eqFull))
	m.fy = ratmat.Mul(m.p, m.f)
	m.y0 = ratmat.Mul(m.p, ratmat.Vcat(m.v0, m.i0, m.x0, m.q0))
	return m, nil
}

// splitF refreshes the x and q row blocks of f; rows are (v; i; x; q).
func (m *compMats) splitF() {
	m.c = m.f.SliceRows(2*m.nb, 2*m.nb+m.nx)
	m.fq = m.f.SliceRows(2*m.nb+m.nx, 2*m.nb+m.nx+m.nq)
}

// removeRedundancy eliminates nullspace directions of fq. A direction that
// moves the state update or the output means the circuit does not determine
// them; a warning is emitted and an arbitrary representative is kept.
func (m *compMats) removeRedundancy() {
	warnedState, warnedOutput := false, false
	for {
		ker := ratmat.Nullspace(m.fq)
		_, kc := ker.Dims()
		if kc == 0 {
			break
		}
		n := make([]*big.Rat, m.nn)
		for i := 0; i < m.nn; i++ {
			n[i] = ker.At(i, 0)
		}

		if !warnedState && !floatNormZero(ratmat.Mul(m.c, ker.SliceCols(0, 1))) {
			fmt.Fprintf(os.Stderr, "warning: state update depends on indeterminate quantity\n")
			warnedState = true
		}
		if !warnedOutput && !floatNormZero(ratmat.Mul(m.fy, ker.SliceCols(0, 1))) {
			fmt.Fprintf(os.Stderr, "warning: output depends on indeterminate quantity\n")
			warnedOutput = true
		}

		j, jabs := -1, new(big.Rat)
		for i, v := range n {
			if abs := new(big.Rat).Abs(v); abs.Cmp(jabs) > 0 {
				j, jabs = i, abs
			}
		}
		inv := new(big.Rat).Inv(n[j])
		for l := 0; l < m.nn; l++ {
			if l == j || n[l].Sign() == 0 {
				continue
			}
			s := new(big.Rat).Mul(n[l], inv)
			s.Neg(s)
			m.f.AddScaledCol(l, j, s)
			m.fy.AddScaledCol(l, j, s)
		}
		m.f.DeleteCol(j)
		m.fy.DeleteCol(j)
		m.nn--
		m.splitF()
	}
}

// floatNormZero checks the squared float norm of the indeterminacy product
// against the fixed 1e-20 heuristic; the threshold is not scaled by the
// magnitude of the entries involved.
func floatNormZero(prod *ratmat.Matrix) bool {
	_, cols := prod.Dims()
	s := 0.0
	for j := 0; j < cols; j++ {
		for _, e := range prod.Col(j) {
			v, _ := e.Val.Float64()
			s += v * v
		}
	}
	return s <= 1e-20
}
