package ratmat

import "math/big"

// RankFactorize splits a into c*f where f consists of a maximal linearly
// independent subset of a's rows (full row rank) and c expresses every row of
// a in that basis. The factorization is exact.
func RankFactorize(a *Matrix) (c, f *Matrix) {
	m, n := a.Dims()

	type echRow struct {
		vals []*big.Rat // reduced row, nil meaning zero
		piv  int        // first nonzero column
		expr []*big.Rat // coefficients over kept original rows
	}
	var ech []echRow
	var kept []int

	cw := make([][]*big.Rat, m)
	for i := 0; i < m; i++ {
		r := a.Row(i)
		vals := make([]*big.Rat, n)
		for j, v := range r {
			if v != nil && v.Sign() != 0 {
				vals[j] = new(big.Rat).Set(v)
			}
		}
		coef := make([]*big.Rat, len(ech))
		for t := range ech {
			e := ech[t]
			if vals[e.piv] == nil || vals[e.piv].Sign() == 0 {
				continue
			}
			fac := new(big.Rat).Quo(vals[e.piv], e.vals[e.piv])
			coef[t] = fac
			for j := e.piv; j < n; j++ {
				if e.vals[j] == nil {
					continue
				}
				t2 := new(big.Rat).Mul(fac, e.vals[j])
				if vals[j] == nil {
					vals[j] = new(big.Rat).Neg(t2)
				} else {
					vals[j].Sub(vals[j], t2)
				}
			}
		}
		piv := -1
		for j := 0; j < n; j++ {
			if vals[j] != nil && vals[j].Sign() != 0 {
				piv = j
				break
			}
		}
		if piv < 0 {
			// dependent row: c_i = sum coef_t * expr_t
			crow := make([]*big.Rat, len(kept))
			for t, fc := range coef {
				if fc == nil {
					continue
				}
				for s2, ev := range ech[t].expr {
					if ev == nil {
						continue
					}
					t2 := new(big.Rat).Mul(fc, ev)
					if crow[s2] == nil {
						crow[s2] = t2
					} else {
						crow[s2].Add(crow[s2], t2)
					}
				}
			}
			cw[i] = crow
			continue
		}
		// independent row joins the basis
		expr := make([]*big.Rat, len(kept)+1)
		expr[len(kept)] = big.NewRat(1, 1)
		for t, fc := range coef {
			if fc == nil {
				continue
			}
			for s2, ev := range ech[t].expr {
				if ev == nil {
					continue
				}
				t2 := new(big.Rat).Mul(fc, ev)
				if expr[s2] == nil {
					expr[s2] = new(big.Rat).Neg(t2)
				} else {
					expr[s2].Sub(expr[s2], t2)
				}
			}
		}
		ech = append(ech, echRow{vals: vals, piv: piv, expr: expr})
		crow := make([]*big.Rat, len(kept)+1)
		crow[len(kept)] = big.NewRat(1, 1)
		cw[i] = crow
		kept = append(kept, i)
	}

	rank := len(kept)
	c = New(m, rank)
	for i := 0; i < m; i++ {
		for j, v := range cw[i] {
			if v != nil && v.Sign() != 0 {
				c.Set(i, j, v)
			}
		}
	}
	f = a.SelectRows(kept)
	return c, f
}

// RREF reduces a to reduced row echelon form, returning the reduced matrix
// (zero rows trailing) and the pivot column of each nonzero row.
func RREF(a *Matrix) (r *Matrix, pivots []int) {
	m, n := a.Dims()
	w := make([][]*big.Rat, m)
	for i := 0; i < m; i++ {
		row := a.Row(i)
		w[i] = make([]*big.Rat, n)
		for j, v := range row {
			if v != nil && v.Sign() != 0 {
				w[i][j] = new(big.Rat).Set(v)
			}
		}
	}

	rank := 0
	for col := 0; col < n && rank < m; col++ {
		sel := -1
		for i := rank; i < m; i++ {
			if w[i][col] != nil && w[i][col].Sign() != 0 {
				sel = i
				break
			}
		}
		if sel < 0 {
			continue
		}
		w[rank], w[sel] = w[sel], w[rank]
		inv := new(big.Rat).Inv(w[rank][col])
		for j := col; j < n; j++ {
			if w[rank][j] != nil {
				w[rank][j] = new(big.Rat).Mul(w[rank][j], inv)
			}
		}
		for i := 0; i < m; i++ {
			if i == rank || w[i][col] == nil || w[i][col].Sign() == 0 {
				continue
			}
			fac := new(big.Rat).Set(w[i][col])
			for j := col; j < n; j++ {
				if w[rank][j] == nil {
					continue
				}
				t := new(big.Rat).Mul(fac, w[rank][j])
				if w[i][j] == nil {
					w[i][j] = new(big.Rat).Neg(t)
				} else {
					w[i][j].Sub(w[i][j], t)
				}
			}
		}
		pivots = append(pivots, col)
		rank++
	}

	r = New(m, n)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			if w[i][j] != nil && w[i][j].Sign() != 0 {
				r.data[j] = append(r.data[j], Entry{Row: i, Val: w[i][j]})
			}
		}
	}
	return r, pivots
}
