package ratmat

import "math/big"

// Gensolve solves a*(x + h*k) = b for a particular solution x and a basis h
// of the homogeneous solution set, so that a*(x+h*k) = b holds for every k.
// Rows of a are visited in ascending nonzero count; rows that turn out to be
// linear combinations of earlier ones are skipped. Among the usable pivot
// columns of h (those within a factor of 1/thresh of the largest entry of
// the transformed row), the one with the fewest nonzeros is chosen to keep
// h sparse. A nil thresh selects the default of 1/10.
func Gensolve(a, b *Matrix, thresh *big.Rat) (x, h *Matrix) {
	m, n := a.Dims()
	br, p := b.Dims()
	if br != m {
		panic("ratmat: gensolve shape mismatch")
	}
	if thresh == nil {
		thresh = big.NewRat(1, 10)
	}

	// dense working copies, nil meaning zero
	hw := make([][]*big.Rat, n)
	xw := make([][]*big.Rat, n)
	for i := 0; i < n; i++ {
		hw[i] = make([]*big.Rat, n)
		hw[i][i] = big.NewRat(1, 1)
		xw[i] = make([]*big.Rat, p)
	}
	hcols := n

	order := rowsByNNZ(a)
	s := make([]*big.Rat, n)
	res := make([]*big.Rat, p)
	for _, i := range order {
		arow := a.Row(i)

		// s = a_i * h
		for j := 0; j < hcols; j++ {
			s[j] = nil
		}
		for kcol, av := range arow {
			if av == nil {
				continue
			}
			for j := 0; j < hcols; j++ {
				if hv := hw[kcol][j]; hv != nil {
					t := new(big.Rat).Mul(av, hv)
					if s[j] == nil {
						s[j] = t
					} else {
						s[j].Add(s[j], t)
					}
				}
			}
		}

		maxAbs := new(big.Rat)
		for j := 0; j < hcols; j++ {
			if s[j] != nil {
				if abs := new(big.Rat).Abs(s[j]); abs.Cmp(maxAbs) > 0 {
					maxAbs = abs
				}
			}
		}
		if maxAbs.Sign() == 0 {
			continue // redundant equation
		}

		// sparsity-preserving pivot among columns above thresh*maxAbs
		cutoff := new(big.Rat).Mul(thresh, maxAbs)
		pivot, pivotNNZ := -1, 0
		for j := 0; j < hcols; j++ {
			if s[j] == nil || s[j].Sign() == 0 {
				continue
			}
			if new(big.Rat).Abs(s[j]).Cmp(cutoff) < 0 {
				continue
			}
			nnz := 0
			for k := 0; k < n; k++ {
				if hw[k][j] != nil && hw[k][j].Sign() != 0 {
					nnz++
				}
			}
			if pivot < 0 || nnz < pivotNNZ {
				pivot, pivotNNZ = j, nnz
			}
		}

		q := make([]*big.Rat, n)
		for k := 0; k < n; k++ {
			q[k] = hw[k][pivot]
		}
		inv := new(big.Rat).Inv(s[pivot])

		// res = b_i - a_i * x
		brow := b.Row(i)
		for l := 0; l < p; l++ {
			acc := new(big.Rat)
			if brow[l] != nil {
				acc.Set(brow[l])
			}
			for kcol, av := range arow {
				if av == nil {
					continue
				}
				if xv := xw[kcol][l]; xv != nil {
					acc.Sub(acc, new(big.Rat).Mul(av, xv))
				}
			}
			res[l] = acc
		}

		// x += q * (res / s_pivot)
		for l := 0; l < p; l++ {
			if res[l].Sign() == 0 {
				continue
			}
			f := new(big.Rat).Mul(res[l], inv)
			for k := 0; k < n; k++ {
				if q[k] == nil {
					continue
				}
				t := new(big.Rat).Mul(q[k], f)
				if xw[k][l] == nil {
					xw[k][l] = t
				} else {
					xw[k][l].Add(xw[k][l], t)
				}
			}
		}

		// h_l -= q * (s_l / s_pivot), drop pivot column
		for j := 0; j < hcols; j++ {
			if j == pivot || s[j] == nil || s[j].Sign() == 0 {
				continue
			}
			f := new(big.Rat).Mul(s[j], inv)
			for k := 0; k < n; k++ {
				if q[k] == nil {
					continue
				}
				t := new(big.Rat).Mul(q[k], f)
				if hw[k][j] == nil {
					hw[k][j] = new(big.Rat).Neg(t)
				} else {
					hw[k][j].Sub(hw[k][j], t)
				}
			}
		}
		for k := 0; k < n; k++ {
			copy(hw[k][pivot:], hw[k][pivot+1:])
			hw[k][hcols-1] = nil
		}
		hcols--
	}

	x = fromDense(xw, n, p)
	h = fromDense(hw, n, hcols)
	return x, h
}

// Nullspace returns a basis of the kernel of a.
func Nullspace(a *Matrix) *Matrix {
	rows, _ := a.Dims()
	_, h := Gensolve(a, New(rows, 0), nil)
	return h
}

func rowsByNNZ(a *Matrix) []int {
	counts := a.RowNNZ()
	order := make([]int, len(counts))
	for i := range order {
		order[i] = i
	}
	// insertion sort, stable on row index
	for i := 1; i < len(order); i++ {
		for k := i; k > 0 && counts[order[k]] < counts[order[k-1]]; k-- {
			order[k], order[k-1] = order[k-1], order[k]
		}
	}
	return order
}

func fromDense(w [][]*big.Rat, rows, cols int) *Matrix {
	out := New(rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if w[i][j] != nil && w[i][j].Sign() != 0 {
				out.data[j] = append(out.data[j], Entry{Row: i, Val: w[i][j]})
			}
		}
	}
	return out
}
