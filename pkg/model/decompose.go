package model

import (
	"fmt"
	"math/big"

	"statespice/pkg/circuit"
	"statespice/pkg/ratmat"
)

// block is one sub-problem identified by nonlinearity decomposition: a subset
// of nonlinear elements whose fq rows, after the accumulated column
// transform, only reach the columns of this and earlier blocks.
type block struct {
	elems    []int // circuit element indices
	rows     []int // global q-row indices, element order
	nn, nq   int
	colStart int
}

type colOp struct {
	swap bool
	a, b int
	s    *big.Rat
}

// decompose permutes and combines the columns of fq into strictly block
// lower triangular form with independent diagonal blocks. The same column
// transform is applied to c and fy, which index the same column space.
// With split false the whole nonlinearity stays one block.
func decompose(m *compMats, circ *circuit.Circuit, split bool) ([]block, error) {
	type nlInfo struct {
		elem   int
		qoff   int
		nq, nn int
	}
	var nl []nlInfo
	qoff, nnSum := 0, 0
	for i, e := range circ.Elements() {
		if e.NQ() > 0 {
			nl = append(nl, nlInfo{elem: i, qoff: qoff, nq: e.NQ(), nn: e.NN()})
			nnSum += e.NN()
		}
		qoff += e.NQ()
	}
	if nnSum != m.nn {
		return nil, fmt.Errorf("model: circuit leaves %d nonlinear degrees of freedom but elements declare %d; the circuit is over- or under-determined", m.nn, nnSum)
	}
	if len(nl) == 0 {
		return nil, nil
	}

	rowsOf := func(subset []int) []int {
		var rows []int
		for _, k := range subset {
			for r := nl[k].qoff; r < nl[k].qoff+nl[k].nq; r++ {
				rows = append(rows, r)
			}
		}
		return rows
	}
	mkBlock := func(subset []int, colStart int) block {
		b := block{colStart: colStart}
		for _, k := range subset {
			b.elems = append(b.elems, nl[k].elem)
			b.nn += nl[k].nn
			b.nq += nl[k].nq
		}
		b.rows = rowsOf(subset)
		return b
	}

	if !split {
		all := make([]int, len(nl))
		for i := range all {
			all[i] = i
		}
		return []block{mkBlock(all, 0)}, nil
	}

	remaining := make([]int, len(nl))
	for i := range remaining {
		remaining[i] = i
	}
	var blocks []block
	off := 0
	for len(remaining) > 0 {
		found := false
		for sz := 1; sz <= len(remaining) && !found; sz++ {
			combos := combinations(len(remaining), sz)
			for _, combo := range combos {
				subset := make([]int, sz)
				nnS := 0
				for i, ci := range combo {
					subset[i] = remaining[ci]
					nnS += nl[subset[i]].nn
				}
				ops, ok := tryExtract(m.fq, rowsOf(subset), off, m.nn, nnS)
				if !ok {
					continue
				}
				applyOps(off, ops, m.fq, m.c, m.fy)
				blocks = append(blocks, mkBlock(subset, off))
				off += nnS
				keep := remaining[:0]
				inSubset := make(map[int]bool, sz)
				for _, s := range subset {
					inSubset[s] = true
				}
				for _, r := range remaining {
					if !inSubset[r] {
						keep = append(keep, r)
					}
				}
				remaining = keep
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("model: nonlinearity decomposition failed to make progress")
		}
	}
	return blocks, nil
}

// tryExtract runs a Gauss-Jordan style column elimination over the given fq
// rows restricted to columns [off, end), looking for an invertible transform
// that confines those rows to the first nn columns of the window. It returns
// the recorded column operations on success.
func tryExtract(fq *ratmat.Matrix, rows []int, off, end, nn int) ([]colOp, bool) {
	w := end - off
	sub := make([][]*big.Rat, len(rows))
	for k, ri := range rows {
		full := fq.Row(ri)
		r := make([]*big.Rat, w)
		for j := 0; j < w; j++ {
			if v := full[off+j]; v != nil && v.Sign() != 0 {
				r[j] = new(big.Rat).Set(v)
			}
		}
		sub[k] = r
	}

	var ops []colOp
	p := 0
	for _, r := range sub {
		pivot := -1
		for j := p; j < w; j++ {
			if r[j] != nil && r[j].Sign() != 0 {
				pivot = j
				break
			}
		}
		if pivot < 0 {
			continue
		}
		if p == nn {
			return nil, false
		}
		if pivot != p {
			for _, rr := range sub {
				rr[pivot], rr[p] = rr[p], rr[pivot]
			}
			ops = append(ops, colOp{swap: true, a: pivot, b: p})
		}
		inv := new(big.Rat).Inv(r[p])
		for j := p + 1; j < w; j++ {
			if r[j] == nil || r[j].Sign() == 0 {
				continue
			}
			s := new(big.Rat).Mul(r[j], inv)
			s.Neg(s)
			for _, rr := range sub {
				if rr[p] == nil || rr[p].Sign() == 0 {
					continue
				}
				t := new(big.Rat).Mul(rr[p], s)
				if rr[j] == nil {
					rr[j] = t
				} else {
					rr[j].Add(rr[j], t)
					if rr[j].Sign() == 0 {
						rr[j] = nil
					}
				}
			}
			ops = append(ops, colOp{a: p, b: j, s: s})
		}
		p++
	}
	if p != nn {
		return nil, false
	}
	return ops, true
}

func applyOps(off int, ops []colOp, ms ...*ratmat.Matrix) {
	for _, op := range ops {
		for _, m := range ms {
			if op.swap {
				m.SwapCols(off+op.a, off+op.b)
			} else {
				m.AddScaledCol(off+op.b, off+op.a, op.s)
			}
		}
	}
}

// combinations enumerates k-subsets of {0..n-1} in lexicographic order.
func combinations(n, k int) [][]int {
	var out [][]int
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		out = append(out, append([]int(nil), idx...))
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			break
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
	return out
}
