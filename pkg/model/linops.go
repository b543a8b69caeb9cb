package model

import "gonum.org/v1/gonum/mat"

// mulAdd accumulates dst += m*v without allocating. A nil matrix or empty
// operand is a no-op; empty dimensions are how zero-sized blocks (no states,
// no inputs) are represented throughout the runtime.
func mulAdd(dst []float64, m *mat.Dense, v []float64) {
	if m == nil || len(dst) == 0 || len(v) == 0 {
		return
	}
	raw := m.RawMatrix()
	for i := range dst {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		s := 0.0
		for j, x := range v {
			s += row[j] * x
		}
		dst[i] += s
	}
}

// mulColsAdd accumulates dst += m[:, c0:c0+n]*v.
func mulColsAdd(dst []float64, m *mat.Dense, c0, n int, v []float64) {
	if m == nil || len(dst) == 0 || n == 0 {
		return
	}
	raw := m.RawMatrix()
	for i := range dst {
		row := raw.Data[i*raw.Stride+c0 : i*raw.Stride+c0+n]
		s := 0.0
		for j, x := range row {
			s += x * v[j]
		}
		dst[i] += s
	}
}

// deleteCols returns m with columns [c0, c0+n) removed, or nil if nothing
// remains.
func deleteCols(m *mat.Dense, c0, n int) *mat.Dense {
	if m == nil || n == 0 {
		return m
	}
	rows, cols := m.Dims()
	if cols == n {
		return nil
	}
	out := mat.NewDense(rows, cols-n, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < c0; j++ {
			out.Set(i, j, m.At(i, j))
		}
		for j := c0 + n; j < cols; j++ {
			out.Set(i, j-n, m.At(i, j))
		}
	}
	return out
}

func allZero(m *mat.Dense) bool {
	if m == nil {
		return true
	}
	raw := m.RawMatrix()
	for i := 0; i < raw.Rows; i++ {
		for _, v := range raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols] {
			if v != 0 {
				return false
			}
		}
	}
	return true
}
