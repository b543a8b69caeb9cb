// Package ratmat provides sparse matrices over arbitrary-precision rationals.
// The model compiler does all of its row reduction in exact arithmetic so that
// rank decisions are never corrupted by round-off. Only the handful of
// operations the compiler needs are implemented: multiply, transpose,
// concatenation, column selection and deletion, and nonzero bookkeeping.
package ratmat

import (
	"fmt"
	"math/big"

	"gonum.org/v1/gonum/mat"
)

// Entry is a single nonzero value within a column.
type Entry struct {
	Row int
	Val *big.Rat
}

// Matrix is a compressed-column sparse rational matrix. Stored values are
// treated as immutable; operations allocate fresh rationals.
type Matrix struct {
	rows, cols int
	data       [][]Entry // per column, sorted by row
}

// New returns a zero matrix of the given shape.
func New(rows, cols int) *Matrix {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("ratmat: negative dimension %dx%d", rows, cols))
	}
	return &Matrix{rows: rows, cols: cols, data: make([][]Entry, cols)}
}

// Identity returns the n-by-n identity.
func Identity(n int) *Matrix {
	m := New(n, n)
	one := big.NewRat(1, 1)
	for i := 0; i < n; i++ {
		m.data[i] = []Entry{{Row: i, Val: one}}
	}
	return m
}

// FromFloat converts a float64 exactly into a rational.
func FromFloat(v float64) *big.Rat {
	r := new(big.Rat).SetFloat64(v)
	if r == nil {
		panic(fmt.Sprintf("ratmat: non-finite value %v", v))
	}
	return r
}

// Dims returns the matrix shape.
func (m *Matrix) Dims() (rows, cols int) { return m.rows, m.cols }

// At returns the value at (i, j). The returned rational must not be modified.
func (m *Matrix) At(i, j int) *big.Rat {
	m.checkIndex(i, j)
	for _, e := range m.data[j] {
		if e.Row == i {
			return e.Val
		}
		if e.Row > i {
			break
		}
	}
	return ratZero
}

// Set stores v at (i, j). A zero value removes the entry.
func (m *Matrix) Set(i, j int, v *big.Rat) {
	m.checkIndex(i, j)
	col := m.data[j]
	pos := len(col)
	for k, e := range col {
		if e.Row >= i {
			pos = k
			break
		}
	}
	if pos < len(col) && col[pos].Row == i {
		if v.Sign() == 0 {
			m.data[j] = append(col[:pos], col[pos+1:]...)
		} else {
			col[pos].Val = new(big.Rat).Set(v)
		}
		return
	}
	if v.Sign() == 0 {
		return
	}
	col = append(col, Entry{})
	copy(col[pos+1:], col[pos:])
	col[pos] = Entry{Row: i, Val: new(big.Rat).Set(v)}
	m.data[j] = col
}

// SetInt stores the integer value num at (i, j).
func (m *Matrix) SetInt(i, j int, num int64) {
	m.Set(i, j, big.NewRat(num, 1))
}

// Col returns the nonzero entries of column j. The slice must not be modified.
func (m *Matrix) Col(j int) []Entry { return m.data[j] }

// NNZCol returns the number of nonzeros in column j.
func (m *Matrix) NNZCol(j int) int { return len(m.data[j]) }

// NNZ returns the total number of nonzeros.
func (m *Matrix) NNZ() int {
	n := 0
	for _, col := range m.data {
		n += len(col)
	}
	return n
}

// RowNNZ returns the nonzero count of every row.
func (m *Matrix) RowNNZ() []int {
	counts := make([]int, m.rows)
	for _, col := range m.data {
		for _, e := range col {
			counts[e.Row]++
		}
	}
	return counts
}

// Row returns row i as a dense slice with nil for zero entries.
func (m *Matrix) Row(i int) []*big.Rat {
	row := make([]*big.Rat, m.cols)
	for j, col := range m.data {
		for _, e := range col {
			if e.Row == i {
				row[j] = e.Val
			}
		}
	}
	return row
}

// Copy returns a deep structural copy (values are shared, they are immutable).
func (m *Matrix) Copy() *Matrix {
	c := New(m.rows, m.cols)
	for j, col := range m.data {
		c.data[j] = append([]Entry(nil), col...)
	}
	return c
}

// T returns the transpose.
func (m *Matrix) T() *Matrix {
	t := New(m.cols, m.rows)
	for j, col := range m.data {
		for _, e := range col {
			t.data[e.Row] = append(t.data[e.Row], Entry{Row: j, Val: e.Val})
		}
	}
	return t
}

// IsZero reports whether the matrix has no nonzero entries.
func (m *Matrix) IsZero() bool {
	for _, col := range m.data {
		if len(col) > 0 {
			return false
		}
	}
	return true
}

// Mul returns a*b.
func Mul(a, b *Matrix) *Matrix {
	if a.cols != b.rows {
		panic(fmt.Sprintf("ratmat: multiply dimension mismatch %dx%d by %dx%d", a.rows, a.cols, b.rows, b.cols))
	}
	out := New(a.rows, b.cols)
	acc := make([]*big.Rat, a.rows)
	for j := 0; j < b.cols; j++ {
		for i := range acc {
			acc[i] = nil
		}
		for _, be := range b.data[j] {
			for _, ae := range a.data[be.Row] {
				p := new(big.Rat).Mul(ae.Val, be.Val)
				if acc[ae.Row] == nil {
					acc[ae.Row] = p
				} else {
					acc[ae.Row].Add(acc[ae.Row], p)
				}
			}
		}
		for i, v := range acc {
			if v != nil && v.Sign() != 0 {
				out.data[j] = append(out.data[j], Entry{Row: i, Val: v})
			}
		}
	}
	return out
}

// Add returns a+b.
func Add(a, b *Matrix) *Matrix {
	if a.rows != b.rows || a.cols != b.cols {
		panic(fmt.Sprintf("ratmat: add dimension mismatch %dx%d and %dx%d", a.rows, a.cols, b.rows, b.cols))
	}
	out := a.Copy()
	for j := 0; j < b.cols; j++ {
		for _, e := range b.data[j] {
			sum := new(big.Rat).Add(out.At(e.Row, j), e.Val)
			out.Set(e.Row, j, sum)
		}
	}
	return out
}

// Sub returns a-b.
func Sub(a, b *Matrix) *Matrix {
	return Add(a, Scale(b, big.NewRat(-1, 1)))
}

// Scale returns a*s.
func Scale(a *Matrix, s *big.Rat) *Matrix {
	out := New(a.rows, a.cols)
	if s.Sign() == 0 {
		return out
	}
	for j, col := range a.data {
		for _, e := range col {
			out.data[j] = append(out.data[j], Entry{Row: e.Row, Val: new(big.Rat).Mul(e.Val, s)})
		}
	}
	return out
}

// Hcat concatenates matrices left to right.
func Hcat(ms ...*Matrix) *Matrix {
	rows := ms[0].rows
	cols := 0
	for _, m := range ms {
		if m.rows != rows {
			panic("ratmat: hcat row mismatch")
		}
		cols += m.cols
	}
	out := New(rows, cols)
	off := 0
	for _, m := range ms {
		for j, col := range m.data {
			out.data[off+j] = append([]Entry(nil), col...)
		}
		off += m.cols
	}
	return out
}

// Vcat concatenates matrices top to bottom.
func Vcat(ms ...*Matrix) *Matrix {
	cols := ms[0].cols
	rows := 0
	for _, m := range ms {
		if m.cols != cols {
			panic("ratmat: vcat column mismatch")
		}
		rows += m.rows
	}
	out := New(rows, cols)
	off := 0
	for _, m := range ms {
		for j, col := range m.data {
			for _, e := range col {
				out.data[j] = append(out.data[j], Entry{Row: off + e.Row, Val: e.Val})
			}
		}
		off += m.rows
	}
	return out
}

// BlockDiag places matrices along the diagonal.
func BlockDiag(ms ...*Matrix) *Matrix {
	rows, cols := 0, 0
	for _, m := range ms {
		rows += m.rows
		cols += m.cols
	}
	out := New(rows, cols)
	roff, coff := 0, 0
	for _, m := range ms {
		for j, col := range m.data {
			for _, e := range col {
				out.data[coff+j] = append(out.data[coff+j], Entry{Row: roff + e.Row, Val: e.Val})
			}
		}
		roff += m.rows
		coff += m.cols
	}
	return out
}

// SelectRows returns the submatrix of the given rows, in the given order.
func (m *Matrix) SelectRows(idx []int) *Matrix {
	pos := make(map[int]int, len(idx))
	for k, i := range idx {
		pos[i] = k
	}
	out := New(len(idx), m.cols)
	for j, col := range m.data {
		for _, e := range col {
			if k, ok := pos[e.Row]; ok {
				out.data[j] = append(out.data[j], Entry{Row: k, Val: e.Val})
			}
		}
		sortEntries(out.data[j])
	}
	return out
}

// SliceRows returns rows [i0, i1).
func (m *Matrix) SliceRows(i0, i1 int) *Matrix {
	idx := make([]int, 0, i1-i0)
	for i := i0; i < i1; i++ {
		idx = append(idx, i)
	}
	return m.SelectRows(idx)
}

// SelectCols returns the submatrix of the given columns, in the given order.
func (m *Matrix) SelectCols(idx []int) *Matrix {
	out := New(m.rows, len(idx))
	for k, j := range idx {
		out.data[k] = append([]Entry(nil), m.data[j]...)
	}
	return out
}

// SliceCols returns columns [j0, j1).
func (m *Matrix) SliceCols(j0, j1 int) *Matrix {
	idx := make([]int, 0, j1-j0)
	for j := j0; j < j1; j++ {
		idx = append(idx, j)
	}
	return m.SelectCols(idx)
}

// AddScaledCol adds s times column src to column dst in place.
func (m *Matrix) AddScaledCol(dst, src int, s *big.Rat) {
	if s.Sign() == 0 {
		return
	}
	for _, e := range m.data[src] {
		sum := new(big.Rat).Mul(e.Val, s)
		sum.Add(sum, m.At(e.Row, dst))
		m.Set(e.Row, dst, sum)
	}
}

// SwapCols exchanges two columns in place.
func (m *Matrix) SwapCols(a, b int) {
	m.data[a], m.data[b] = m.data[b], m.data[a]
}

// DeleteCol removes column j in place.
func (m *Matrix) DeleteCol(j int) {
	m.data = append(m.data[:j], m.data[j+1:]...)
	m.cols--
}

// Dense converts to a gonum dense matrix, or nil for an empty shape.
func (m *Matrix) Dense() *mat.Dense {
	if m.rows == 0 || m.cols == 0 {
		return nil
	}
	d := mat.NewDense(m.rows, m.cols, nil)
	for j, col := range m.data {
		for _, e := range col {
			v, _ := e.Val.Float64()
			d.Set(e.Row, j, v)
		}
	}
	return d
}

// DenseVec converts a single-column matrix to a float64 slice.
func (m *Matrix) DenseVec() []float64 {
	if m.cols != 1 {
		panic("ratmat: DenseVec on non-vector")
	}
	out := make([]float64, m.rows)
	for _, e := range m.data[0] {
		out[e.Row], _ = e.Val.Float64()
	}
	return out
}

// Equal reports exact elementwise equality.
func Equal(a, b *Matrix) bool {
	if a.rows != b.rows || a.cols != b.cols {
		return false
	}
	return Sub(a, b).IsZero()
}

func (m *Matrix) checkIndex(i, j int) {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		panic(fmt.Sprintf("ratmat: index (%d,%d) out of range %dx%d", i, j, m.rows, m.cols))
	}
}

func sortEntries(es []Entry) {
	for i := 1; i < len(es); i++ {
		for k := i; k > 0 && es[k].Row < es[k-1].Row; k-- {
			es[k], es[k-1] = es[k-1], es[k]
		}
	}
}

var ratZero = new(big.Rat)
