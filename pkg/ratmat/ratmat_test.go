package ratmat

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomMatrix(rng *rand.Rand, rows, cols int, density float64) *Matrix {
	m := New(rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if rng.Float64() < density {
				m.SetInt(i, j, int64(rng.Intn(9)-4))
			}
		}
	}
	return m
}

func TestMatrixBasics(t *testing.T) {
	m := New(2, 3)
	m.SetInt(0, 0, 2)
	m.SetInt(1, 2, -3)
	require.Equal(t, 0, m.At(0, 1).Sign())
	require.Equal(t, int64(2), m.At(0, 0).Num().Int64())

	mt := m.T()
	r, c := mt.Dims()
	require.Equal(t, 3, r)
	require.Equal(t, 2, c)
	require.Equal(t, int64(-3), mt.At(2, 1).Num().Int64())

	m.Set(0, 0, new(big.Rat)) // zero removes
	require.Equal(t, 1, m.NNZ())
}

func TestMulAgainstIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	a := randomMatrix(rng, 4, 5, 0.6)
	require.True(t, Equal(a, Mul(Identity(4), a)))
	require.True(t, Equal(a, Mul(a, Identity(5))))
}

func TestBlockOps(t *testing.T) {
	a := Identity(2)
	b := New(2, 1)
	b.SetInt(1, 0, 7)

	h := Hcat(a, b)
	_, c := h.Dims()
	require.Equal(t, 3, c)
	require.Equal(t, int64(7), h.At(1, 2).Num().Int64())

	v := Vcat(a, a)
	r, _ := v.Dims()
	require.Equal(t, 4, r)
	require.Equal(t, int64(1), v.At(3, 1).Num().Int64())

	d := BlockDiag(a, b)
	r, c = d.Dims()
	require.Equal(t, 4, r)
	require.Equal(t, 3, c)
	require.Equal(t, int64(7), d.At(3, 2).Num().Int64())
}

func TestGensolveProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 25; trial++ {
		m := 2 + rng.Intn(4)
		n := m + rng.Intn(4)
		a := randomMatrix(rng, m, n, 0.7)

		// consistent right-hand side: b = a*w
		w := randomMatrix(rng, n, 2, 0.8)
		b := Mul(a, w)

		x, h := Gensolve(a, b, nil)

		require.True(t, Equal(Mul(a, x), b), "a*x must equal b")
		ah := Mul(a, h)
		require.True(t, ah.IsZero(), "a*h must vanish exactly")

		// h must be a basis: its columns are linearly independent
		_, hc := h.Dims()
		_, piv := RREF(h)
		require.Equal(t, hc, len(piv), "h columns must be independent")

		// arbitrary k still solves
		k := randomMatrix(rng, hc, 2, 0.9)
		require.True(t, Equal(Mul(a, Add(x, Mul(h, k))), b))
	}
}

func TestGensolveRedundantRows(t *testing.T) {
	// second row is twice the first
	a := New(2, 3)
	a.SetInt(0, 0, 1)
	a.SetInt(0, 2, -1)
	a.SetInt(1, 0, 2)
	a.SetInt(1, 2, -2)
	b := New(2, 1)
	b.SetInt(0, 0, 3)
	b.SetInt(1, 0, 6)

	x, h := Gensolve(a, b, nil)
	require.True(t, Equal(Mul(a, x), b))
	_, hc := h.Dims()
	assert.Equal(t, 2, hc, "rank 1 system in 3 unknowns keeps 2 free directions")
}

func TestRankFactorize(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for trial := 0; trial < 25; trial++ {
		rows := 2 + rng.Intn(5)
		cols := 2 + rng.Intn(5)
		a := randomMatrix(rng, rows, cols, 0.5)

		c, f := RankFactorize(a)
		require.True(t, Equal(a, Mul(c, f)), "c*f must reproduce a")

		fr, _ := f.Dims()
		_, piv := RREF(f)
		require.Equal(t, fr, len(piv), "f must have full row rank")
	}
}

func TestRankFactorizeDependentRows(t *testing.T) {
	a := New(3, 2)
	a.SetInt(0, 0, 1)
	a.SetInt(0, 1, 2)
	a.SetInt(1, 0, 2)
	a.SetInt(1, 1, 4)
	a.SetInt(2, 0, 0)
	a.SetInt(2, 1, 1)

	c, f := RankFactorize(a)
	fr, _ := f.Dims()
	require.Equal(t, 2, fr)
	require.True(t, Equal(a, Mul(c, f)))
}

func TestNullspace(t *testing.T) {
	// x + y + z = 0 has a two dimensional kernel
	a := New(1, 3)
	a.SetInt(0, 0, 1)
	a.SetInt(0, 1, 1)
	a.SetInt(0, 2, 1)

	h := Nullspace(a)
	_, hc := h.Dims()
	require.Equal(t, 2, hc)
	require.True(t, Mul(a, h).IsZero())
}

func TestRREF(t *testing.T) {
	a := New(2, 3)
	a.SetInt(0, 0, 2)
	a.SetInt(0, 1, 4)
	a.SetInt(1, 0, 1)
	a.SetInt(1, 1, 2)
	a.SetInt(1, 2, 1)

	r, piv := RREF(a)
	require.Equal(t, []int{0, 2}, piv)
	require.Equal(t, int64(1), r.At(0, 0).Num().Int64())
	require.Equal(t, int64(2), r.At(0, 1).Num().Int64())
	require.Equal(t, 0, r.At(0, 2).Sign())
}
