package kdtree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bruteNearest(points [][]float64, dead map[int]bool, q []float64) (int, float64) {
	best, bestDist := -1, 0.0
	for i, p := range points {
		if dead[i] {
			continue
		}
		d := sqDist(p, q)
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

func TestNearestMatchesExhaustiveSearch(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, dim := range []int{1, 2, 3, 5} {
		tree := New(dim)
		var points [][]float64
		for i := 0; i < 300; i++ {
			p := make([]float64, dim)
			for k := range p {
				p[k] = rng.NormFloat64()
			}
			idx := tree.Insert(p)
			require.Equal(t, len(points), idx)
			points = append(points, p)
		}
		for trial := 0; trial < 200; trial++ {
			q := make([]float64, dim)
			for k := range q {
				q[k] = rng.NormFloat64() * 2
			}
			gotIdx, gotDist := tree.Nearest(q)
			wantIdx, wantDist := bruteNearest(points, nil, q)
			require.Equal(t, wantIdx, gotIdx)
			assert.InDelta(t, wantDist, gotDist, 1e-12)
		}
	}
}

func TestNearestSkipsDeleted(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	tree := New(2)
	var points [][]float64
	for i := 0; i < 100; i++ {
		p := []float64{rng.Float64(), rng.Float64()}
		tree.Insert(p)
		points = append(points, p)
	}
	dead := map[int]bool{}
	for i := 0; i < 40; i++ {
		idx := rng.Intn(100)
		tree.Delete(idx)
		dead[idx] = true
	}
	require.Equal(t, 100-len(dead), tree.Len())

	for trial := 0; trial < 100; trial++ {
		q := []float64{rng.Float64(), rng.Float64()}
		gotIdx, _ := tree.Nearest(q)
		wantIdx, _ := bruteNearest(points, dead, q)
		require.Equal(t, wantIdx, gotIdx)
	}
}

func TestEmptyTree(t *testing.T) {
	tree := New(3)
	idx, _ := tree.Nearest([]float64{0, 0, 0})
	require.Equal(t, -1, idx)
}
