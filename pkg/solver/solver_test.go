package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// quadratic is the residual z^2 - 1 + p = 0, the standard turning-point
// example: real roots exist for p <= 1 and vanish for p > 1.
type quadratic struct {
	p     float64
	evals int
}

func (q *quadratic) Dims() (int, int) { return 1, 1 }

func (q *quadratic) SetP(p []float64) { q.p = p[0] }

func (q *quadratic) Eval(z, res []float64, jac *mat.Dense) {
	q.evals++
	res[0] = z[0]*z[0] - 1 + q.p
	jac.Set(0, 0, 2*z[0])
}

func (q *quadratic) CalcJp(jp *mat.Dense) { jp.Set(0, 0, 1) }

func TestSimpleSolverConverges(t *testing.T) {
	s := NewSimpleSolver(&quadratic{}, []float64{1})
	z := s.Solve([]float64{0})
	require.True(t, s.HasConverged())
	assert.InDelta(t, 1.0, z[0], 1e-9)

	z = s.Solve([]float64{0.19})
	require.True(t, s.HasConverged())
	assert.InDelta(t, 0.9, z[0], 1e-9)
}

func TestSimpleSolverRespectsTolerance(t *testing.T) {
	s := NewSimpleSolver(&quadratic{}, []float64{1})
	s.SetResAbsTol(1e-14)
	z := s.Solve([]float64{0.5})
	require.True(t, s.HasConverged())
	res := z[0]*z[0] - 0.5
	assert.LessOrEqual(t, res, 1e-14)
}

func TestHomotopySolverReachesHardTargets(t *testing.T) {
	s := NewHomotopySimple(&quadratic{}, []float64{1})
	s.SetExtrapolationOrigin([]float64{0}, []float64{1})

	for _, p := range []float64{0.5, 0.9, 0.99, 0.9999, -3, -50} {
		z := s.Solve([]float64{p})
		require.True(t, s.HasConverged(), "p=%v", p)
		assert.InDelta(t, 0.0, z[0]*z[0]-1+p, 1e-8, "p=%v", p)
	}
}

func TestHomotopySolverFailsBeyondTurningPoint(t *testing.T) {
	s := NewHomotopySimple(&quadratic{}, []float64{1})
	s.SetExtrapolationOrigin([]float64{0}, []float64{1})

	s.Solve([]float64{2})
	require.False(t, s.HasConverged())
}

func TestCachingSolverStoresAndReusesSolutions(t *testing.T) {
	res := &quadratic{}
	c := NewCachingSolver(NewSimpleSolver(res, []float64{1}))
	c.SetExtrapolationOrigin([]float64{0}, []float64{1})

	z := c.Solve([]float64{0.5})
	require.True(t, c.HasConverged())
	assert.InDelta(t, 0.0, z[0]*z[0]-0.5, 1e-9)
	require.Equal(t, 1, c.Size())

	// a repeat of the same parameter is gated out of the cache
	c.Solve([]float64{0.5})
	require.Equal(t, 1, c.Size())

	c.Solve([]float64{0.75})
	require.True(t, c.HasConverged())
	require.Equal(t, 2, c.Size())

	// warm-started solve near a cached point converges in very few evals
	before := res.evals
	c.Solve([]float64{0.7500001})
	assert.Less(t, res.evals-before, 6)
}

func TestCachingSolverEviction(t *testing.T) {
	c := NewCachingSolver(NewSimpleSolver(&quadratic{}, []float64{1}))
	c.SetExtrapolationOrigin([]float64{0}, []float64{1})
	c.SetMaxSize(4)

	for i := 0; i < 10; i++ {
		c.Solve([]float64{float64(i) * 0.05})
	}
	assert.Equal(t, 4, c.Size())
}

func TestSolveIsAllocationFree(t *testing.T) {
	s := NewHomotopySimple(&quadratic{}, []float64{1})
	s.SetExtrapolationOrigin([]float64{0}, []float64{1})
	p := []float64{0.3}
	s.Solve(p)

	allocs := testing.AllocsPerRun(200, func() {
		p[0] = 0.3
		s.Solve(p)
	})
	assert.Zero(t, allocs)
}
