package solver

import (
	"statespice/pkg/kdtree"
)

// CachingSolver memoises converged solutions keyed by the parameter vector
// and seeds the wrapped solver with the solution of the nearest previously
// solved parameter. The tree is append-only; growth is bounded by evicting
// the oldest entries once the cap is reached, and inserts can be gated by a
// minimum parameter-space separation.
type CachingSolver struct {
	base   Solver
	nn, np int

	tree *kdtree.Tree
	ps   [][]float64
	zs   [][]float64
	fifo []int

	minSep2 float64
	maxSize int
}

// NewCachingSolver wraps base. With a zero parameter dimension caching is a
// no-op pass-through.
func NewCachingSolver(base Solver) *CachingSolver {
	nn, np := base.Dims()
	s := &CachingSolver{base: base, nn: nn, np: np, maxSize: 8192}
	if np > 0 {
		s.tree = kdtree.New(np)
	}
	return s
}

func (s *CachingSolver) Dims() (nn, np int) { return s.nn, s.np }

func (s *CachingSolver) SetResAbsTol(tol float64) { s.base.SetResAbsTol(tol) }

func (s *CachingSolver) HasConverged() bool { return s.base.HasConverged() }

func (s *CachingSolver) SetExtrapolationOrigin(p, z []float64) {
	s.base.SetExtrapolationOrigin(p, z)
}

// SetRefinement sets the minimum distance a new parameter must have from the
// cached set before its solution is stored.
func (s *CachingSolver) SetRefinement(minSep float64) { s.minSep2 = minSep * minSep }

// SetMaxSize caps the number of cached solutions.
func (s *CachingSolver) SetMaxSize(n int) { s.maxSize = n }

// Size returns the number of cached solutions.
func (s *CachingSolver) Size() int {
	if s.tree == nil {
		return 0
	}
	return s.tree.Len()
}

func (s *CachingSolver) Solve(p []float64) []float64 {
	nearest, nearDist := -1, 0.0
	if s.tree != nil {
		nearest, nearDist = s.tree.Nearest(p)
		if nearest >= 0 {
			s.base.SetExtrapolationOrigin(s.ps[nearest], s.zs[nearest])
		}
	}
	z := s.base.Solve(p)
	if s.tree != nil && s.base.HasConverged() && (nearest < 0 || nearDist > s.minSep2) {
		idx := s.tree.Insert(p)
		s.ps = append(s.ps, append([]float64(nil), p...))
		s.zs = append(s.zs, append([]float64(nil), z...))
		s.fifo = append(s.fifo, idx)
		if s.tree.Len() > s.maxSize {
			s.tree.Delete(s.fifo[0])
			s.fifo = s.fifo[1:]
		}
	}
	return z
}
