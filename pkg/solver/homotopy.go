package solver

// HomotopySolver drives the wrapped solver along a parameter path. A direct
// solve at the target is attempted first; on failure the parameter is
// interpolated from the anchor (the last parameter with a known solution)
// toward the target, halving the step on failure and doubling it after
// success, until the step underflows.
type HomotopySolver struct {
	base   Solver
	nn, np int

	startP []float64
	startZ []float64
	goodP  []float64
	goodZ  []float64
	pTry   []float64

	converged bool
}

const minHomotopyStep = 1.0 / (1 << 20)

// NewHomotopySolver wraps base with an anchor at the zero parameter.
func NewHomotopySolver(base Solver) *HomotopySolver {
	nn, np := base.Dims()
	return &HomotopySolver{
		base:   base,
		nn:     nn,
		np:     np,
		startP: make([]float64, np),
		startZ: make([]float64, nn),
		goodP:  make([]float64, np),
		goodZ:  make([]float64, nn),
		pTry:   make([]float64, np),
	}
}

func (s *HomotopySolver) Dims() (nn, np int) { return s.nn, s.np }

func (s *HomotopySolver) SetResAbsTol(tol float64) { s.base.SetResAbsTol(tol) }

func (s *HomotopySolver) HasConverged() bool { return s.converged }

// SetExtrapolationOrigin installs the anchor the continuation starts from.
func (s *HomotopySolver) SetExtrapolationOrigin(p, z []float64) {
	copy(s.startP, p)
	copy(s.startZ, z)
	s.base.SetExtrapolationOrigin(p, z)
}

func (s *HomotopySolver) Solve(p []float64) []float64 {
	z := s.base.Solve(p)
	if s.base.HasConverged() {
		s.converged = true
		s.remember(p, z)
		return z
	}

	copy(s.goodP, s.startP)
	copy(s.goodZ, s.startZ)
	best := 0.0
	dl := 0.5
	for {
		if dl < minHomotopyStep {
			s.converged = false
			return s.goodZ
		}
		lambda := best + dl
		if lambda > 1 {
			lambda = 1
		}
		for j := 0; j < s.np; j++ {
			s.pTry[j] = (1-lambda)*s.startP[j] + lambda*p[j]
		}
		s.base.SetExtrapolationOrigin(s.goodP, s.goodZ)
		z = s.base.Solve(s.pTry)
		if !s.base.HasConverged() {
			dl /= 2
			continue
		}
		copy(s.goodP, s.pTry)
		copy(s.goodZ, z)
		if lambda >= 1 {
			s.converged = true
			s.remember(p, z)
			return z
		}
		best = lambda
		dl *= 2
	}
}

func (s *HomotopySolver) remember(p, z []float64) {
	copy(s.startP, p)
	copy(s.startZ, z)
}
