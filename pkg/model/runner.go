package model

import (
	"fmt"
	"os"

	"statespice/pkg/solver"
)

// ModelRunner drives the per-sample loop. It owns all scratch buffers, so
// after a warm-up sample the loop performs no allocation. A runner must not
// be shared between goroutines; separate runners over separate models may
// run in parallel.
type ModelRunner struct {
	model *DiscreteModel

	ucur, ycur, xnew, z []float64
	ps                  [][]float64

	showProgress bool
}

// NewRunner borrows the model for a simulation run.
func NewRunner(m *DiscreteModel, showProgress bool) *ModelRunner {
	r := &ModelRunner{
		model:        m,
		ucur:         make([]float64, m.nu),
		ycur:         make([]float64, m.ny),
		xnew:         make([]float64, m.nx),
		z:            make([]float64, m.nn),
		showProgress: showProgress,
	}
	for _, s := range m.subs {
		r.ps = append(r.ps, make([]float64, s.np))
	}
	return r
}

// Run simulates n samples of the input u (one row per input channel, each of
// length n) and returns the outputs, one row per output channel.
func (r *ModelRunner) Run(u [][]float64, n int) ([][]float64, error) {
	y := make([][]float64, r.model.ny)
	for i := range y {
		y[i] = make([]float64, n)
	}
	if err := r.RunInto(y, u, n); err != nil {
		return nil, err
	}
	return y, nil
}

// RunInto simulates n samples writing outputs into y.
func (r *ModelRunner) RunInto(y, u [][]float64, n int) error {
	if err := checkShape("input", u, r.model.nu, n); err != nil {
		return err
	}
	if err := checkShape("output", y, r.model.ny, n); err != nil {
		return err
	}
	progressStep := n/20 + 1
	for s := 0; s < n; s++ {
		for ch := range u {
			r.ucur[ch] = u[ch][s]
		}
		if err := r.step(s); err != nil {
			return err
		}
		for ch := range y {
			y[ch][s] = r.ycur[ch]
		}
		if r.showProgress && (s%progressStep == 0 || s == n-1) {
			fmt.Fprintf(os.Stderr, "\rsimulating: %3.0f%%", 100*float64(s+1)/float64(n))
		}
	}
	if r.showProgress {
		fmt.Fprintln(os.Stderr)
	}
	return nil
}

// Step advances the model by a single sample with input ucur, returning the
// output sample.
func (r *ModelRunner) Step(ucur []float64) ([]float64, error) {
	if len(ucur) != r.model.nu {
		return nil, fmt.Errorf("model: input sample has %d channels, want %d", len(ucur), r.model.nu)
	}
	copy(r.ucur, ucur)
	if err := r.step(0); err != nil {
		return nil, err
	}
	return r.ycur, nil
}

// step runs one sample: assemble each sub-problem's parameter from the
// state, the input and the earlier sub-problems' solutions, solve it, then
// advance the output and state equations. The sub-problem order is a forward
// substitution over the strictly lower-triangular coupling.
func (r *ModelRunner) step(sample int) error {
	m := r.model
	for i := range r.z {
		r.z[i] = 0
	}
	for k, s := range m.subs {
		p := r.ps[k]
		for i := range p {
			p[i] = 0
		}
		mulAdd(p, s.dq, m.x)
		mulAdd(p, s.eq, r.ucur)
		if k > 0 {
			mulAdd(p, s.fqprev, r.z)
		}
		zk := s.solver.Solve(p)
		if !s.solver.HasConverged() {
			if !solver.AllFinite(zk) {
				return fmt.Errorf("model: sub-problem %d diverged at sample %d", k, sample)
			}
			fmt.Fprintf(os.Stderr, "warning: sub-problem %d did not converge at sample %d\n", k, sample)
		}
		copy(r.z[s.colStart:s.colStart+s.nn], zk)
	}

	copy(r.ycur, m.y0)
	mulAdd(r.ycur, m.dy, m.x)
	mulAdd(r.ycur, m.ey, r.ucur)
	mulAdd(r.ycur, m.fy, r.z)

	copy(r.xnew, m.x0)
	mulAdd(r.xnew, m.a, m.x)
	mulAdd(r.xnew, m.b, r.ucur)
	mulAdd(r.xnew, m.c, r.z)
	copy(m.x, r.xnew)
	return nil
}

func checkShape(what string, rows [][]float64, nch, n int) error {
	if len(rows) != nch {
		return fmt.Errorf("model: %s has %d channels, want %d", what, len(rows), nch)
	}
	for i, row := range rows {
		if len(row) < n {
			return fmt.Errorf("model: %s channel %d has %d samples, want %d", what, i, len(row), n)
		}
	}
	return nil
}
