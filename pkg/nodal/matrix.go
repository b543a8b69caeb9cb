// Package nodal is a modified-nodal-analysis DC operating-point engine. It
// solves circuits of resistors, sources, inputs, probes, diodes and BJTs by
// the classic stamp-and-iterate route over a sparse real matrix, which makes
// it an independent cross-check for compiled models of such circuits.
// Capacitors, inductors and op-amps are not supported.
package nodal

import (
	"fmt"

	"github.com/edp1096/sparse"
)

// systemMatrix wraps the sparse solver with 1-based node/branch indexing and
// a dense right-hand side.
type systemMatrix struct {
	size   int
	matrix *sparse.Matrix
	rhs    []float64
	sol    []float64
}

func newSystemMatrix(size int) (*systemMatrix, error) {
	config := &sparse.Configuration{
		Real:           true,
		Expandable:     true,
		Translate:      true,
		ModifiedNodal:  true,
		TiesMultiplier: 5,
	}
	m, err := sparse.Create(int64(size), config)
	if err != nil {
		return nil, fmt.Errorf("nodal: creating sparse matrix: %w", err)
	}
	return &systemMatrix{
		size:   size,
		matrix: m,
		rhs:    make([]float64, size+1),
	}, nil
}

func (m *systemMatrix) addElement(i, j int, value float64) {
	if i <= 0 || j <= 0 {
		return // ground row and column are implicit
	}
	m.matrix.GetElement(int64(i), int64(j)).Real += value
}

func (m *systemMatrix) addRHS(i int, value float64) {
	if i <= 0 {
		return
	}
	m.rhs[i] += value
}

func (m *systemMatrix) loadGmin(gmin float64, nodes int) {
	for i := 1; i <= nodes; i++ {
		m.matrix.GetElement(int64(i), int64(i)).Real += gmin
	}
}

func (m *systemMatrix) clear() {
	m.matrix.Clear()
	for i := range m.rhs {
		m.rhs[i] = 0
	}
}

func (m *systemMatrix) solve() error {
	if err := m.matrix.Factor(); err != nil {
		return fmt.Errorf("nodal: matrix factorization failed: %w", err)
	}
	sol, err := m.matrix.Solve(m.rhs)
	if err != nil {
		return fmt.Errorf("nodal: matrix solve failed: %w", err)
	}
	m.sol = sol
	return nil
}

func (m *systemMatrix) at(i int) float64 {
	if i <= 0 {
		return 0
	}
	return m.sol[i]
}

func (m *systemMatrix) destroy() {
	if m.matrix != nil {
		m.matrix.Destroy()
	}
}
