package nodal

import (
	"fmt"
	"math"

	"statespice/internal/consts"
	"statespice/pkg/circuit"
	"statespice/pkg/device"
)

const (
	maxIterations = 100
	absTol        = 1e-12
	relTol        = 1e-6
	gminSteps     = 10
)

// Result holds an operating point keyed the SPICE way.
type Result struct {
	NodeVoltages   map[string]float64 // V(net)
	BranchCurrents map[string]float64 // I(element), for elements with a branch row
}

// stampEl is one element prepared for stamping: resolved node indices per
// pin, an optional branch row, and the linearization state of a nonlinear
// junction pair.
type stampEl struct {
	name   string
	el     *device.Element
	nodes  map[string]int
	branch int // MNA branch row of a voltage source, voltage input or current probe; 0 otherwise

	// previous junction voltages for the Newton linearization
	v1, v2 float64
}

// OperatingPoint computes the DC solution of the circuit by Newton iteration
// over the stamped MNA system, with gmin stepping as the fallback. Inputs
// maps the value of each input element for the analysis; missing entries are
// zero. The circuit must contain a ground net named "0" or "gnd".
func OperatingPoint(circ *circuit.Circuit, inputs map[string]float64) (*Result, error) {
	nodes, ground, err := mapNodes(circ)
	if err != nil {
		return nil, err
	}

	els, branches, err := prepare(circ, nodes)
	if err != nil {
		return nil, err
	}

	size := len(nodes) + branches
	m, err := newSystemMatrix(size)
	if err != nil {
		return nil, err
	}
	defer m.destroy()

	if err := solveNR(m, els, inputs, len(nodes), 0); err != nil {
		// gmin stepping, from strong shunts down to none
		gmin := float64(size) * 0.001 * math.Pow(10, float64(gminSteps))
		for i := 0; i <= gminSteps; i++ {
			if err := solveNR(m, els, inputs, len(nodes), gmin); err != nil {
				return nil, fmt.Errorf("nodal: gmin stepping failed at %g: %w", gmin, err)
			}
			gmin /= 10
		}
		if err := solveNR(m, els, inputs, len(nodes), 0); err != nil {
			return nil, fmt.Errorf("nodal: final solve with zero gmin: %w", err)
		}
	}

	res := &Result{
		NodeVoltages:   make(map[string]float64),
		BranchCurrents: make(map[string]float64),
	}
	for net, idx := range nodes {
		res.NodeVoltages[fmt.Sprintf("V(%s)", net)] = m.at(idx)
	}
	res.NodeVoltages["V("+ground+")"] = 0
	for _, s := range els {
		if s.branch > 0 {
			res.BranchCurrents[fmt.Sprintf("I(%s)", s.name)] = m.at(s.branch)
		}
	}
	return res, nil
}

func mapNodes(circ *circuit.Circuit) (map[string]int, string, error) {
	nodes := make(map[string]int)
	ground := ""
	for _, net := range circ.Nets() {
		if net == "0" || net == "gnd" {
			ground = net
			continue
		}
		nodes[net] = len(nodes) + 1
	}
	if ground == "" {
		return nil, "", fmt.Errorf("nodal: circuit has no ground net (\"0\" or \"gnd\")")
	}
	return nodes, ground, nil
}

func prepare(circ *circuit.Circuit, nodes map[string]int) ([]*stampEl, int, error) {
	pinNode := make(map[string]map[string]int)
	for _, net := range circ.Nets() {
		idx := nodes[net] // ground maps to 0
		for _, p := range circ.NetPins(net) {
			if pinNode[p.Element] == nil {
				pinNode[p.Element] = make(map[string]int)
			}
			pinNode[p.Element][p.Pin] = idx
		}
	}

	var els []*stampEl
	branches := len(nodes)
	for i, el := range circ.Elements() {
		name := circ.Names()[i]
		s := &stampEl{name: name, el: el, nodes: pinNode[name]}
		switch el.Kind {
		case "resistor", "current_source", "current_input", "voltage_probe", "diode", "bjt":
			// no branch row
		case "voltage_source", "voltage_input", "current_probe":
			branches++
			s.branch = branches
		default:
			return nil, 0, fmt.Errorf("nodal: element %q kind %q is not supported in nodal analysis", name, el.Kind)
		}
		for _, pin := range el.PinNames() {
			if _, ok := s.nodes[pin]; !ok {
				return nil, 0, fmt.Errorf("nodal: element %q pin %q is unconnected", name, pin)
			}
		}
		els = append(els, s)
	}
	return els, branches - len(nodes), nil
}

func solveNR(m *systemMatrix, els []*stampEl, inputs map[string]float64, nodes int, gmin float64) error {
	// start each attempt from the junctions at rest
	for _, s := range els {
		s.v1, s.v2 = 0, 0
	}
	var old []float64
	for iter := 0; iter < maxIterations; iter++ {
		m.clear()
		for _, s := range els {
			s.stamp(m, inputs)
		}
		m.loadGmin(gmin, nodes)
		if err := m.solve(); err != nil {
			return err
		}

		for _, s := range els {
			s.updateLinearization(m)
		}

		if iter > 0 && converged(old, m.sol) {
			return nil
		}
		if old == nil {
			old = make([]float64, len(m.sol))
		}
		copy(old, m.sol)
	}
	return fmt.Errorf("no convergence in %d iterations", maxIterations)
}

func converged(old, sol []float64) bool {
	if len(old) != len(sol) {
		return false
	}
	for i := 1; i < len(sol); i++ {
		diff := math.Abs(sol[i] - old[i])
		if diff > relTol*math.Max(math.Abs(sol[i]), math.Abs(old[i]))+absTol {
			return false
		}
	}
	return true
}

func (s *stampEl) node(pin string) int { return s.nodes[pin] }

func (s *stampEl) stamp(m *systemMatrix, inputs map[string]float64) {
	p := s.el.Params
	switch s.el.Kind {
	case "resistor":
		g := 1 / p["r"]
		n1, n2 := s.node("1"), s.node("2")
		m.addElement(n1, n1, g)
		m.addElement(n2, n2, g)
		m.addElement(n1, n2, -g)
		m.addElement(n2, n1, -g)
	case "voltage_source", "voltage_input":
		v := p["v"]
		if s.el.Kind == "voltage_input" {
			v = inputs[s.name]
		}
		n1, n2, br := s.node("1"), s.node("2"), s.branch
		m.addElement(n1, br, 1)
		m.addElement(n2, br, -1)
		m.addElement(br, n1, 1)
		m.addElement(br, n2, -1)
		m.addRHS(br, v)
	case "current_probe":
		n1, n2, br := s.node("1"), s.node("2"), s.branch
		m.addElement(n1, br, 1)
		m.addElement(n2, br, -1)
		m.addElement(br, n1, 1)
		m.addElement(br, n2, -1)
	case "current_source", "current_input":
		i := p["i"]
		if s.el.Kind == "current_input" {
			i = inputs[s.name]
		}
		// current i leaves the positive pin
		m.addRHS(s.node("1"), i)
		m.addRHS(s.node("2"), -i)
	case "voltage_probe":
		// open branch, nothing to stamp
	case "diode":
		vt := consts.ThermalVoltage(p["temp"]) * p["n"]
		is := p["is"]
		vd := s.v1
		ex := math.Exp(vd / vt)
		id := is * (ex - 1)
		gd := is / vt * ex
		ieq := id - gd*vd
		n1, n2 := s.node("1"), s.node("2")
		m.addElement(n1, n1, gd)
		m.addElement(n2, n2, gd)
		m.addElement(n1, n2, -gd)
		m.addElement(n2, n1, -gd)
		m.addRHS(n1, -ieq)
		m.addRHS(n2, ieq)
	case "bjt":
		s.stampBJT(m)
	}
}

// stampBJT loads the Ebers-Moll companion model: two coupled junction
// currents linearized at the previous base-emitter and base-collector
// voltages.
func (s *stampEl) stampBJT(m *systemMatrix) {
	p := s.el.Params
	pol := p["polarity"]
	vt := consts.ThermalVoltage(p["temp"])
	alphaF := p["betaf"] / (1 + p["betaf"])
	alphaR := p["betar"] / (1 + p["betar"])
	nevt, ncvt := p["ne"]*vt, p["nc"]*vt

	vbe, vbc := s.v1, s.v2
	expE := math.Exp(pol * vbe / nevt)
	expC := math.Exp(pol * vbc / ncvt)
	// junction quantities and branch currents (through the polarity)
	iEq := p["ise"]*(expE-1) - alphaR*p["isc"]*(expC-1)
	iCq := -alphaF*p["ise"]*(expE-1) + p["isc"]*(expC-1)
	iE, iC := pol*iEq, pol*iCq

	// conductances with respect to vbe and vbc
	gee := p["ise"] / nevt * expE
	gec := -alphaR * p["isc"] / ncvt * expC
	gce := -alphaF * p["ise"] / nevt * expE
	gcc := p["isc"] / ncvt * expC

	nb, ne, nc := s.node("base"), s.node("emitter"), s.node("collector")

	// branch base->emitter: current iE with dI/dvbe = gee, dI/dvbc = gec
	stampVCCS := func(from, to int, g1, g2, i0, v1, v2 float64) {
		// current from->to, controlled by (base-emitter, base-collector)
		m.addElement(from, nb, g1+g2)
		m.addElement(from, ne, -g1)
		m.addElement(from, nc, -g2)
		m.addElement(to, nb, -(g1 + g2))
		m.addElement(to, ne, g1)
		m.addElement(to, nc, g2)
		ieq := i0 - g1*v1 - g2*v2
		m.addRHS(from, -ieq)
		m.addRHS(to, ieq)
	}
	stampVCCS(nb, ne, gee, gec, iE, vbe, vbc)
	stampVCCS(nb, nc, gce, gcc, iC, vbe, vbc)
}

func (s *stampEl) updateLinearization(m *systemMatrix) {
	switch s.el.Kind {
	case "diode":
		s.v1 = clampJunction(m.at(s.node("1"))-m.at(s.node("2")), s.v1)
	case "bjt":
		nb, ne, nc := s.node("base"), s.node("emitter"), s.node("collector")
		s.v1 = clampJunction(m.at(nb)-m.at(ne), s.v1)
		s.v2 = clampJunction(m.at(nb)-m.at(nc), s.v2)
	}
}

// clampJunction limits the per-iteration junction voltage step, the standard
// damping that keeps the exponential from overflowing.
func clampJunction(vnew, vold float64) float64 {
	const vmax = 0.3
	if vnew > vold+vmax {
		return vold + vmax
	}
	if vnew < vold-vmax {
		return vold - vmax
	}
	return vnew
}
