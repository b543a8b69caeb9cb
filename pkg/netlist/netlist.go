// Package netlist loads circuit descriptions from YAML. A description names
// its elements by kind with a parameter map and binds each element's pins,
// in declaration order, to named nets.
package netlist

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"statespice/pkg/circuit"
	"statespice/pkg/device"
)

// ElementSpec is one element entry of a netlist file.
type ElementSpec struct {
	Name   string             `yaml:"name"`
	Kind   string             `yaml:"kind"`
	Model  string             `yaml:"model,omitempty"`
	Params map[string]float64 `yaml:"params,omitempty"`
	Nodes  []string           `yaml:"nodes"`
}

// Netlist is a parsed circuit description.
type Netlist struct {
	Name     string        `yaml:"name"`
	Elements []ElementSpec `yaml:"elements"`
}

// Parse decodes a YAML netlist.
func Parse(data []byte) (*Netlist, error) {
	var n Netlist
	if err := yaml.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("netlist: %w", err)
	}
	if len(n.Elements) == 0 {
		return nil, fmt.Errorf("netlist: no elements")
	}
	return &n, nil
}

// Load reads and decodes a YAML netlist file.
func Load(path string) (*Netlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("netlist: %w", err)
	}
	return Parse(data)
}

// Build instantiates the described circuit.
func (n *Netlist) Build() (*circuit.Circuit, error) {
	c := circuit.New()
	for _, spec := range n.Elements {
		el, err := makeElement(spec)
		if err != nil {
			return nil, err
		}
		if err := c.Add(spec.Name, el); err != nil {
			return nil, err
		}
		pins := el.PinNames()
		if len(spec.Nodes) != len(pins) {
			return nil, fmt.Errorf("netlist: element %q (%s) has %d pins but %d nodes",
				spec.Name, spec.Kind, len(pins), len(spec.Nodes))
		}
		for i, node := range spec.Nodes {
			if err := c.Connect(node, circuit.PinRef{Element: spec.Name, Pin: pins[i]}); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

func makeElement(spec ElementSpec) (*device.Element, error) {
	p := func(key string, def float64) float64 {
		if v, ok := spec.Params[key]; ok {
			return v
		}
		return def
	}
	need := func(key string) (float64, error) {
		v, ok := spec.Params[key]
		if !ok {
			return 0, fmt.Errorf("netlist: element %q (%s) needs parameter %q", spec.Name, spec.Kind, key)
		}
		return v, nil
	}

	switch spec.Kind {
	case "resistor":
		r, err := need("r")
		if err != nil {
			return nil, err
		}
		return device.Resistor(r), nil
	case "capacitor":
		c, err := need("c")
		if err != nil {
			return nil, err
		}
		return device.Capacitor(c), nil
	case "inductor":
		l, err := need("l")
		if err != nil {
			return nil, err
		}
		return device.Inductor(l), nil
	case "voltage_source":
		v, err := need("v")
		if err != nil {
			return nil, err
		}
		return device.VoltageSource(v), nil
	case "current_source":
		i, err := need("i")
		if err != nil {
			return nil, err
		}
		return device.CurrentSource(i), nil
	case "voltage_input":
		return device.VoltageInput(), nil
	case "current_input":
		return device.CurrentInput(), nil
	case "voltage_probe":
		return device.VoltageProbe(), nil
	case "current_probe":
		return device.CurrentProbe(), nil
	case "opamp":
		return device.OpAmp(), nil
	case "diode":
		dp := device.DefaultDiode()
		dp.Is = p("is", dp.Is)
		dp.N = p("n", dp.N)
		dp.Temp = p("temp", dp.Temp)
		return device.Diode(dp), nil
	case "bjt":
		pol := 0
		switch spec.Model {
		case "npn", "":
			pol = 1
		case "pnp":
			pol = -1
		default:
			return nil, fmt.Errorf("netlist: element %q: unknown bjt model %q", spec.Name, spec.Model)
		}
		bp := device.DefaultBJT()
		bp.IsE = p("ise", p("is", bp.IsE))
		bp.IsC = p("isc", p("is", bp.IsC))
		bp.NE = p("ne", bp.NE)
		bp.NC = p("nc", bp.NC)
		bp.BetaF = p("betaf", bp.BetaF)
		bp.BetaR = p("betar", bp.BetaR)
		bp.Temp = p("temp", bp.Temp)
		return device.BJT(pol, bp), nil
	default:
		return nil, fmt.Errorf("netlist: element %q has unknown kind %q", spec.Name, spec.Kind)
	}
}
