package device

import (
	"fmt"

	"statespice/pkg/ratmat"
)

func mat1(v float64) *ratmat.Matrix {
	m := ratmat.New(1, 1)
	m.Set(0, 0, ratmat.FromFloat(v))
	return m
}

// Resistor models v = r*i.
func Resistor(r float64) *Element {
	e := &Element{
		Kind:   "resistor",
		Mv:     mat1(1),
		Mi:     mat1(-r),
		Pins:   twoPins(),
		Params: map[string]float64{"r": r},
	}
	return newElement(e, 1, 1, 0, 0, 0, 0)
}

// Capacitor carries its charge as the state: x = c*v, i = ẋ.
func Capacitor(c float64) *Element {
	mv := ratmat.New(2, 1)
	mv.Set(0, 0, ratmat.FromFloat(-c))
	mi := ratmat.New(2, 1)
	mi.SetInt(1, 0, 1)
	mx := ratmat.New(2, 1)
	mx.SetInt(0, 0, 1)
	mxd := ratmat.New(2, 1)
	mxd.SetInt(1, 0, -1)
	e := &Element{
		Kind:   "capacitor",
		Mv:     mv,
		Mi:     mi,
		Mx:     mx,
		Mxd:    mxd,
		Pins:   twoPins(),
		Params: map[string]float64{"c": c},
	}
	return newElement(e, 2, 1, 1, 0, 0, 0)
}

// Inductor carries its flux as the state: x = l*i, v = ẋ.
func Inductor(l float64) *Element {
	mi := ratmat.New(2, 1)
	mi.Set(0, 0, ratmat.FromFloat(-l))
	mv := ratmat.New(2, 1)
	mv.SetInt(1, 0, 1)
	mx := ratmat.New(2, 1)
	mx.SetInt(0, 0, 1)
	mxd := ratmat.New(2, 1)
	mxd.SetInt(1, 0, -1)
	e := &Element{
		Kind:   "inductor",
		Mv:     mv,
		Mi:     mi,
		Mx:     mx,
		Mxd:    mxd,
		Pins:   twoPins(),
		Params: map[string]float64{"l": l},
	}
	return newElement(e, 2, 1, 1, 0, 0, 0)
}

// VoltageSource fixes the branch voltage to v.
func VoltageSource(v float64) *Element {
	e := &Element{
		Kind:   "voltage_source",
		Mv:     mat1(1),
		U0:     mat1(-v),
		Pins:   twoPins(),
		Params: map[string]float64{"v": v},
	}
	return newElement(e, 1, 1, 0, 0, 0, 0)
}

// CurrentSource drives the current i out of its positive pin into the
// external circuit.
func CurrentSource(i float64) *Element {
	e := &Element{
		Kind:   "current_source",
		Mi:     mat1(1),
		U0:     mat1(i),
		Pins:   twoPins(),
		Params: map[string]float64{"i": i},
	}
	return newElement(e, 1, 1, 0, 0, 0, 0)
}

// VoltageInput drives the branch voltage from one input channel.
func VoltageInput() *Element {
	e := &Element{
		Kind:   "voltage_input",
		Mv:     mat1(1),
		Mu:     mat1(-1),
		Pins:   twoPins(),
		Params: map[string]float64{},
	}
	return newElement(e, 1, 1, 0, 0, 1, 0)
}

// CurrentInput drives the input-channel current out of its positive pin.
func CurrentInput() *Element {
	e := &Element{
		Kind:   "current_input",
		Mi:     mat1(1),
		Mu:     mat1(1),
		Pins:   twoPins(),
		Params: map[string]float64{},
	}
	return newElement(e, 1, 1, 0, 0, 1, 0)
}

// VoltageProbe is an open branch whose voltage is an output channel.
func VoltageProbe() *Element {
	e := &Element{
		Kind:   "voltage_probe",
		Mi:     mat1(1),
		Pv:     mat1(1),
		Pins:   twoPins(),
		Params: map[string]float64{},
	}
	return newElement(e, 1, 1, 0, 0, 0, 1)
}

// CurrentProbe is a short branch whose current is an output channel.
func CurrentProbe() *Element {
	e := &Element{
		Kind:   "current_probe",
		Mv:     mat1(1),
		Pi:     mat1(1),
		Pins:   twoPins(),
		Params: map[string]float64{},
	}
	return newElement(e, 1, 1, 0, 0, 0, 1)
}

// OpAmp is the ideal operational amplifier: no input current, zero input
// voltage, output branch unconstrained.
func OpAmp() *Element {
	mv := ratmat.New(2, 2)
	mv.SetInt(0, 0, 1)
	mi := ratmat.New(2, 2)
	mi.SetInt(1, 0, 1)
	e := &Element{
		Kind: "opamp",
		Mv:   mv,
		Mi:   mi,
		Pins: []Pin{
			{Name: "in+", Terms: []Terminal{{Branch: 0, Polarity: 1}}},
			{Name: "in-", Terms: []Terminal{{Branch: 0, Polarity: -1}}},
			{Name: "out+", Terms: []Terminal{{Branch: 1, Polarity: 1}}},
			{Name: "out-", Terms: []Terminal{{Branch: 1, Polarity: -1}}},
		},
		Params: map[string]float64{},
	}
	return newElement(e, 2, 2, 0, 0, 0, 0)
}

// mustPositive guards constructor parameters that scale matrix entries.
func mustPositive(kind, name string, v float64) {
	if v <= 0 {
		panic(fmt.Sprintf("device: %s requires %s > 0, got %g", kind, name, v))
	}
}
