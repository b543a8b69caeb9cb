package device

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"statespice/internal/consts"
	"statespice/pkg/ratmat"
)

// DiodeParams hold the Shockley model parameters.
type DiodeParams struct {
	Is   float64 // saturation current
	N    float64 // emission coefficient
	Temp float64 // junction temperature (K)
}

// DefaultDiode returns the parameter defaults.
func DefaultDiode() DiodeParams {
	return DiodeParams{Is: 1e-12, N: 1, Temp: consts.ROOMTEMP}
}

// Diode is the Shockley diode. Its quantities are q = (vd, id) and the
// single nonlinear equation is id = Is*(exp(vd/(N*vt)) - 1).
func Diode(p DiodeParams) *Element {
	if p.Is == 0 {
		p.Is = 1e-12
	}
	if p.N == 0 {
		p.N = 1
	}
	mustPositive("diode", "is", p.Is)
	mustPositive("diode", "n", p.N)
	vt := consts.ThermalVoltage(p.Temp)
	is, nvt := p.Is, p.N*vt

	mv := ratmat.New(2, 1)
	mv.SetInt(0, 0, 1)
	mi := ratmat.New(2, 1)
	mi.SetInt(1, 0, 1)
	mq := ratmat.New(2, 2)
	mq.SetInt(0, 0, -1)
	mq.SetInt(1, 1, -1)

	e := &Element{
		Kind: "diode",
		Mv:   mv,
		Mi:   mi,
		Mq:   mq,
		Pins: twoPins(),
		Nonlinear: func(q []float64, res []float64, jq *mat.Dense) {
			ex := math.Exp(q[0] / nvt)
			res[0] = q[1] - is*(ex-1)
			jq.Set(0, 0, -is/nvt*ex)
			jq.Set(0, 1, 1)
		},
		Params: map[string]float64{"is": is, "n": p.N, "temp": p.Temp},
	}
	return newElement(e, 2, 1, 0, 2, 0, 0)
}

// BJTParams hold the Ebers-Moll model parameters.
type BJTParams struct {
	IsE, IsC float64 // junction saturation currents
	NE, NC   float64 // junction emission coefficients
	BetaF    float64 // forward current gain
	BetaR    float64 // reverse current gain
	Temp     float64
}

// DefaultBJT returns the parameter defaults.
func DefaultBJT() BJTParams {
	return BJTParams{IsE: 1e-12, IsC: 1e-12, NE: 1, NC: 1, BetaF: 100, BetaR: 10, Temp: consts.ROOMTEMP}
}

// BJT is the Ebers-Moll bipolar transistor. Branch 1 runs base to emitter,
// branch 2 base to collector; polarity +1 builds an NPN, -1 a PNP. The
// quantities are q = (vE, vC, iE, iC), the junction voltages and branch
// currents seen through the polarity.
func BJT(polarity int, p BJTParams) *Element {
	if polarity != 1 && polarity != -1 {
		panic("device: bjt polarity must be +1 (npn) or -1 (pnp)")
	}
	d := DefaultBJT()
	if p.IsE == 0 {
		p.IsE = d.IsE
	}
	if p.IsC == 0 {
		p.IsC = d.IsC
	}
	if p.NE == 0 {
		p.NE = d.NE
	}
	if p.NC == 0 {
		p.NC = d.NC
	}
	if p.BetaF == 0 {
		p.BetaF = d.BetaF
	}
	if p.BetaR == 0 {
		p.BetaR = d.BetaR
	}
	mustPositive("bjt", "ise", p.IsE)
	mustPositive("bjt", "isc", p.IsC)
	vt := consts.ThermalVoltage(p.Temp)
	alphaF := p.BetaF / (1 + p.BetaF)
	alphaR := p.BetaR / (1 + p.BetaR)
	ise, isc := p.IsE, p.IsC
	nevt, ncvt := p.NE*vt, p.NC*vt

	pol := int64(polarity)
	mv := ratmat.New(4, 2)
	mv.SetInt(0, 0, pol)
	mv.SetInt(1, 1, pol)
	mi := ratmat.New(4, 2)
	mi.SetInt(2, 0, pol)
	mi.SetInt(3, 1, pol)
	mq := ratmat.New(4, 4)
	for k := 0; k < 4; k++ {
		mq.SetInt(k, k, -1)
	}

	e := &Element{
		Kind: "bjt",
		Mv:   mv,
		Mi:   mi,
		Mq:   mq,
		Pins: []Pin{
			{Name: "base", Terms: []Terminal{{Branch: 0, Polarity: 1}, {Branch: 1, Polarity: 1}}},
			{Name: "emitter", Terms: []Terminal{{Branch: 0, Polarity: -1}}},
			{Name: "collector", Terms: []Terminal{{Branch: 1, Polarity: -1}}},
		},
		Nonlinear: func(q []float64, res []float64, jq *mat.Dense) {
			expE := math.Exp(q[0] / nevt)
			expC := math.Exp(q[1] / ncvt)
			res[0] = ise*(expE-1) - alphaR*isc*(expC-1) - q[2]
			res[1] = -alphaF*ise*(expE-1) + isc*(expC-1) - q[3]
			jq.Set(0, 0, ise/nevt*expE)
			jq.Set(0, 1, -alphaR*isc/ncvt*expC)
			jq.Set(0, 2, -1)
			jq.Set(0, 3, 0)
			jq.Set(1, 0, -alphaF*ise/nevt*expE)
			jq.Set(1, 1, isc/ncvt*expC)
			jq.Set(1, 2, 0)
			jq.Set(1, 3, -1)
		},
		Params: map[string]float64{
			"polarity": float64(polarity),
			"ise":      ise, "isc": isc,
			"ne": p.NE, "nc": p.NC,
			"betaf": p.BetaF, "betar": p.BetaR,
			"temp": p.Temp,
		},
	}
	return newElement(e, 4, 2, 0, 4, 0, 0)
}
