package netlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statespice/pkg/model"
)

const clipperYAML = `
name: diode clipper
elements:
  - name: vin
    kind: voltage_input
    nodes: [in, gnd]
  - name: r1
    kind: resistor
    params: {r: 10e3}
    nodes: [in, clip]
  - name: d1
    kind: diode
    params: {is: 1e-12}
    nodes: [clip, gnd]
  - name: out
    kind: voltage_probe
    nodes: [clip, gnd]
`

func TestParseAndBuild(t *testing.T) {
	n, err := Parse([]byte(clipperYAML))
	require.NoError(t, err)
	require.Equal(t, "diode clipper", n.Name)
	require.Len(t, n.Elements, 4)

	c, err := n.Build()
	require.NoError(t, err)
	require.Equal(t, 1, c.NU())
	require.Equal(t, 1, c.NY())
	require.Equal(t, 1, c.NN())

	m, err := model.Compile(c, 1.0/44100, nil)
	require.NoError(t, err)
	require.Equal(t, 1, m.NumSubproblems())
}

func TestBuildErrors(t *testing.T) {
	cases := []string{
		// unknown kind
		"elements: [{name: x, kind: frobnicator, nodes: [a, b]}]",
		// missing parameter
		"elements: [{name: r, kind: resistor, nodes: [a, b]}]",
		// wrong node count
		"elements: [{name: r, kind: resistor, params: {r: 1}, nodes: [a]}]",
		// duplicate names
		`elements:
  - {name: r, kind: resistor, params: {r: 1}, nodes: [a, b]}
  - {name: r, kind: resistor, params: {r: 1}, nodes: [a, b]}`,
		// bad bjt model
		"elements: [{name: q, kind: bjt, model: mosfet, nodes: [a, b, c]}]",
	}
	for _, src := range cases {
		n, err := Parse([]byte(src))
		if err != nil {
			continue
		}
		_, err = n.Build()
		assert.Error(t, err, src)
	}
}

func TestParseRejectsEmpty(t *testing.T) {
	_, err := Parse([]byte("name: nothing"))
	assert.Error(t, err)
}
