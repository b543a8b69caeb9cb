package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statespice/pkg/circuit"
	"statespice/pkg/device"
	"statespice/pkg/solver"
)

// buildClipper is the diode clipper: series resistor into a diode/capacitor
// shunt, probed at the diode.
func buildClipper(t testing.TB) *circuit.Circuit {
	t.Helper()
	c := circuit.New()
	mustAdd(t, c, "vin", device.VoltageInput())
	mustAdd(t, c, "r1", device.Resistor(10e3))
	mustAdd(t, c, "c1", device.Capacitor(1e-9))
	mustAdd(t, c, "d1", device.Diode(device.DefaultDiode()))
	mustAdd(t, c, "out", device.VoltageProbe())
	connect(t, c, "in", pin("vin", "1"), pin("r1", "1"))
	connect(t, c, "clip", pin("r1", "2"), pin("c1", "1"), pin("d1", "1"), pin("out", "1"))
	connect(t, c, "gnd", pin("vin", "2"), pin("c1", "2"), pin("d1", "2"), pin("out", "2"))
	return c
}

func sineInput(n int) [][]float64 {
	u := [][]float64{make([]float64, n)}
	for i := 0; i < n; i++ {
		u[0][i] = math.Sin(2 * math.Pi * 1000 * float64(i) / 44100)
	}
	return u
}

func TestDiodeClipper(t *testing.T) {
	m, err := Compile(buildClipper(t), 1.0/44100, nil)
	require.NoError(t, err)
	require.Equal(t, 1, m.NX())
	require.Equal(t, 1, m.NumSubproblems())

	n := 44100
	u := sineInput(n)
	run := NewRunner(m, false)
	y, err := run.Run(u, n)
	require.NoError(t, err)
	require.Len(t, y, 1)
	require.Len(t, y[0], n)

	maxY, minY := y[0][0], y[0][0]
	for _, v := range y[0] {
		maxY = math.Max(maxY, v)
		minY = math.Min(minY, v)
	}
	assert.Less(t, maxY, 0.75, "positive half wave is clipped at the diode knee")
	assert.Greater(t, maxY, 0.3)
	assert.Less(t, minY, -0.8, "negative half wave passes")

	// after a full second the response is periodic: compare the last 200
	// samples against the samples ten 1 kHz periods (441 samples) earlier
	for i := 0; i < 200; i++ {
		a := y[0][n-1-i]
		b := y[0][n-1-441-i]
		assert.InDelta(t, a, b, 1e-6)
	}
}

func TestRunnerShapeChecks(t *testing.T) {
	m, err := Compile(buildClipper(t), 1.0/44100, nil)
	require.NoError(t, err)
	run := NewRunner(m, false)

	_, err = run.Run([][]float64{}, 8)
	assert.Error(t, err, "missing input channel")

	_, err = run.Run([][]float64{make([]float64, 4)}, 8)
	assert.Error(t, err, "short input row")

	y := [][]float64{make([]float64, 8), make([]float64, 8)}
	err = run.RunInto(y, [][]float64{make([]float64, 8)}, 8)
	assert.Error(t, err, "wrong output channel count")
}

func TestSteadyStateInstallIsFixedPoint(t *testing.T) {
	c := circuit.New()
	mustAdd(t, c, "src", device.VoltageSource(1))
	mustAdd(t, c, "r", device.Resistor(1e3))
	mustAdd(t, c, "c", device.Capacitor(1e-6))
	mustAdd(t, c, "d", device.Diode(device.DefaultDiode()))
	mustAdd(t, c, "out", device.VoltageProbe())
	connect(t, c, "in", pin("src", "1"), pin("r", "1"))
	connect(t, c, "o", pin("r", "2"), pin("c", "1"), pin("d", "1"), pin("out", "1"))
	connect(t, c, "gnd", pin("src", "2"), pin("c", "2"), pin("d", "2"), pin("out", "2"))

	m, err := Compile(c, 1.0/44100, nil)
	require.NoError(t, err)

	xs, err := m.SteadyStateInstall(nil)
	require.NoError(t, err)
	require.Len(t, xs, 1)

	run := NewRunner(m, false)
	_, err = run.Run(nil, 1)
	require.NoError(t, err)

	after := m.State()
	for i := range xs {
		assert.InDelta(t, xs[i], after[i], 1e-10, "one zero-input sample leaves the steady state in place")
	}
}

func TestRunIsAllocationFreeAfterWarmup(t *testing.T) {
	m, err := Compile(buildClipper(t), 1.0/44100, solver.NewHomotopySimple)
	require.NoError(t, err)
	run := NewRunner(m, false)

	n := 256
	u := sineInput(n)
	y := [][]float64{make([]float64, n)}
	require.NoError(t, run.RunInto(y, u, n)) // warm up

	allocs := testing.AllocsPerRun(10, func() {
		if err := run.RunInto(y, u, n); err != nil {
			t.Fatal(err)
		}
	})
	assert.Zero(t, allocs, "the per-sample loop must not allocate")
}

func BenchmarkClipperSample(b *testing.B) {
	m, err := Compile(buildClipper(b), 1.0/44100, solver.NewHomotopyCachingSimple)
	if err != nil {
		b.Fatal(err)
	}
	run := NewRunner(m, false)
	n := 4410
	u := sineInput(n)
	y := [][]float64{make([]float64, n)}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := run.RunInto(y, u, n); err != nil {
			b.Fatal(err)
		}
	}
}
