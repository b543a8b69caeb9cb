package main

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"statespice/pkg/model"
	"statespice/pkg/netlist"
	"statespice/pkg/nodal"
	"statespice/pkg/solver"
	"statespice/pkg/util"
)

var (
	netlistPath string
	sampleRate  float64
	freq        float64
	amp         float64
	duration    float64
	signalKind  string
	pngPath     string
	noGraph     bool
	showProg    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "statespice",
		Short: "compile analog circuits into state-space simulators",
	}
	rootCmd.PersistentFlags().StringVar(&netlistPath, "netlist", "", "YAML netlist file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "simulate a netlist against a generated signal",
		RunE:  runSimulation,
	}
	runCmd.Flags().Float64Var(&sampleRate, "rate", 44100, "sample rate (Hz)")
	runCmd.Flags().Float64Var(&freq, "freq", 1000, "signal frequency (Hz)")
	runCmd.Flags().Float64Var(&amp, "amp", 1, "signal amplitude")
	runCmd.Flags().Float64Var(&duration, "time", 0.1, "simulated time (s)")
	runCmd.Flags().StringVar(&signalKind, "signal", "sine", "input signal: sine or step")
	runCmd.Flags().StringVar(&pngPath, "png", "", "write the output waveform to a PNG file")
	runCmd.Flags().BoolVar(&noGraph, "no-graph", false, "skip the terminal waveform")
	runCmd.Flags().BoolVar(&showProg, "progress", false, "print simulation progress")

	opCmd := &cobra.Command{
		Use:   "op",
		Short: "nodal DC operating point of the netlist",
		RunE:  runOperatingPoint,
	}

	steadyCmd := &cobra.Command{
		Use:   "steady",
		Short: "steady state of the compiled model at zero input",
		RunE:  runSteadyState,
	}
	steadyCmd.Flags().Float64Var(&sampleRate, "rate", 44100, "sample rate (Hz)")

	rootCmd.AddCommand(runCmd, opCmd, steadyCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadCircuit() (*netlist.Netlist, *model.DiscreteModel, error) {
	if netlistPath == "" {
		return nil, nil, fmt.Errorf("--netlist is required")
	}
	nl, err := netlist.Load(netlistPath)
	if err != nil {
		return nil, nil, err
	}
	circ, err := nl.Build()
	if err != nil {
		return nil, nil, err
	}
	m, err := model.Compile(circ, 1/sampleRate, solver.NewHomotopyCachingSimple)
	if err != nil {
		return nil, nil, err
	}
	return nl, m, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	nl, m, err := loadCircuit()
	if err != nil {
		return err
	}
	n := int(duration * sampleRate)
	if n <= 0 {
		return fmt.Errorf("nothing to simulate: time %gs at %g Hz", duration, sampleRate)
	}

	u := make([][]float64, m.NU())
	for ch := range u {
		u[ch] = make([]float64, n)
		for i := 0; i < n; i++ {
			switch signalKind {
			case "sine":
				u[ch][i] = amp * math.Sin(2*math.Pi*freq*float64(i)/sampleRate)
			case "step":
				u[ch][i] = amp
			default:
				return fmt.Errorf("unknown signal %q", signalKind)
			}
		}
	}

	runner := model.NewRunner(m, showProg)
	y, err := runner.Run(u, n)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d samples at %s, %d outputs\n",
		nl.Name, n, util.FormatFrequency(sampleRate), m.NY())
	if m.NY() == 0 {
		return nil
	}

	if !noGraph {
		window := n
		if window > 441 {
			window = 441
		}
		graph := asciigraph.Plot(y[0][n-window:],
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption("output 0, last samples"))
		fmt.Println(graph)
	}
	if pngPath != "" {
		if err := writePNG(pngPath, y[0], sampleRate); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", pngPath)
	}
	return nil
}

func writePNG(path string, y []float64, rate float64) error {
	p := plot.New()
	p.Title.Text = "simulated output"
	p.X.Label.Text = "t (s)"
	p.Y.Label.Text = "y"

	pts := make(plotter.XYs, len(y))
	for i, v := range y {
		pts[i].X = float64(i) / rate
		pts[i].Y = v
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	p.Add(line)
	return p.Save(8*vg.Inch, 3*vg.Inch, path)
}

func runOperatingPoint(cmd *cobra.Command, args []string) error {
	if netlistPath == "" {
		return fmt.Errorf("--netlist is required")
	}
	nl, err := netlist.Load(netlistPath)
	if err != nil {
		return err
	}
	circ, err := nl.Build()
	if err != nil {
		return err
	}
	res, err := nodal.OperatingPoint(circ, nil)
	if err != nil {
		return err
	}

	fmt.Printf("%s: DC operating point\n", nl.Name)
	for _, k := range sortedKeys(res.NodeVoltages) {
		fmt.Printf("  %-12s %s\n", k, util.FormatValueFactor(res.NodeVoltages[k], "V"))
	}
	for _, k := range sortedKeys(res.BranchCurrents) {
		fmt.Printf("  %-12s %s\n", k, util.FormatValueFactor(res.BranchCurrents[k], "A"))
	}
	return nil
}

func runSteadyState(cmd *cobra.Command, args []string) error {
	nl, m, err := loadCircuit()
	if err != nil {
		return err
	}
	xs, err := m.SteadyState(nil)
	if err != nil {
		return err
	}
	fmt.Printf("%s: steady state, %d state variables\n", nl.Name, len(xs))
	for i, v := range xs {
		fmt.Printf("  x[%d] = %g\n", i, v)
	}
	return nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
