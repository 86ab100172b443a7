package engine_test

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-dsp/measure/thd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/pedalsim/internal/consts"
	"github.com/edp1096/pedalsim/pkg/circuit"
	"github.com/edp1096/pedalsim/pkg/engine"
	"github.com/edp1096/pedalsim/pkg/parser"
)

const diodeClipperNetlist = `
.model clip D(is=1e-9 n=1.8 vf=0.3)
.input in
.output out
V_IN in 0 AC
R1 in out 4.7k
D1 out 0 clip
D2 0 out clip
`

func sineSamples(n int, freq, amplitude, sampleRate float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/sampleRate)
	}
	return out
}

func runSimulator(t *testing.T, src string, input []float64) []float64 {
	t.Helper()
	desc, err := parser.Parse(src)
	require.NoError(t, err)
	c, err := circuit.Build(desc)
	require.NoError(t, err)
	sim, err := engine.New(c, testSampleRate)
	require.NoError(t, err)

	out := make([]float64, len(input))
	for i, x := range input {
		sim.SetInput(float32(x))
		out[i] = float64(sim.Step())
	}
	return out
}

// diodeClipperRoom is the junction temperature nonlinear.go assumes;
// duplicated here (rather than imported, since it's unexported) so
// this test's independent reference solve uses the same physics.
const diodeClipperRoom = 300.0

// diodeClipperSteadyState independently solves the clipper's exact KCL
// equation at a held input voltage, with no dependency on
// pkg/engine's own stamping code: with R1 from "in" to "out" and two
// antiparallel diodes from "out" to ground, the node equation is
//
//	(vin-v)/r = Is*(exp(v/nVt)-1) - Is*(exp(-v/nVt)-1) = 2*Is*sinh(v/nVt)
//
// solved by bisection, since the right-hand side is monotonic in v.
// This is the ground truth TestDiodeClipperPeak checks the Newton
// driver converges to, rather than an eyeballed "clips somewhere
// below X" bound that a subtly wrong linearization could still pass.
func diodeClipperSteadyState(vin, r, is, n float64) float64 {
	nVt := n * consts.BOLTZMANN * diodeClipperRoom / consts.CHARGE
	f := func(v float64) float64 {
		return (vin-v)/r - 2*is*math.Sinh(v/nVt)
	}
	lo, hi := 0.0, vin
	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		if f(mid) > 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// TestDiodeClipperPeak: a 1kHz, 1.0V sine through a
// 4.7k/anti-parallel-diode clipper peaks at sample 12 (a quarter
// period at 48kHz, where the sine hits exactly 1.0V) and the Newton
// driver must converge there to the circuit's true steady-state
// clipping voltage, not merely "below 1.0V".
func TestDiodeClipperPeak(t *testing.T) {
	input := sineSamples(48, 1000, 1.0, testSampleRate)
	out := runSimulator(t, diodeClipperNetlist, input)

	const peakSample = 12
	want := diodeClipperSteadyState(1.0, 4700, 1e-9, 1.8)
	assert.InDelta(t, want, out[peakSample], 1e-3,
		"Newton driver should converge to the clipper's true steady-state voltage at the sine's peak")
	assert.Less(t, want, 0.9, "the clipper must still visibly compress the 1.0V swing")

	peak := 0.0
	for _, v := range out {
		if math.Abs(v) > peak {
			peak = math.Abs(v)
		}
	}
	assert.InDelta(t, want, peak, 1e-3, "no other sample should exceed the sine's own peak")
}

// TestDiodeClipperRaisesTHD runs a longer capture through the same
// clipper and confirms the harmonic content a clean sine wouldn't have
// is clearly present: clipping a sine necessarily injects odd
// harmonics.
func TestDiodeClipperRaisesTHD(t *testing.T) {
	const n = 4096
	input := sineSamples(n, 1000, 1.0, testSampleRate)
	clipped := runSimulator(t, diodeClipperNetlist, input)

	cfg := thd.Config{
		SampleRate:      testSampleRate,
		FundamentalFreq: 1000,
	}
	clippedResult := thd.AnalyzeSignal(clipped, cfg)
	cleanResult := thd.AnalyzeSignal(input, cfg)

	assert.Greater(t, clippedResult.THD, cleanResult.THD,
		"a clipped sine must carry more harmonic distortion than the clean source")
	assert.Greater(t, clippedResult.THD, 0.02, "clipping should be clearly measurable, not a rounding artifact")
}
