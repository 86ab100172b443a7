package engine_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/pedalsim/pkg/circuit"
	"github.com/edp1096/pedalsim/pkg/engine"
	"github.com/edp1096/pedalsim/pkg/parser"
)

const testSampleRate = 48000.0

func buildFromNetlist(t *testing.T, src string) *engine.Simulator {
	t.Helper()
	desc, err := parser.Parse(src)
	require.NoError(t, err)
	c, err := circuit.Build(desc)
	require.NoError(t, err)
	sim, err := engine.New(c, testSampleRate)
	require.NoError(t, err)
	return sim
}

const voltageDividerNetlist = `
.input in
.output out
V_IN in 0 AC
R1 in out 10k
R2 out 0 10k
`

// TestVoltageDividerImpulse: a pure resistive divider settles to its
// ratio on the very first sample.
func TestVoltageDividerImpulse(t *testing.T) {
	sim := buildFromNetlist(t, voltageDividerNetlist)
	sim.SetInput(1.0)
	y := sim.Step()
	assert.InDelta(t, 0.5, y, 1e-6)
}

// TestVoltageDividerHeldDC: the same divider driven by a constant
// 0.3V for 10 samples settles immediately and stays put.
func TestVoltageDividerHeldDC(t *testing.T) {
	sim := buildFromNetlist(t, voltageDividerNetlist)
	var y float32
	for i := 0; i < 10; i++ {
		sim.SetInput(0.3)
		y = sim.Step()
	}
	assert.InDelta(t, 0.15, y, 1e-6)
}

// TestRCLowpassStepResponse: a unit step into a 1k/100n RC lowpass
// held for 1000 samples at 48kHz (~208 time constants) should have
// converged to within a millivolt of the input.
func TestRCLowpassStepResponse(t *testing.T) {
	sim := buildFromNetlist(t, `
.input in
.output out
V_IN in 0 AC
R1 in out 1k
C1 out 0 100n
`)
	var y float32
	for i := 0; i < 1000; i++ {
		sim.SetInput(1.0)
		y = sim.Step()
	}
	assert.GreaterOrEqual(t, float64(y), 0.999)
	assert.LessOrEqual(t, float64(y), 1.000001)
}

// TestInCircuitDelayImpulse: an in-circuit 10ms delay line on a
// circuit with no electrical path between input and output still
// reproduces the impulse near the nominal delay offset, attenuated by
// nothing (feedback=0, mix=1) and silent everywhere else.
func TestInCircuitDelayImpulse(t *testing.T) {
	sim := buildFromNetlist(t, `
.input in
.output out
V_IN in 0 AC
DELAY d1 in out 10m mix=1.0 feedback=0.0
`)

	const total = 600
	out := make([]float64, total)
	for i := 0; i < total; i++ {
		if i == 0 {
			sim.SetInput(1.0)
		} else {
			sim.SetInput(0.0)
		}
		out[i] = float64(sim.Step())
	}

	peakIdx, peakVal := 0, 0.0
	for i, v := range out {
		if math.Abs(v) > math.Abs(peakVal) {
			peakIdx, peakVal = i, v
		}
	}

	const nominalDelaySamples = 480 // 10ms @ 48kHz
	assert.InDelta(t, nominalDelaySamples, peakIdx, 2,
		"impulse should resurface within a sample or two of the nominal delay time")
	assert.InDelta(t, 1.0, peakVal, 1e-6)

	for i, v := range out {
		if i == peakIdx {
			continue
		}
		assert.Less(t, math.Abs(v), 1e-9, "sample %d should be silent", i)
	}
}

// TestLFOModulatedDividerOscillates: a resistor whose value is swept
// by a 1Hz LFO produces a periodic, bounded, NaN-free output even
// though the drive voltage itself never changes.
func TestLFOModulatedDividerOscillates(t *testing.T) {
	sim := buildFromNetlist(t, `
.input in
.output out
V_IN in 0 AC
LFO lfo1 1 sine
R1 in out 10k MOD lfo1 depth=0.5 range=2.0
R2 out 0 10k
`)

	const period = int(testSampleRate) // 1Hz at 48kHz
	const cycles = 2
	out := make([]float64, period*cycles)
	for i := range out {
		sim.SetInput(1.0)
		out[i] = float64(sim.Step())
	}

	minV, maxV := out[0], out[0]
	for _, v := range out {
		require.False(t, math.IsNaN(v) || math.IsInf(v, 0), "output must never be NaN or Inf")
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}

	// R1Eff ranges over [10k, 20k] against a fixed 10k R2, so the
	// divider output ranges over [1/3, 1/2].
	assert.InDelta(t, 1.0/3, minV, 5e-3)
	assert.InDelta(t, 1.0/2, maxV, 5e-3)
	assert.Greater(t, maxV-minV, 0.1, "output should visibly oscillate")

	// No capacitor or other memory element sits in this circuit, so
	// the output at any sample depends only on the LFO phase: it must
	// repeat exactly one period later.
	for i := 0; i < period; i += 997 {
		assert.InDelta(t, out[i], out[i+period], 1e-9)
	}
}
