package circuit

import "github.com/edp1096/pedalsim/pkg/circuitdesc"

// This file holds the closed set of resolved component variants.
// Node names have been resolved to integer ids and models to indices
// by Build; the engine package dispatches over these slices directly
// rather than through an interface, so the hot per-sample loop never
// pays for a vtable call.

// Resistor is a two-terminal conductance, optionally LFO-modulated.
type Resistor struct {
	Name     string
	P, N     int
	RBase    float64
	Mod      *ResistorMod
	REff     float64 // recomputed each sample by the modulation updater
}

// ResistorMod binds a resistor's effective value to an LFO output.
type ResistorMod struct {
	LFOIndex int
	Depth    float64
	Range    float64
}

// Capacitor is a two-terminal reactive element discretized with a
// trapezoidal companion model.
type Capacitor struct {
	Name   string
	P, N   int
	C      float64
	VPrev  float64
	IPrev  float64
}

// Inductor is a two-terminal reactive element with a branch current
// unknown, discretized in the current-state companion formulation.
type Inductor struct {
	Name      string
	P, N      int
	L         float64
	Branch    int
	IPrev     float64
	VPrev     float64
}

// VoltageSource defines a branch equation V(p) - V(n) = Value. DC
// sources hold a fixed Value; AC sources have their Value assigned
// externally every sample (Simulator.SetInput for V_IN).
type VoltageSource struct {
	Name   string
	P, N   int
	Branch int
	Mode   circuitdesc.SourceMode
	Value  float64
}

// CurrentSource injects a fixed current from P to N.
type CurrentSource struct {
	Name string
	P, N int
	I    float64
}

// Diode is a Shockley-model two-terminal nonlinear device. VPrevIter
// is the Newton warm-start state, scoped to the Simulator.
type Diode struct {
	Name       string
	Anode, Cat int
	Model      int
	VPrevIter  float64
}

// BJT is an Ebers-Moll bipolar junction transistor.
type BJT struct {
	Name                 string
	C, B, E              int
	Model                int
	PNP                  bool
	VBEPrevIter          float64
	VBCPrevIter          float64
}

// OpAmp is a three-node op-amp with an auxiliary output branch.
type OpAmp struct {
	Name         string
	InP, InN, Out int
	Branch       int
	Model        int
	RailActive   bool // true once rail limiting has engaged for this sample
}

// Potentiometer stamps as two resistors from a shared wiper node.
type Potentiometer struct {
	Name         string
	A, B, Wiper  int
	RTotal       float64
	Position     float64
}

// Switch stamps a fixed very-low or very-high conductance depending
// on state.
type Switch struct {
	Name   string
	P, N   int
	Closed bool
}

const (
	switchOnConductance  = 1e3
	switchOffConductance = 1e-9
)

// Conductance returns the fixed conductance this switch stamps.
func (s *Switch) Conductance() float64 {
	if s.Closed {
		return switchOnConductance
	}
	return switchOffConductance
}

// InCircuitDelay integrates dsp/delay.Line as a controlled voltage
// source driven by the previous sample's solved input-node voltage.
type InCircuitDelay struct {
	Name       string
	In, Out    int
	Branch     int
	Params     circuitdesc.DelayParams
	LastOutput float64 // value stamped for the sample in progress
}

// InCircuitReverb integrates dsp/reverb.FDN the same way.
type InCircuitReverb struct {
	Name       string
	In, Out    int
	Branch     int
	Params     circuitdesc.ReverbParams
	LastOutput float64
}

// ModelDef is the resolved, by-index counterpart of
// circuitdesc.Model.
type ModelDef = circuitdesc.Model
