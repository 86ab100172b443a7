// Package circuitdesc defines the validated-circuit-description
// contract the simulation core consumes. pkg/parser provides one
// concrete producer of this type, but any producer satisfying this
// data shape can drive pkg/circuit.Build.
//
// Description is plain data: it has no behavior and performs no
// validation itself. The structural invariants are enforced by
// pkg/circuit.Build, which turns a Description into the closed-set
// Circuit the engine runs.
package circuitdesc

// Kind is the tag of the Component union. The set is closed and
// fixed at compile time; pkg/circuit dispatches on it with a switch
// over Kind rather than an interface vtable.
type Kind int

const (
	Resistor Kind = iota
	Capacitor
	Inductor
	VoltageSource
	CurrentSource
	Diode
	BJT
	OpAmp
	Potentiometer
	Switch
	DelayEffect
	ReverbEffect
)

func (k Kind) String() string {
	switch k {
	case Resistor:
		return "R"
	case Capacitor:
		return "C"
	case Inductor:
		return "L"
	case VoltageSource:
		return "V"
	case CurrentSource:
		return "I"
	case Diode:
		return "D"
	case BJT:
		return "Q"
	case OpAmp:
		return "U"
	case Potentiometer:
		return "POT"
	case Switch:
		return "SW"
	case DelayEffect:
		return "DELAY"
	case ReverbEffect:
		return "REVERB"
	default:
		return "?"
	}
}

// SourceMode distinguishes a voltage source driven by the fixed build
// value (DC) from one whose value is assigned externally before every
// sample (AC).
type SourceMode int

const (
	DC SourceMode = iota
	AC
)

// Shape is an LFO waveform.
type Shape int

const (
	Sine Shape = iota
	Triangle
	Sawtooth
	Square
)

// Modulation binds a resistor's effective value to an LFO.
type Modulation struct {
	LFO   string
	Depth float64 // in [0,1]
	Range float64
}

// DelayParams configures an in-circuit delay line.
type DelayParams struct {
	Time     float64 // nominal delay time, seconds
	Mix      float64
	Feedback float64
}

// ReverbParams configures an in-circuit FDN reverb.
type ReverbParams struct {
	Size     float64
	Damping  float64
	Decay    float64
	Mix      float64
	PreDelay float64
}

// Component is a tagged union over every supported element kind.
// Only the fields relevant to Kind are meaningful; the rest are zero.
type Component struct {
	Kind Kind
	Name string

	// Nodes holds node names in the canonical per-kind order:
	//   Resistor/Capacitor/Inductor/VoltageSource/CurrentSource/Switch: [p, n]
	//   Diode: [anode, cathode]
	//   BJT: [collector, base, emitter]
	//   OpAmp: [in+, in-, out]
	//   Potentiometer: [terminalA, terminalB, wiper]
	//   DelayEffect/ReverbEffect: [in, out]
	Nodes []string

	Value float64 // R/C/L base value, or DC source value

	Mod *Modulation // resistor modulation binding, nil if unmodulated

	Model string // name into Description.Models, for Diode/BJT/OpAmp

	// BJT polarity; "npn" or "pnp".
	Polarity string

	Mode SourceMode // VoltageSource only

	// Potentiometer wiper position in [0,1], fraction of Value toward
	// terminal A.
	Position float64

	// Switch state: true stamps a very-high conductance, false a
	// very-low one.
	Closed bool

	Delay  *DelayParams
	Reverb *ReverbParams
}

// ModelKind distinguishes the three model tables.
type ModelKind int

const (
	DiodeModel ModelKind = iota
	BJTModel
	OpAmpModel
)

// Model is a named parameter set resolved by Component.Model.
type Model struct {
	Kind ModelKind

	// Diode
	Is float64
	N  float64
	Vf float64 // informational only, not used by the device equations

	// BJT (Is, N shared with diode fields above)
	Bf float64
	Br float64
	Va float64

	// OpAmp
	Gain float64
	Rin  float64
	Rout float64
	Rail float64 // output saturation rail; 0 means the default ±15V
}

// LFO is a named phase-accumulating oscillator definition.
type LFO struct {
	Name  string
	Rate  float64 // Hz
	Shape Shape
	Phase float64 // initial phase in [0,1)
}

// Description is the validated circuit the parser (or any other
// producer) hands to pkg/circuit.Build.
type Description struct {
	Components []Component
	Models     map[string]Model
	LFOs       []LFO
	Input      string
	Output     string
}
