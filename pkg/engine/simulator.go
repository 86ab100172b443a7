package engine

import (
	"github.com/edp1096/pedalsim/pkg/circuit"
	"github.com/edp1096/pedalsim/pkg/dls"
	"github.com/edp1096/pedalsim/pkg/dsp/delay"
	"github.com/edp1096/pedalsim/pkg/dsp/reverb"
	"github.com/edp1096/pedalsim/pkg/lfo"
)

const (
	defaultMaxIter = 50
	defaultTol     = 1e-4
)

// Simulator owns a built circuit and advances it one audio sample at
// a time. It owns every buffer the hot path touches; none of it is
// reallocated after New/WithConfig returns.
type Simulator struct {
	circuit    *circuit.Circuit
	matrix     *dls.Matrix
	sampleRate float64
	dt         float64
	trap       float64 // cached 2/dt trapezoidal coefficient
	maxIter    int
	tol        float64

	lfos    *lfo.Bank
	delays  []*delay.Line
	reverbs []*reverb.FDN

	nonlinear bool // true if the circuit has any device needing Newton iteration

	xPrev   []float64 // Newton warm-start state, survives across samples
	linearA []float64 // snapshot of the per-sample linear stamps
	linearZ []float64

	pendingInput float64

	// Degradation counters: how many samples hit the Newton iteration
	// cap or a singular factorization since construction.
	NonConvergenceCount uint64
	SingularCount       uint64
}

// New builds a Simulator with the default Newton iteration cap and
// convergence tolerance.
func New(c *circuit.Circuit, sampleRate float64) (*Simulator, error) {
	return WithConfig(c, sampleRate, defaultMaxIter, defaultTol)
}

// WithConfig builds a Simulator with explicit Newton driver tuning.
func WithConfig(c *circuit.Circuit, sampleRate float64, maxIter int, tol float64) (*Simulator, error) {
	dim := c.Dim()
	s := &Simulator{
		circuit:    c,
		matrix:     dls.New(dim),
		sampleRate: sampleRate,
		dt:         1.0 / sampleRate,
		trap:       trapCoeff(1.0 / sampleRate),
		maxIter:    maxIter,
		tol:        tol,
		lfos:       lfo.New(c.LFOs, sampleRate),
		nonlinear:  hasNonlinear(c),
		xPrev:      make([]float64, dim),
		linearA:    make([]float64, dim*dim),
		linearZ:    make([]float64, dim),
	}

	const timeMax = 2.0 // seconds; generous upper bound for in-circuit delay taps
	for i := range c.Delays {
		p := c.Delays[i].Params
		s.delays = append(s.delays, delay.New(timeMax, p.Time, p.Mix, p.Feedback, sampleRate))
	}
	for i := range c.Reverbs {
		p := c.Reverbs[i].Params
		s.reverbs = append(s.reverbs, reverb.New(p.Size, p.Damping, p.Decay, p.Mix, p.PreDelay, sampleRate))
	}

	return s, nil
}

// SetInput assigns the sample that the next Step will feed to V_IN.
func (s *Simulator) SetInput(sample float32) {
	s.pendingInput = float64(sample)
}

// SampleRate returns the configured sample rate.
func (s *Simulator) SampleRate() float32 { return float32(s.sampleRate) }

// NodeVoltage is a diagnostic read: the last solved voltage at the
// named node, or false if no such node exists. Ground always reads 0.
func (s *Simulator) NodeVoltage(name string) (float64, bool) {
	if name == "0" || name == "GND" {
		return 0, true
	}
	id, ok := s.circuit.NodeNames[name]
	if !ok {
		return 0, false
	}
	return s.matrix.NodeVoltage(id), true
}

// Step advances the simulation by one sample and returns the
// output-node voltage as f32. It never returns an error: the audio
// thread has no channel for one. A singular matrix yields 0 and a
// non-convergent Newton loop yields its last iterate, both surfaced
// only through the counters above.
func (s *Simulator) Step() float32 {
	return s.step(s.pendingInput)
}

// ProcessBlock processes min(len(input), len(output)) samples, writing
// each result into output, with zero allocation. Each input sample is
// fed straight to the per-sample step; the value set by SetInput is
// neither used nor changed.
func (s *Simulator) ProcessBlock(input []float32, output []float32) {
	n := len(input)
	if len(output) < n {
		n = len(output)
	}
	for i := 0; i < n; i++ {
		output[i] = s.step(float64(input[i]))
	}
}

func (s *Simulator) step(input float64) float32 {
	c := s.circuit
	m := s.matrix

	// 1. Drive V_IN.
	c.VoltageSources[c.VInIndex].Value = input

	// 2. Advance every LFO.
	s.lfos.Advance()

	// 3. Refresh LFO-modulated resistors.
	for i := range c.Resistors {
		r := &c.Resistors[i]
		if r.Mod == nil {
			r.REff = r.RBase
			continue
		}
		lv := s.lfos.Value(r.Mod.LFOIndex)
		r.REff = r.RBase * (1 + r.Mod.Depth*r.Mod.Range*lv)
	}

	// 4. Digital effects read the previous sample's solved input-node
	// voltage and compute their output now, before this sample clears
	// the matrix. The one-sample lag keeps the system linear in this
	// sample's unknowns even with the effect in a feedback path.
	for i := range c.Delays {
		d := &c.Delays[i]
		in := m.NodeVoltage(d.In)
		d.LastOutput = s.delays[i].Process(in)
	}
	for i := range c.Reverbs {
		r := &c.Reverbs[i]
		in := m.NodeVoltage(r.In)
		r.LastOutput = s.reverbs[i].Process(in)
	}

	// 5. Stamp every linear contribution for this sample.
	m.Clear()
	stampLinear(m, c, s.trap)

	var singular, nonConverged bool
	if s.nonlinear {
		copy(s.linearA, m.RawA())
		copy(s.linearZ, m.RawZ())
		singular, nonConverged = newtonSolve(m, c, s.linearA, s.linearZ, s.xPrev, s.maxIter, s.tol)
	} else {
		singular = m.Factor() != nil
	}

	if singular {
		s.SingularCount++
		return 0
	}
	if nonConverged {
		s.NonConvergenceCount++
	}

	out := m.NodeVoltage(c.OutputNode)

	for i := range c.Capacitors {
		updateCapacitorHistory(&c.Capacitors[i], m, s.trap)
	}
	for i := range c.Inductors {
		updateInductorHistory(&c.Inductors[i], m, s.trap)
	}

	return float32(out)
}
