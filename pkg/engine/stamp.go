// Package engine implements the MNA stamping, reactive-element
// companion models, nonlinear device linearization, Newton-Raphson
// driver and per-sample Simulator orchestration. It is the hot path:
// the stamping and history functions here run once per audio sample
// and none of them allocate; trapCoeff runs once at construction.
package engine

import (
	"github.com/edp1096/pedalsim/pkg/circuit"
	"github.com/edp1096/pedalsim/pkg/dls"
	"github.com/edp1096/pedalsim/pkg/util"
)

// trapCoeff returns 2/dt, the trapezoidal integration coefficient the
// capacitor and inductor companion models share. Sourced from
// util.GetTrapezoidalCoeffs rather than inlined as a literal, so both
// companions stay traceable to the same trapezoidal rule. Called once
// at Simulator construction; the hot path only ever sees the cached
// value.
func trapCoeff(dt float64) float64 {
	return util.GetTrapezoidalCoeffs(2, dt)[0]
}

// stampLinear stamps every time-invariant or companion-model
// contribution that does not depend on the current Newton iteration:
// resistors, capacitor/inductor companions, voltage/current sources,
// potentiometers, switches and in-circuit digital-effect voltage
// sources. Nonlinear devices are stamped separately and repeatedly by
// the Newton driver.
func stampLinear(m *dls.Matrix, c *circuit.Circuit, trap float64) {
	for i := range c.Resistors {
		stampResistor(m, &c.Resistors[i])
	}
	for i := range c.Capacitors {
		stampCapacitor(m, &c.Capacitors[i], trap)
	}
	for i := range c.Inductors {
		stampInductor(m, &c.Inductors[i], trap)
	}
	for i := range c.VoltageSources {
		stampVoltageSource(m, &c.VoltageSources[i])
	}
	for i := range c.CurrentSources {
		stampCurrentSource(m, &c.CurrentSources[i])
	}
	for i := range c.Potentiometers {
		stampPotentiometer(m, &c.Potentiometers[i])
	}
	for i := range c.Switches {
		stampSwitch(m, &c.Switches[i])
	}
	for i := range c.Delays {
		stampEffectBranch(m, c.Delays[i].In, c.Delays[i].Out, c.Delays[i].Branch, c.Delays[i].LastOutput)
	}
	for i := range c.Reverbs {
		stampEffectBranch(m, c.Reverbs[i].In, c.Reverbs[i].Out, c.Reverbs[i].Branch, c.Reverbs[i].LastOutput)
	}
}

// stampConductance is the canonical two-terminal conductance stamp
// between p and n.
func stampConductance(m *dls.Matrix, p, n int, g float64) {
	m.Add(p, p, g)
	m.Add(n, n, g)
	m.Add(p, n, -g)
	m.Add(n, p, -g)
}

// stampCurrentInjection stamps a current i flowing from p to n into
// the right-hand side.
func stampCurrentInjection(m *dls.Matrix, p, n int, i float64) {
	m.AddRHS(p, -i)
	m.AddRHS(n, i)
}

// stampVoltageBranch stamps the branch equation V(p) - V(n) = v
// against branch b, shared by VoltageSource, the inductor companion,
// the op-amp output branch and in-circuit digital effects.
func stampVoltageBranch(m *dls.Matrix, p, n, b int, v float64) {
	m.Add(p, b, 1)
	m.Add(n, b, -1)
	m.Add(b, p, 1)
	m.Add(b, n, -1)
	m.AddRHS(b, v)
}

func stampResistor(m *dls.Matrix, r *circuit.Resistor) {
	stampConductance(m, r.P, r.N, 1.0/r.REff)
}

func stampCurrentSource(m *dls.Matrix, s *circuit.CurrentSource) {
	stampCurrentInjection(m, s.P, s.N, s.I)
}

func stampVoltageSource(m *dls.Matrix, v *circuit.VoltageSource) {
	stampVoltageBranch(m, v.P, v.N, v.Branch, v.Value)
}

func stampPotentiometer(m *dls.Matrix, p *circuit.Potentiometer) {
	// Position is the fraction of RTotal between terminal A and the
	// wiper; the remainder sits between the wiper and terminal B.
	pos := p.Position
	if pos < 0 {
		pos = 0
	} else if pos > 1 {
		pos = 1
	}
	rA := p.RTotal * pos
	rB := p.RTotal * (1 - pos)
	const minR = 1e-3 // avoid an exact-zero conductance at the travel extremes
	if rA < minR {
		rA = minR
	}
	if rB < minR {
		rB = minR
	}
	stampConductance(m, p.A, p.Wiper, 1.0/rA)
	stampConductance(m, p.Wiper, p.B, 1.0/rB)
}

func stampSwitch(m *dls.Matrix, s *circuit.Switch) {
	stampConductance(m, s.P, s.N, s.Conductance())
}

// stampEffectBranch stamps an in-circuit digital effect's output as
// a fixed-value voltage source for this sample. value was computed
// from the previous sample's solved input-node voltage before Clear,
// so the system stays linear in this sample's unknowns.
func stampEffectBranch(m *dls.Matrix, _in, out, branch int, value float64) {
	stampVoltageBranch(m, out, 0, branch, value)
}

// stampCapacitor applies the trapezoidal companion model
// G_eq = 2C/dt, I_eq = G_eq*v_prev + i_prev, stamped as a conductance
// plus a current source from n to p. trap is the cached 2/dt
// coefficient.
func stampCapacitor(m *dls.Matrix, c *circuit.Capacitor, trap float64) {
	geq := c.C * trap
	ieq := geq*c.VPrev + c.IPrev
	stampConductance(m, c.P, c.N, geq)
	m.AddRHS(c.P, ieq)
	m.AddRHS(c.N, -ieq)
}

// updateCapacitorHistory recovers the new branch current from the
// solved node voltages and advances the trapezoidal state.
func updateCapacitorHistory(c *circuit.Capacitor, m *dls.Matrix, trap float64) {
	vNew := m.NodeVoltage(c.P) - m.NodeVoltage(c.N)
	geq := c.C * trap
	iNew := geq*(vNew-c.VPrev) - c.IPrev
	c.IPrev = iNew
	c.VPrev = vNew
}

// stampInductor applies the current-state companion model. The
// trapezoidal rule for v = L*di/dt gives
// v_n = R_eq*i_n - (R_eq*i_prev + v_prev) with R_eq = 2L/dt, so the
// branch equation reads V_p - V_n - R_eq*i_b = -V_eq with
// V_eq = R_eq*i_prev + v_prev. The history term must enter negated:
// stamping +V_eq instead leaves the RHS identical every sample and
// the inductor degenerates into a fixed R_eq resistor.
func stampInductor(m *dls.Matrix, l *circuit.Inductor, trap float64) {
	req := l.L * trap
	veq := req*l.IPrev + l.VPrev
	stampVoltageBranch(m, l.P, l.N, l.Branch, -veq)
	m.Add(l.Branch, l.Branch, -req)
}

// updateInductorHistory recovers i_new from the solved branch current
// and the new inductor voltage from the same trapezoidal relation the
// stamp used: v_n = R_eq*i_n - (R_eq*i_prev + v_prev).
func updateInductorHistory(l *circuit.Inductor, m *dls.Matrix, trap float64) {
	req := l.L * trap
	veq := req*l.IPrev + l.VPrev
	iNew := m.X()[l.Branch-1]
	vNew := req*iNew - veq
	l.IPrev = iNew
	l.VPrev = vNew
}
