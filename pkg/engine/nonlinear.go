package engine

import (
	"math"

	"github.com/edp1096/pedalsim/internal/consts"
	"github.com/edp1096/pedalsim/pkg/circuit"
	"github.com/edp1096/pedalsim/pkg/dls"
)

// roomTempKelvin is the fixed junction temperature this simulator
// assumes; there is no per-circuit temperature override.
const roomTempKelvin = 300.0

// thermalVoltage is Vt = kT/q (~25.85mV), evaluated once at package
// init from the elementary charge and Boltzmann constant rather than
// hardcoded, so it stays traceable to the physical quantities it
// represents.
var thermalVoltage = consts.BOLTZMANN * roomTempKelvin / consts.CHARGE

// limit is the piecewise junction-voltage damping rule shared by the
// diode and (per-junction) the BJT. It keeps successive
// Newton iterates of an exponential junction from overshooting into
// numerical overflow. Vcrit = nVt*ln(nVt/(Is*sqrt(2))).
func limit(v, vPrevIter, nVt, is float64) float64 {
	if is <= 0 {
		is = 1e-14
	}
	vcrit := nVt * math.Log(nVt/(is*math.Sqrt2))
	if v > vcrit && math.Abs(v-vPrevIter) > 2*nVt {
		return vcrit + nVt*math.Log1p((v-vcrit)/nVt)
	}
	return v
}

const minDiodeConductance = 1e-12

// stampDiode linearizes the Shockley diode at VPrevIter and stamps
// its companion conductance + equivalent current source. It must run
// inside the Newton loop: every call both stamps and advances
// VPrevIter for the next iteration.
func stampDiode(m *dls.Matrix, d *circuit.Diode, models []circuit.ModelDef) {
	model := models[d.Model]
	nVt := model.N * thermalVoltage

	v := m.NodeVoltage(d.Anode) - m.NodeVoltage(d.Cat)
	vlim := limit(v, d.VPrevIter, nVt, model.Is)

	expArg := vlim / nVt
	if expArg > 80 {
		expArg = 80 // avoid math.Exp overflow; no real circuit needs more
	}
	exp := math.Exp(expArg)
	id := model.Is * (exp - 1)
	gd := (model.Is / nVt) * exp
	if gd < minDiodeConductance {
		gd = minDiodeConductance
	}
	ieq := id - gd*vlim

	stampConductance(m, d.Anode, d.Cat, gd)
	stampCurrentInjection(m, d.Anode, d.Cat, ieq)

	d.VPrevIter = vlim
}

// stampBJT linearizes the Ebers-Moll BJT at (VBEPrevIter,
// VBCPrevIter) and stamps the resulting 3x3 conductance block plus
// three equivalent current injections. PNP devices flip the sign of
// every injected current; the stamped conductances keep their sign,
// because the junction voltages and the terminal currents are both
// negated.
func stampBJT(m *dls.Matrix, q *circuit.BJT, models []circuit.ModelDef) {
	model := models[q.Model]
	nVt := model.N * thermalVoltage
	is := model.Is
	if is <= 0 {
		is = 1e-16
	}

	sign := 1.0
	if q.PNP {
		sign = -1.0
	}

	vbeRaw := sign * (m.NodeVoltage(q.B) - m.NodeVoltage(q.E))
	vbcRaw := sign * (m.NodeVoltage(q.B) - m.NodeVoltage(q.C))

	vbe := limit(vbeRaw, q.VBEPrevIter, nVt, is)
	vbc := limit(vbcRaw, q.VBCPrevIter, nVt, is)
	q.VBEPrevIter = vbe
	q.VBCPrevIter = vbc

	expBE := clampExp(vbe / nVt)
	expBC := clampExp(vbc / nVt)

	ibe := is * (expBE - 1)
	ibc := is * (expBC - 1)

	br := model.Br
	if br <= 0 {
		br = 1
	}
	bf := model.Bf
	if bf <= 0 {
		bf = 100
	}

	ic := ibe - ibc*(1+1/br)
	ib := ibe/bf + ibc/br

	gbe := (is / nVt) * expBE // d(ibe)/d(vbe)
	gbc := (is / nVt) * expBC // d(ibc)/d(vbc)

	// Jacobian of (Ic, Ib, Ie) w.r.t. (Vbe, Vbc):
	//   dIc/dVbe = gbe           dIc/dVbc = -gbc*(1+1/br)
	//   dIb/dVbe = gbe/bf        dIb/dVbc = gbc/br
	//   dIe/dVbe = -(dIc+dIb)/dVbe   dIe/dVbc = -(dIc+dIb)/dVbc
	dIcDVbe := gbe
	dIcDVbc := -gbc * (1 + 1/br)
	dIbDVbe := gbe / bf
	dIbDVbc := gbc / br
	dIeDVbe := -(dIcDVbe + dIbDVbe)
	dIeDVbc := -(dIcDVbc + dIbDVbc)

	ie := -(ic + ib)

	// Equivalent current injections at the linearization point,
	// companion-model shaped exactly like the diode case.
	ieqC := ic - dIcDVbe*vbe - dIcDVbc*vbc
	ieqB := ib - dIbDVbe*vbe - dIbDVbc*vbc
	ieqE := ie - dIeDVbe*vbe - dIeDVbc*vbc

	if q.PNP {
		ieqC, ieqB, ieqE = -ieqC, -ieqB, -ieqE
	}

	// Stamp the 3x3 block over {C,B,E}. Vbe = Vb-Ve, Vbc = Vb-Vc, so
	// d(nodeCurrent)/dVb sums both partials, and d/dVe, d/dVc subtract
	// the matching one.
	stampBJTNodeEquation(m, q.C, q.B, q.C, q.E, dIcDVbe, dIcDVbc, ieqC)
	stampBJTNodeEquation(m, q.B, q.B, q.C, q.E, dIbDVbe, dIbDVbc, ieqB)
	stampBJTNodeEquation(m, q.E, q.B, q.C, q.E, dIeDVbe, dIeDVbc, ieqE)
}

func clampExp(arg float64) float64 {
	if arg > 80 {
		arg = 80
	}
	return math.Exp(arg)
}

// stampBJTNodeEquation stamps one node's KCL row of the linearized
// BJT: the conductance block derived from dIdVbe = d(nodeCurrent)/dVbe
// and dIdVbc = d(nodeCurrent)/dVbc (Vbe = Vb-Ve, Vbc = Vb-Vc), plus
// the equivalent current injection at the linearization point.
func stampBJTNodeEquation(m *dls.Matrix, node, b, c, e int, dIdVbe, dIdVbc, ieq float64) {
	m.Add(node, b, dIdVbe+dIdVbc)
	m.Add(node, e, -dIdVbe)
	m.Add(node, c, -dIdVbc)
	m.AddRHS(node, -ieq)
}

// defaultOpAmpRail is the conventional dual-supply rail, used when a
// model omits rail=; exposed as model.Rail so callers can override it.
const defaultOpAmpRail = 15.0

// stampOpAmp stamps the op-amp's input resistance and its output
// branch equation. When the unclamped output would
// exceed the rail, the effective gain is reduced so the predicted
// output clips there, and the op-amp re-enters the Newton loop for
// that sample.
func stampOpAmp(m *dls.Matrix, o *circuit.OpAmp, models []circuit.ModelDef) (active bool) {
	model := models[o.Model]
	rin := model.Rin
	if rin <= 0 {
		rin = 1e6
	}
	rout := model.Rout
	gain := model.Gain
	if gain == 0 {
		gain = 100000
	}
	rail := model.Rail
	if rail == 0 {
		rail = defaultOpAmpRail
	}

	stampConductance(m, o.InP, o.InN, 1.0/rin)

	vIn := m.NodeVoltage(o.InP) - m.NodeVoltage(o.InN)
	predicted := gain * vIn
	effectiveGain := gain
	if predicted > rail {
		if vIn != 0 {
			effectiveGain = rail / vIn
		}
		active = true
	} else if predicted < -rail {
		if vIn != 0 {
			effectiveGain = -rail / vIn
		}
		active = true
	}

	// V_out - rout*i_b = gain*(V+ - V-), rearranged into the branch
	// equation stamped against the output branch.
	stampVoltageBranch(m, o.Out, 0, o.Branch, 0)
	m.Add(o.Branch, o.Branch, -rout)
	m.Add(o.Branch, o.InP, -effectiveGain)
	m.Add(o.Branch, o.InN, effectiveGain)

	o.RailActive = active
	return active
}
