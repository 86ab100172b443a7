package engine

import (
	"github.com/edp1096/pedalsim/pkg/circuit"
	"github.com/edp1096/pedalsim/pkg/dls"
)

// hasNonlinear reports whether c contains any device whose stamp
// depends on the current solution. Op-amps are included because rail
// saturation recomputes the effective gain from the present input
// voltage every iteration.
func hasNonlinear(c *circuit.Circuit) bool {
	return len(c.Diodes) > 0 || len(c.BJTs) > 0 || len(c.OpAmps) > 0
}

// stampNonlinear applies every device whose linearization depends on
// the present operating point, given the linear stamps already in m.
func stampNonlinear(m *dls.Matrix, c *circuit.Circuit) {
	for i := range c.Diodes {
		stampDiode(m, &c.Diodes[i], c.Models)
	}
	for i := range c.BJTs {
		stampBJT(m, &c.BJTs[i], c.Models)
	}
	for i := range c.OpAmps {
		stampOpAmp(m, &c.OpAmps[i], c.Models)
	}
}

// newtonSolve iterates the nonlinear devices' linearizations to a
// fixed point. linearA/linearZ hold the stamps that don't change
// across iterations; m is cleared and
// restamped with them before every nonlinear pass so device stamps
// never compound. xPrev is the simulator's warm-start state, updated
// in place with the converged (or last) iterate. Returns whether the
// matrix was singular and whether the loop failed to converge within
// maxIter.
func newtonSolve(m *dls.Matrix, c *circuit.Circuit, linearA, linearZ []float64, xPrev []float64, maxIter int, tol float64) (singular, nonConverged bool) {
	for k := 0; k < maxIter; k++ {
		copy(m.RawA(), linearA)
		copy(m.RawZ(), linearZ)
		stampNonlinearAt(m, c, xPrev)

		if err := m.Factor(); err != nil {
			return true, false
		}

		delta := 0.0
		x := m.X()
		for i := range x {
			d := x[i] - xPrev[i]
			if d < 0 {
				d = -d
			}
			if d > delta {
				delta = d
			}
		}
		copy(xPrev, x)
		if delta < tol {
			return false, false
		}
	}
	return false, true
}

// stampNonlinearAt stamps the nonlinear devices linearized at xPrev:
// the devices read m.NodeVoltage, which reflects m.X(), so xPrev is
// first copied into m's solution slot. This also covers a fresh
// iteration that has not solved yet.
func stampNonlinearAt(m *dls.Matrix, c *circuit.Circuit, xPrev []float64) {
	copy(m.X(), xPrev)
	stampNonlinear(m, c)
}
