package util

// GetTrapezoidalCoeffs returns the trapezoidal integration coefficient
// companion-model stamping shares: 2/dt for the order-2 (capacitor and
// inductor companion) form, 1/dt for order-1. Kept as its own function
// rather than a literal so both companions in pkg/engine stay
// traceable to the same rule.
func GetTrapezoidalCoeffs(order int, dt float64) []float64 {
	if order < 1 || order > 2 {
		order = 1
	}

	coeffs := make([]float64, 1)
	coeffs[0] = 2.0 / dt
	if order == 1 {
		coeffs[0] = 1.0 / dt
	}

	return coeffs
}
