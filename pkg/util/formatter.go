// Package util holds small formatting and integration helpers shared
// by the CLI and the engine.
package util

import (
	"fmt"
	"math"
)

// FormatValueFactor renders value with an engineering suffix, e.g.
// 1e-4 with unit "V" becomes "100.000 uV".
func FormatValueFactor(value float64, unit string) string {
	absValue := math.Abs(value)
	switch {
	case absValue >= 1:
		return fmt.Sprintf("%.3f %s", value, unit)
	case absValue >= 1e-3:
		return fmt.Sprintf("%.3f m%s", value*1e3, unit)
	case absValue >= 1e-6:
		return fmt.Sprintf("%.3f u%s", value*1e6, unit)
	case absValue >= 1e-9:
		return fmt.Sprintf("%.3f n%s", value*1e9, unit)
	default:
		return fmt.Sprintf("%.3e %s", value, unit)
	}
}

// FormatFrequency renders an audio-domain frequency, e.g. 48000
// becomes "48.000 kHz". Rates above the kHz range never occur here.
func FormatFrequency(freq float64) string {
	if freq >= 1e3 {
		return fmt.Sprintf("%.3f kHz", freq/1e3)
	}
	return fmt.Sprintf("%.3f Hz", freq)
}
