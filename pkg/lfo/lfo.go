// Package lfo implements a bank of phase-accumulating low-frequency
// oscillators that drive modulated-component parameters.
package lfo

import (
	"math"

	"github.com/edp1096/pedalsim/pkg/circuitdesc"
)

// Oscillator is one phase-accumulating LFO. Phase always stays in
// [0,1); advancing past 1 wraps rather than resets, so periodicity
// holds exactly regardless of how many samples have elapsed.
type Oscillator struct {
	Rate  float64
	Shape circuitdesc.Shape
	Phase float64
}

// Bank owns every LFO declared on a circuit, advanced together once
// per sample.
type Bank struct {
	oscillators []Oscillator
	sampleRate  float64
}

// New builds a Bank from the circuit's LFO declarations at the given
// sample rate. Allocation happens here only, never in Advance.
func New(defs []circuitdesc.LFO, sampleRate float64) *Bank {
	oscs := make([]Oscillator, len(defs))
	for i, d := range defs {
		oscs[i] = Oscillator{Rate: d.Rate, Shape: d.Shape, Phase: d.Phase}
	}
	return &Bank{oscillators: oscs, sampleRate: sampleRate}
}

// Advance steps every oscillator's phase by rate/sampleRate, wrapping
// into [0,1).
func (b *Bank) Advance() {
	for i := range b.oscillators {
		o := &b.oscillators[i]
		o.Phase += o.Rate / b.sampleRate
		o.Phase -= math.Floor(o.Phase)
	}
}

// Value returns the current [0,1]-mapped output of LFO i.
func (b *Bank) Value(i int) float64 {
	o := &b.oscillators[i]
	return valueAt(o.Shape, o.Phase)
}

func valueAt(shape circuitdesc.Shape, phase float64) float64 {
	switch shape {
	case circuitdesc.Sine:
		return 0.5 * (1 + math.Sin(2*math.Pi*phase))
	case circuitdesc.Triangle:
		t := 2 * phase
		if t < 1 {
			return t
		}
		return 2 - t
	case circuitdesc.Sawtooth:
		return phase
	case circuitdesc.Square:
		if phase < 0.5 {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// Len reports how many oscillators the bank holds.
func (b *Bank) Len() int { return len(b.oscillators) }
