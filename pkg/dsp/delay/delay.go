// Package delay implements a digital delay line: a circular buffer
// with a fractional read tap, feedback and wet/dry mix.
package delay

import "math"

// Line is a fixed-capacity circular delay buffer. Capacity is chosen
// at New time from the largest time the caller expects to need and
// never grows afterward, so Process never allocates.
type Line struct {
	buf        []float64
	writeHead  int
	tapSamples float64 // fractional delay in samples
	mix        float64
	feedback   float64
	lastOutput float64
}

// New allocates a Line sized ceil(timeMax*sampleRate) and configures
// it for the given nominal delay time, mix and feedback.
func New(timeMax, time, mix, feedback, sampleRate float64) *Line {
	capacity := int(math.Ceil(timeMax * sampleRate))
	if capacity < 1 {
		capacity = 1
	}
	return &Line{
		buf:        make([]float64, capacity),
		tapSamples: time * sampleRate,
		mix:        mix,
		feedback:   feedback,
	}
}

// Process runs one sample through the delay line: read the tap, mix
// in feedback of the last output, blend wet against dry, write the
// input plus fed-back tap, advance the head.
func (l *Line) Process(x float64) float64 {
	n := len(l.buf)
	d := l.readTap()

	wet := d + l.feedback*l.lastOutput
	y := (1-l.mix)*x + l.mix*wet

	l.buf[l.writeHead] = x + l.feedback*d
	l.writeHead = (l.writeHead + 1) % n

	l.lastOutput = y
	return y
}

// readTap linearly interpolates buf at tapSamples behind writeHead,
// so a non-integer nominal delay time still produces a smooth tap.
func (l *Line) readTap() float64 {
	n := len(l.buf)
	pos := float64(l.writeHead) - l.tapSamples
	for pos < 0 {
		pos += float64(n)
	}
	i0 := int(math.Floor(pos)) % n
	frac := pos - math.Floor(pos)
	i1 := (i0 + 1) % n
	return l.buf[i0]*(1-frac) + l.buf[i1]*frac
}

// LastOutput returns the most recently produced sample, the value an
// in-circuit delay stamps as its controlled voltage source for the
// next sample.
func (l *Line) LastOutput() float64 { return l.lastOutput }
