// Package reverb implements an FDN (Feedback Delay Network) reverb:
// four fixed-ratio delay lines mixed through a Hadamard feedback
// matrix, each with a one-pole damping filter, preceded by an
// optional predelay buffer.
package reverb

import "math"

// baseLineLengths are the four line lengths in samples at 48 kHz;
// every other sample rate scales them linearly.
var baseLineLengths = [4]float64{1087, 1283, 1511, 1777}

// hadamard is the 4x4 Hadamard feedback matrix scaled by 1/2, which
// makes it orthogonal: the tank loses energy only through decay and
// damping, never through the mix itself.
var hadamard = [4][4]float64{
	{0.5, 0.5, 0.5, 0.5},
	{0.5, -0.5, 0.5, -0.5},
	{0.5, 0.5, -0.5, -0.5},
	{0.5, -0.5, -0.5, 0.5},
}

// dampingFilter is the one-pole lowpass in each line's feedback path,
// d_i = (1-a)*t_i + a*d_prev_i.
type dampingFilter struct {
	coeff float64
	prev  float64
}

func (d *dampingFilter) process(t float64) float64 {
	d.prev = (1-d.coeff)*t + d.coeff*d.prev
	return d.prev
}

// line is one FDN delay line: a circular buffer whose length is fixed
// at construction from the base length, size and sample rate.
type line struct {
	buf        []float64
	writeHead  int
	damp       dampingFilter
}

// read returns the oldest buffered sample: the slot the write head is
// about to overwrite, written len(buf) calls ago.
func (l *line) read() float64 {
	return l.buf[l.writeHead]
}

func (l *line) write(v float64) {
	l.buf[l.writeHead] = v
	l.writeHead = (l.writeHead + 1) % len(l.buf)
}

// predelay is a small circular buffer applied before the FDN proper.
type predelay struct {
	buf       []float64
	writeHead int
}

func newPredelay(seconds, sampleRate float64) *predelay {
	n := int(seconds * sampleRate)
	if n < 1 {
		return &predelay{buf: []float64{0}}
	}
	return &predelay{buf: make([]float64, n)}
}

func (p *predelay) process(x float64) float64 {
	n := len(p.buf)
	if n <= 1 {
		return x
	}
	out := p.buf[p.writeHead]
	p.buf[p.writeHead] = x
	p.writeHead = (p.writeHead + 1) % n
	return out
}

// FDN is the reverb tank: four lines, a Hadamard mixer and an optional
// predelay, all allocated once at New time.
type FDN struct {
	lines    [4]line
	decay    float64
	mix      float64
	predelay *predelay
}

// New builds an FDN sized for size and sampleRate, with damping,
// decay, mix and predelay taken directly from the circuit's reverb
// parameters.
func New(size, damping, decay, mix, preDelaySeconds, sampleRate float64) *FDN {
	if size <= 0 {
		size = 1
	}
	ratio := sampleRate / 48000
	f := &FDN{
		decay:    decay,
		mix:      mix,
		predelay: newPredelay(preDelaySeconds, sampleRate),
	}
	for i := 0; i < 4; i++ {
		n := int(math.Ceil(baseLineLengths[i] * size * ratio))
		if n < 1 {
			n = 1
		}
		f.lines[i] = line{buf: make([]float64, n), damp: dampingFilter{coeff: damping}}
	}
	return f
}

// Process runs one sample through the FDN: predelay, read and damp
// every line, Hadamard-mix, write back with decay, blend wet against
// dry.
func (f *FDN) Process(x float64) float64 {
	xp := f.predelay.process(x)

	var tap, d [4]float64
	for i := 0; i < 4; i++ {
		tap[i] = f.lines[i].read()
		d[i] = f.lines[i].damp.process(tap[i])
	}

	var m [4]float64
	for i := 0; i < 4; i++ {
		sum := 0.0
		for j := 0; j < 4; j++ {
			sum += hadamard[i][j] * d[j]
		}
		m[i] = sum
	}

	for i := 0; i < 4; i++ {
		f.lines[i].write(xp + f.decay*m[i])
	}

	wet := 0.25 * (d[0] + d[1] + d[2] + d[3])
	return (1-f.mix)*x + f.mix*wet
}
