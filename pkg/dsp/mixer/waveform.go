package mixer

import (
	"math"
)

const (
	tau float64 = math.Pi * 2
)

// Oscillator produces a sine wave one sample at a time. Phase is kept in [0, tau) so
// long runs do not lose precision.
type Oscillator struct {
	sampleRate     int
	frequency      float64
	phase          float64
	phaseIncrement float64
}

func NewOscillator(sampleRate int, frequency float64) *Oscillator {
	ret := &Oscillator{
		sampleRate:     sampleRate,
		frequency:      frequency,
		phaseIncrement: frequency * tau / float64(sampleRate),
		phase:          0.0,
	}

	return ret
}

func (w *Oscillator) incrementPhase() {
	w.phase += w.phaseIncrement
	if w.phase >= tau {
		w.phase = math.Mod(w.phase, tau)
	} else if w.phase < 0 {
		w.phase = math.Mod(w.phase, tau) + tau
		if w.phase >= tau {
			w.phase = 0
		}
	}
}

// Next returns sin(phase) and advances one sample.
func (w *Oscillator) Next() float64 {
	v := math.Sin(w.phase)
	w.incrementPhase()
	return v
}

// WorkBuffer fills output with consecutive samples scaled by amplitude.
func (w *Oscillator) WorkBuffer(output []float64, amplitude float64) int {
	for i := range output {
		output[i] = amplitude * w.Next()
	}
	return len(output)
}

func (w *Oscillator) Phase() float64 {
	return w.phase
}

func (w *Oscillator) PhaseIncrement() float64 {
	return w.phaseIncrement
}

func (w *Oscillator) Frequency() float64 {
	return w.frequency
}

func (w *Oscillator) SampleRate() int {
	return w.sampleRate
}
