package source

import (
	"fmt"
	"math"
	"time"

	"github.com/norasector/blockstream/pkg/dsp/mixer"
)

const (
	DefaultToneFrequency = 440
	DefaultToneAmplitude = math.MaxInt16
)

// Tone is a sine generator. The same value is written to every channel of a frame and
// phase carries across Fill calls.
type Tone struct {
	osc       *mixer.Oscillator
	amplitude float64
	channels  int
	// remaining counts frames left when the tone has a duration, -1 otherwise.
	remaining int64
}

type ToneOption func(t *Tone)

func WithAmplitude(amplitude int) ToneOption {
	return func(t *Tone) {
		if amplitude > math.MaxInt16 {
			amplitude = math.MaxInt16
		}
		if amplitude < 0 {
			amplitude = 0
		}
		t.amplitude = float64(amplitude)
	}
}

// WithDuration makes the tone finite.
func WithDuration(d time.Duration) ToneOption {
	return func(t *Tone) {
		if d <= 0 {
			t.remaining = -1
			return
		}
		rate := int64(t.osc.SampleRate())
		t.remaining = (int64(d)*rate + int64(time.Second) - 1) / int64(time.Second)
	}
}

func NewTone(sampleRate, channels int, frequency float64, opts ...ToneOption) (*Tone, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("tone sample rate must be positive, got %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("tone channel count must be positive, got %d", channels)
	}
	if frequency <= 0 || frequency >= float64(sampleRate)/2 {
		return nil, fmt.Errorf("tone frequency %.1f outside (0, %d)", frequency, sampleRate/2)
	}

	t := &Tone{
		osc:       mixer.NewOscillator(sampleRate, frequency),
		amplitude: DefaultToneAmplitude,
		channels:  channels,
		remaining: -1,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Tone) Fill(samples []int16) (int, error) {
	frames := len(samples) / t.channels
	if t.remaining >= 0 {
		if t.remaining == 0 {
			return 0, ErrExhausted
		}
		if int64(frames) > t.remaining {
			frames = int(t.remaining)
		}
		t.remaining -= int64(frames)
	}

	for i := 0; i < frames; i++ {
		v := int16(t.amplitude * t.osc.Next())
		for ch := 0; ch < t.channels; ch++ {
			samples[i*t.channels+ch] = v
		}
	}
	return frames * t.channels, nil
}

func (t *Tone) Format() Format {
	return Format{
		SampleRate:    t.osc.SampleRate(),
		Channels:      t.channels,
		BitsPerSample: 16,
	}
}

func (t *Tone) Name() string {
	return fmt.Sprintf("tone %.0fHz", t.osc.Frequency())
}

// Phase exposes the oscillator phase, in radians.
func (t *Tone) Phase() float64 {
	return t.osc.Phase()
}
