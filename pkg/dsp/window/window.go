// Package window holds the tapering windows applied to a block before it is
// transformed.
package window

import (
	"fmt"
	"math"
)

type Func func(n int) []float64

type Type int

const (
	Hamming Type = iota
	Hann
	Blackman
	BlackmanHarris
	Rectangular
)

var names = map[string]Type{
	"hamming":         Hamming,
	"hann":            Hann,
	"blackman":        Blackman,
	"blackman-harris": BlackmanHarris,
	"rectangular":     Rectangular,
}

// ByName maps a config name such as "blackman-harris" to its window.
func ByName(name string) (Type, error) {
	t, ok := names[name]
	if !ok {
		return 0, fmt.Errorf("unknown window %q", name)
	}
	return t, nil
}

func (t Type) Func() Func {
	switch t {
	case Hamming:
		return HammingWindow
	case Hann:
		return HannWindow
	case Blackman:
		return BlackmanWindow
	case BlackmanHarris:
		return func(n int) []float64 { return cosWindow(n, 0.35875, 0.48829, 0.14128, 0.01168) }
	default:
		return RectangularWindow
	}
}

// cosWindow is the generalised cosine window sum((-1)^k c[k] cos(2 pi k i / (n-1))).
func cosWindow(n int, c ...float64) []float64 {
	ret := make([]float64, n)
	if n == 1 {
		ret[0] = 1
		return ret
	}
	M := float64(n - 1)

	for i := 0; i < n; i++ {
		fi := float64(i)
		sign := 1.0
		for k, ck := range c {
			ret[i] += sign * ck * math.Cos(2*math.Pi*float64(k)*fi/M)
			sign = -sign
		}
	}
	return ret
}

func BlackmanWindow(n int) []float64 {
	return cosWindow(n, 0.42, 0.5, 0.08)
}

func HammingWindow(n int) []float64 {
	return cosWindow(n, 0.54, 0.46)
}

func HannWindow(n int) []float64 {
	return cosWindow(n, 0.5, 0.5)
}

func RectangularWindow(n int) []float64 {
	ret := make([]float64, n)
	for i := range ret {
		ret[i] = 1
	}
	return ret
}

// CoherentGain is the mean of w; dividing a windowed spectrum by n times it restores the
// amplitude of a pure tone.
func CoherentGain(w []float64) float64 {
	if len(w) == 0 {
		return 0
	}
	var sum float64
	for _, v := range w {
		sum += v
	}
	return sum / float64(len(w))
}
