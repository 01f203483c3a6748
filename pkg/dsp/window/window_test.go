package window

import (
	"math"
	"testing"
)

func TestWindows(t *testing.T) {
	tests := []struct {
		name     string
		typ      Type
		wantEdge float64
		wantGain float64
	}{
		{"hamming", Hamming, 0.08, 0.54},
		{"hann", Hann, 0, 0.5},
		{"blackman", Blackman, 0, 0.42},
		{"blackman-harris", BlackmanHarris, 0.00006, 0.35875},
		{"rectangular", Rectangular, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, err := ByName(tt.name)
			if err != nil || typ != tt.typ {
				t.Fatalf("ByName() = %v, %v", typ, err)
			}
			const n = 1025
			w := typ.Func()(n)
			if len(w) != n {
				t.Fatalf("len = %d", len(w))
			}
			if math.Abs(w[0]-tt.wantEdge) > 1e-4 || math.Abs(w[n-1]-tt.wantEdge) > 1e-4 {
				t.Errorf("edges = %f, %f, want %f", w[0], w[n-1], tt.wantEdge)
			}
			if math.Abs(w[n/2]-1) > 1e-3 {
				t.Errorf("centre = %f, want 1", w[n/2])
			}
			for i := 0; i < n/2; i++ {
				if math.Abs(w[i]-w[n-1-i]) > 1e-9 {
					t.Fatalf("not symmetric at %d", i)
				}
			}
			if g := CoherentGain(w); math.Abs(g-tt.wantGain) > 2e-3 {
				t.Errorf("CoherentGain() = %f, want %f", g, tt.wantGain)
			}
		})
	}
}

func TestByNameUnknown(t *testing.T) {
	if _, err := ByName("kaiser"); err == nil {
		t.Error("ByName(kaiser) succeeded")
	}
}

func TestSingleTap(t *testing.T) {
	if w := BlackmanWindow(1); len(w) != 1 || w[0] != 1 {
		t.Errorf("BlackmanWindow(1) = %v", w)
	}
}
