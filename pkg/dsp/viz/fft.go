package viz

import (
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"

	"github.com/norasector/blockstream/pkg/blockstream/device"
	"github.com/norasector/blockstream/pkg/dsp/window"
)

// MIX_AVG is the weight of the newest spectrum in the running average.
const MIX_AVG = 0.10

// SpectrumPlotter shows the averaged power spectrum of the last len frames of one
// channel.
type SpectrumPlotter struct {
	name        string
	len         int
	channel     int
	fft         *fourier.FFT
	win         []float64
	gain        float64
	plotOptions []PlotOptions

	mu           sync.Mutex
	bufFloat     []float64
	filled       int
	sampleRate   int
	averagePower []float64
}

func NewSpectrumPlotter(name string, len int, wt window.Type) *SpectrumPlotter {
	win := wt.Func()(len)
	return &SpectrumPlotter{
		name:         name,
		len:          len,
		fft:          fourier.NewFFT(len),
		win:          win,
		gain:         window.CoherentGain(win),
		bufFloat:     make([]float64, len),
		averagePower: make([]float64, len/2+1),
	}
}

func (s *SpectrumPlotter) Name() string {
	return s.name
}

func (s *SpectrumPlotter) SetChannel(ch int) {
	s.mu.Lock()
	s.channel = ch
	s.mu.Unlock()
}

func (s *SpectrumPlotter) AddPlotOption(opt PlotOptions) {
	s.plotOptions = append(s.plotOptions, opt)
}

func (s *SpectrumPlotter) ObserveBlock(cfg device.StreamConfig, samples []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.FrameRate != s.sampleRate {
		s.sampleRate = cfg.FrameRate
		s.filled = 0
		for i := range s.averagePower {
			s.averagePower[i] = 0
		}
	}
	s.appendFloat(mono(samples, cfg.Channels, s.channel))
}

func (s *SpectrumPlotter) appendFloat(f []float64) {
	if len(f) >= s.len {
		copy(s.bufFloat, f[len(f)-s.len:])
	} else {
		copy(s.bufFloat, s.bufFloat[len(f):])
		copy(s.bufFloat[s.len-len(f):], f)
	}
	s.filled += len(f)
}

// spectrum folds the current buffer into the running average and returns the
// frequency in Hz and averaged magnitude of every bin.
func (s *SpectrumPlotter) spectrum() ([]float64, []float64, error) {
	if s.filled < s.len {
		return nil, nil, fmt.Errorf("%w: %s has %d of %d", ErrNotEnoughData, s.name, s.filled, s.len)
	}

	data := make([]float64, s.len)
	for i := range data {
		data[i] = s.bufFloat[i] * s.win[i]
	}
	coeffs := s.fft.Coefficients(nil, data)

	freqs := make([]float64, len(coeffs))
	norm := float64(s.len) * s.gain / 2
	for i, c := range coeffs {
		mag := cmplx.Abs(c) / norm
		s.averagePower[i] = ((1.0 - MIX_AVG) * s.averagePower[i]) + (MIX_AVG * mag)
		freqs[i] = s.fft.Freq(i) * float64(s.sampleRate)
	}
	return freqs, append([]float64(nil), s.averagePower...), nil
}

// PeakFrequency is the centre of the strongest bin of the latest spectrum, skipping DC.
func (s *SpectrumPlotter) PeakFrequency() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	freqs, power, err := s.spectrum()
	if err != nil {
		return 0, err
	}
	peak := 1
	for i := 2; i < len(power); i++ {
		if power[i] > power[peak] {
			peak = i
		}
	}
	return freqs[peak], nil
}

func (s *SpectrumPlotter) GetImage() (*ImageContainer, error) {
	s.mu.Lock()
	freqs, power, err := s.spectrum()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	p := plotWithDefaults()
	p.Title.Text = s.name
	p.Y.Label.Text = "Power (dBFS)"
	p.X.Label.Text = "Frequency (Hz)"
	p.Y.Max = 0
	p.Y.Min = -120

	for _, opt := range s.plotOptions {
		opt(p)
	}

	grid := plotter.NewGrid()
	p.Add(grid)

	points := make(plotter.XYs, 0, len(freqs))
	for i := range freqs {
		if power[i] <= 0 {
			continue
		}
		points = append(points, plotter.XY{X: freqs[i], Y: 20 * math.Log10(power[i])})
	}
	if err := plotutil.AddLines(p, "spectrum", points); err != nil {
		return nil, err
	}
	return render(s.name, p)
}
