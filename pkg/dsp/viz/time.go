package viz

import (
	"fmt"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"

	"github.com/norasector/blockstream/pkg/blockstream/device"
)

type PlotType int

const (
	PlotTypeDefault PlotType = iota
	PlotTypeScatter
	PlotTypeLines
)

// TimeDomainPlotter keeps the most recent size frames of one channel.
type TimeDomainPlotter struct {
	name        string
	size        int
	channel     int
	plotFunc    func(*plot.Plot, ...interface{}) error
	plotOptions []PlotOptions

	mu       sync.Mutex
	bufFloat []float64
}

func NewTimeDomainPlotter(name string, size int) *TimeDomainPlotter {
	ret := &TimeDomainPlotter{
		bufFloat: make([]float64, 0, size),
		size:     size,
		name:     name,
		plotFunc: plotutil.AddLines,
	}

	return ret
}

func (t *TimeDomainPlotter) Name() string {
	return t.name
}

// SetChannel selects which channel of interleaved blocks is plotted.
func (t *TimeDomainPlotter) SetChannel(ch int) {
	t.mu.Lock()
	t.channel = ch
	t.mu.Unlock()
}

func (t *TimeDomainPlotter) SetPlotType(tp PlotType) {
	switch tp {
	case PlotTypeScatter:
		t.plotFunc = plotutil.AddScatters
	default:
		t.plotFunc = plotutil.AddLines
	}
}

func (t *TimeDomainPlotter) ObserveBlock(cfg device.StreamConfig, samples []int16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendFloat(mono(samples, cfg.Channels, t.channel))
}

func (t *TimeDomainPlotter) appendFloat(f []float64) {
	t.bufFloat = append(t.bufFloat, f...)

	if len(t.bufFloat) > t.size {
		t.bufFloat = append(t.bufFloat[:0], t.bufFloat[len(t.bufFloat)-t.size:]...)
	}
}

func (t *TimeDomainPlotter) AddPlotOption(opt PlotOptions) {
	t.plotOptions = append(t.plotOptions, opt)
}

func (t *TimeDomainPlotter) GetImage() (*ImageContainer, error) {
	t.mu.Lock()
	if len(t.bufFloat) < t.size {
		have := len(t.bufFloat)
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s has %d of %d", ErrNotEnoughData, t.name, have, t.size)
	}
	points := make(plotter.XYs, t.size)
	for i := 0; i < t.size; i++ {
		points[i] = plotter.XY{X: float64(i), Y: t.bufFloat[i]}
	}
	t.mu.Unlock()

	p := plotWithDefaults()

	p.Title.Text = t.name
	p.Y.Label.Text = "Amplitude"
	p.Y.Min = -1.1
	p.Y.Max = 1.1
	p.X.Label.Text = "t"

	for _, opt := range t.plotOptions {
		opt(p)
	}

	grid := plotter.NewGrid()
	p.Add(grid)

	if err := t.plotFunc(p, "f(t)", points); err != nil {
		return nil, err
	}
	return render(t.name, p)
}
