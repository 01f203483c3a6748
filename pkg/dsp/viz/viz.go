// Package viz renders submitted audio blocks as PNG plots for the control server.
package viz

import (
	"bytes"
	"errors"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
)

var ErrNotEnoughData = errors.New("not enough samples to plot")

type PlotOptions func(p *plot.Plot)

type ImageContainer struct {
	Name string
	Data []byte
}

// Producer renders one named plot on demand.
type Producer interface {
	Name() string
	GetImage() (*ImageContainer, error)
	AddPlotOption(opt PlotOptions)
}

func plotWithDefaults() *plot.Plot {

	p := plot.New()
	p.BackgroundColor = color.Black
	p.Title.TextStyle.Color = color.White
	p.Y.Label.TextStyle.Color = color.White
	p.Y.Color = color.White
	p.X.Label.TextStyle.Color = color.White
	p.X.Color = color.White
	p.Legend.TextStyle.Color = color.White
	p.X.Tick.Color = color.White
	p.Y.Tick.Color = color.White
	p.X.Tick.Label.Color = color.White
	p.Y.Tick.Label.Color = color.White

	return p
}

func render(name string, p *plot.Plot) (*ImageContainer, error) {
	var imageData bytes.Buffer
	w, err := p.WriterTo(8*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return nil, err
	}
	if _, err := w.WriteTo(&imageData); err != nil {
		return nil, err
	}
	return &ImageContainer{Name: name, Data: imageData.Bytes()}, nil
}

// mono returns channel ch of interleaved samples scaled to [-1, 1).
func mono(samples []int16, channels, ch int) []float64 {
	if channels <= 0 {
		channels = 1
	}
	out := make([]float64, 0, len(samples)/channels)
	for i := ch; i < len(samples); i += channels {
		out = append(out, float64(samples[i])/32768)
	}
	return out
}
