//go:build headless

package speaker

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/norasector/blockstream/pkg/blockstream/device"
)

// Sink is unavailable in headless builds; Open always fails.
type Sink struct{}

type Option func(s *Sink)

func WithLogger(zerolog.Logger) Option {
	return func(*Sink) {}
}

func New(opts ...Option) *Sink {
	return &Sink{}
}

func (s *Sink) Open(device.StreamConfig) error {
	return fmt.Errorf("%w: built without sound card support", device.ErrUnsupported)
}

func (s *Sink) Write([]int16) error { return device.ErrNotConfigured }
func (s *Sink) Close() error        { return nil }
func (s *Sink) Name() string        { return "speaker" }
