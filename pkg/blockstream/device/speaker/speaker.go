//go:build !headless

// Package speaker is a transmit sink that plays blocks on the host sound card through
// oto. Writes block at the device's rate, so the transmitter using it should not pace.
package speaker

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/norasector/blockstream/pkg/blockstream/device"
)

// oto allows one context per process; it is created by the first Open and its format
// is fixed from then on.
var (
	otoMu       sync.Mutex
	otoCtx      *oto.Context
	otoRate     int
	otoChannels int
)

func sharedContext(rate, channels int) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx != nil {
		if rate != otoRate || channels != otoChannels {
			return nil, fmt.Errorf("%w: sound card opened at %dHz/%dch, stream wants %dHz/%dch",
				device.ErrUnsupported, otoRate, otoChannels, rate, channels)
		}
		return otoCtx, nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	otoCtx, otoRate, otoChannels = ctx, rate, channels
	return ctx, nil
}

type Sink struct {
	logger zerolog.Logger

	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	out        []byte
}

type Option func(s *Sink)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

func New(opts ...Option) *Sink {
	s := &Sink{logger: log.Logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sink) Open(cfg device.StreamConfig) error {
	ctx, err := sharedContext(cfg.FrameRate, cfg.Channels)
	if err != nil {
		return err
	}

	s.pipeReader, s.pipeWriter = io.Pipe()
	s.player = ctx.NewPlayer(s.pipeReader)
	s.player.Play()
	s.out = make([]byte, cfg.BlockSize)

	s.logger.Info().Int("frame_rate", cfg.FrameRate).Int("channels", cfg.Channels).Msg("speaker opened")
	return nil
}

func (s *Sink) Write(samples []int16) error {
	if s.pipeWriter == nil {
		return device.ErrNotConfigured
	}
	if cap(s.out) < len(samples)*2 {
		s.out = make([]byte, len(samples)*2)
	}
	out := s.out[:len(samples)*2]
	for i, v := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	if _, err := s.pipeWriter.Write(out); err != nil {
		return fmt.Errorf("pipe write failed: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.pipeWriter != nil {
		s.pipeWriter.Close()
		s.pipeWriter = nil
	}
	var err error
	if s.player != nil {
		err = s.player.Close()
		s.player = nil
	}
	if s.pipeReader != nil {
		s.pipeReader.Close()
		s.pipeReader = nil
	}
	return err
}

func (s *Sink) Name() string {
	return "speaker"
}
