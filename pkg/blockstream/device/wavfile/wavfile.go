// Package wavfile is a transmit sink that records every stream into a WAVE file.
package wavfile

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"

	"github.com/norasector/blockstream/pkg/blockstream/device"
	"github.com/norasector/blockstream/pkg/wav"
)

type Sink struct {
	path string

	f   *os.File
	enc *gowav.Encoder
	buf *audio.IntBuffer
}

// New records to path, truncating it each time a stream is opened.
func New(path string) *Sink {
	return &Sink{path: path}
}

func (s *Sink) Open(cfg device.StreamConfig) error {
	if s.f != nil {
		return fmt.Errorf("%s already open", s.path)
	}
	f, err := os.Create(s.path)
	if err != nil {
		return err
	}
	s.f = f
	s.enc = gowav.NewEncoder(f, cfg.FrameRate, cfg.WordSize, cfg.Channels, wav.AudioFormatPCM)
	s.buf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: cfg.Channels,
			SampleRate:  cfg.FrameRate,
		},
		Data:           make([]int, 0, cfg.BlockSamples()),
		SourceBitDepth: cfg.WordSize,
	}
	return nil
}

func (s *Sink) Write(samples []int16) error {
	if s.enc == nil {
		return device.ErrNotConfigured
	}
	s.buf.Data = s.buf.Data[:0]
	for _, v := range samples {
		s.buf.Data = append(s.buf.Data, int(v))
	}
	return s.enc.Write(s.buf)
}

// Close finalises the RIFF sizes and closes the file.
func (s *Sink) Close() error {
	if s.f == nil {
		return nil
	}
	encErr := s.enc.Close()
	closeErr := s.f.Close()
	s.f, s.enc = nil, nil
	if encErr != nil {
		return fmt.Errorf("finalising %s: %w", s.path, encErr)
	}
	return closeErr
}

func (s *Sink) Name() string {
	return "wavfile"
}

func (s *Sink) Path() string {
	return s.path
}
