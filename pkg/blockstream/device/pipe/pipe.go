// Package pipe is a transmit sink that writes raw little endian PCM to an io.Writer,
// e.g. stdout piped into aplay or ffplay.
package pipe

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/norasector/blockstream/pkg/blockstream/device"
	"github.com/norasector/blockstream/pkg/wav"
)

const defaultBufferedBlocks int = 8

type Sink struct {
	dest           io.Writer
	bufferedBlocks int
	header         bool
	leadIn         bool

	cfg    device.StreamConfig
	b      *bytes.Buffer
	bufNum int
}

type Option func(s *Sink)

// WithBufferedBlocks sets how many blocks are collected before each write to dest.
func WithBufferedBlocks(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.bufferedBlocks = n
		}
	}
}

// WithWAVHeader prefixes every stream with a WAVE header of unknown length, which most
// players accept on a pipe.
func WithWAVHeader() Option {
	return func(s *Sink) {
		s.header = true
	}
}

// WithLeadIn writes one second of silence when a stream opens so the receiving player
// has buffered audio before the first block arrives.
func WithLeadIn() Option {
	return func(s *Sink) {
		s.leadIn = true
	}
}

func New(dest io.Writer, opts ...Option) *Sink {
	s := &Sink{
		dest:           dest,
		bufferedBlocks: defaultBufferedBlocks,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sink) Open(cfg device.StreamConfig) error {
	s.cfg = cfg
	s.bufNum = 0
	if s.b == nil {
		s.b = bytes.NewBuffer(make([]byte, 0, cfg.BlockSize*s.bufferedBlocks+1))
	}
	s.b.Reset()

	if s.header {
		// A RIFF size of 0xffffffff marks a stream of unknown length.
		if err := wav.Encode(s.dest, cfg.Channels, cfg.FrameRate, cfg.WordSize, 0xffffffff-36); err != nil {
			return fmt.Errorf("writing stream header: %w", err)
		}
	}
	if s.leadIn {
		if _, err := s.dest.Write(make([]byte, cfg.FrameRate*cfg.Channels*cfg.WordSize/8)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Write(samples []int16) error {
	if err := binary.Write(s.b, binary.LittleEndian, samples); err != nil {
		return err
	}

	s.bufNum++
	if s.bufNum == s.bufferedBlocks {
		return s.flush()
	}
	return nil
}

func (s *Sink) flush() error {
	if s.bufNum > 0 {
		if _, err := s.b.WriteTo(s.dest); err != nil {
			return err
		}
		s.b.Reset()
		s.bufNum = 0
	}
	return nil
}

// Close flushes buffered blocks. dest is left open.
func (s *Sink) Close() error {
	if s.b == nil {
		return nil
	}
	return s.flush()
}

func (s *Sink) Name() string {
	return "pipe"
}
