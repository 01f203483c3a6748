package source

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/norasector/blockstream/pkg/wav"
)

// File streams the PCM payload of a WAVE container.
type File struct {
	name      string
	header    *wav.Header
	payload   io.Reader
	closer    io.Closer
	remaining int64
	buf       []byte
	failed    error
}

// OpenFile parses the container in r and returns a source over its payload. Only 16 bit
// PCM is accepted. If r is an io.Closer it is closed by Close.
func OpenFile(name string, r io.Reader) (*File, error) {
	h, payload, err := wav.Parse(r)
	if err != nil {
		return nil, err
	}
	if h.AudioFormat != wav.AudioFormatPCM {
		return nil, fmt.Errorf("%w: audio format %d is not PCM", wav.ErrFormat, h.AudioFormat)
	}
	if h.BitsPerSample != 16 {
		return nil, fmt.Errorf("%w: %d bits per sample, need 16", wav.ErrFormat, h.BitsPerSample)
	}
	if h.NumChannels == 0 || h.SampleRate == 0 {
		return nil, fmt.Errorf("%w: %d channels at %d Hz", wav.ErrFormat, h.NumChannels, h.SampleRate)
	}

	f := &File{
		name:      name,
		header:    h,
		payload:   payload,
		remaining: int64(h.DataSize),
	}
	if c, ok := r.(io.Closer); ok {
		f.closer = c
	}
	return f, nil
}

func (f *File) Fill(samples []int16) (int, error) {
	if f.failed != nil {
		return 0, f.failed
	}
	if f.remaining <= 0 || len(samples) == 0 {
		return 0, ErrExhausted
	}

	want := int64(len(samples) * 2)
	if want > f.remaining {
		want = f.remaining
	}
	if cap(f.buf) < int(want) {
		f.buf = make([]byte, want)
	}
	buf := f.buf[:want]

	n, err := io.ReadFull(f.payload, buf)
	f.remaining -= int64(n)

	switch {
	case err == nil:
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		// The stream is shorter than the declared payload.
		f.remaining = 0
	default:
		f.failed = fmt.Errorf("%w: %s: %v", ErrDecode, f.name, err)
		return 0, f.failed
	}

	// A trailing half sample is dropped.
	whole := n / 2
	if whole == 0 {
		return 0, ErrExhausted
	}

	for i := 0; i < whole; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}
	return whole, nil
}

func (f *File) Format() Format {
	return Format{
		SampleRate:    int(f.header.SampleRate),
		Channels:      int(f.header.NumChannels),
		BitsPerSample: int(f.header.BitsPerSample),
	}
}

func (f *File) Name() string {
	return f.name
}

func (f *File) Header() *wav.Header {
	return f.header
}

func (f *File) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}
