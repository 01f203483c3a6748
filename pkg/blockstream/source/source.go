package source

import (
	"errors"
)

var (
	// ErrExhausted marks the normal end of a finite source. It is not a failure.
	ErrExhausted = errors.New("source exhausted")
	// ErrDecode means the source could not produce samples it promised.
	ErrDecode = errors.New("decode error")
)

// Format is the PCM layout a source produces.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// Source produces interleaved 16 bit samples into caller owned blocks.
type Source interface {
	// Fill writes up to len(samples) samples and returns how many it wrote. A finite
	// source returns (0, ErrExhausted) once it has nothing left.
	Fill(samples []int16) (int, error)
	Format() Format
	Name() string
}
