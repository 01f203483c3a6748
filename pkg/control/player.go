// Package control exposes playback start and stop over HTTP and a line shell.
package control

import (
	"context"
	"errors"
	"time"

	"github.com/norasector/blockstream/pkg/blockstream"
	"github.com/norasector/blockstream/pkg/storage"
)

// Status is a snapshot of the player.
type Status struct {
	Playing         bool                `json:"playing"`
	Trigger         string              `json:"trigger"`
	Session         *blockstream.Status `json:"session,omitempty"`
	Error           string              `json:"error,omitempty"`
	PoolOutstanding int                 `json:"pool_outstanding"`
	PoolCapacity    int                 `json:"pool_capacity"`
}

// Outcome reports whether a command changed anything. Starting while playing and
// stopping while stopped are not errors.
type Outcome struct {
	Changed bool   `json:"changed"`
	Status  Status `json:"status"`
}

type Player interface {
	StartTone(frequency float64, duration time.Duration) (Outcome, error)
	StartFile(name string) (Outcome, error)
	Stop(ctx context.Context) (Outcome, error)
	Status() Status
	List(dir string) ([]storage.Entry, error)
}

// EnginePlayer drives a blockstream.Engine, playing files from a storage volume.
type EnginePlayer struct {
	ctx    context.Context
	engine *blockstream.Engine
	volume *storage.Volume

	toneFrequency float64
	toneDuration  time.Duration
	defaultFile   string
}

type PlayerOption func(p *EnginePlayer)

// WithToneDefaults sets what start_tone plays when given no arguments.
func WithToneDefaults(frequency float64, duration time.Duration) PlayerOption {
	return func(p *EnginePlayer) {
		p.toneFrequency = frequency
		p.toneDuration = duration
	}
}

// WithDefaultFile sets what play starts when given no file name.
func WithDefaultFile(name string) PlayerOption {
	return func(p *EnginePlayer) {
		p.defaultFile = name
	}
}

// NewEnginePlayer runs sessions under ctx, so they outlive the request that started them
// but end with the process.
func NewEnginePlayer(ctx context.Context, engine *blockstream.Engine, volume *storage.Volume, opts ...PlayerOption) *EnginePlayer {
	p := &EnginePlayer{
		ctx:           ctx,
		engine:        engine,
		volume:        volume,
		toneFrequency: 440,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *EnginePlayer) StartTone(frequency float64, duration time.Duration) (Outcome, error) {
	if frequency == 0 {
		frequency = p.toneFrequency
		if duration == 0 {
			duration = p.toneDuration
		}
	}
	if p.engine.Playing() {
		return Outcome{Status: p.Status()}, nil
	}
	_, err := p.engine.StartTone(p.ctx, frequency, duration)
	return p.outcome(err)
}

func (p *EnginePlayer) StartFile(name string) (Outcome, error) {
	if name == "" {
		name = p.defaultFile
	}
	if name == "" {
		return Outcome{}, errors.New("no file given and no default playback file configured")
	}
	if p.engine.Playing() {
		return Outcome{Status: p.Status()}, nil
	}
	f, err := p.volume.Open(name)
	if err != nil {
		return Outcome{}, err
	}
	_, err = p.engine.StartFile(p.ctx, name, f)
	return p.outcome(err)
}

func (p *EnginePlayer) outcome(err error) (Outcome, error) {
	switch {
	case errors.Is(err, blockstream.ErrSessionActive):
		return Outcome{Status: p.Status()}, nil
	case err != nil:
		return Outcome{}, err
	}
	return Outcome{Changed: true, Status: p.Status()}, nil
}

// Stop requests a stop and waits for the session to end or for ctx.
func (p *EnginePlayer) Stop(ctx context.Context) (Outcome, error) {
	s := p.engine.Session()
	if !p.engine.RequestStop() {
		return Outcome{Status: p.Status()}, nil
	}
	select {
	case <-s.Done():
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
	return Outcome{Changed: true, Status: p.Status()}, nil
}

func (p *EnginePlayer) Status() Status {
	st := Status{
		Playing:         p.engine.Playing(),
		Trigger:         p.engine.TriggerState().String(),
		PoolOutstanding: p.engine.Pool().Outstanding(),
		PoolCapacity:    p.engine.Pool().Cap(),
	}
	if s := p.engine.Session(); s != nil {
		ss, _ := s.Status()
		st.Session = &ss
		if ss.Err != nil {
			st.Error = ss.Err.Error()
		}
	}
	return st
}

func (p *EnginePlayer) List(dir string) ([]storage.Entry, error) {
	return p.volume.List(dir)
}
