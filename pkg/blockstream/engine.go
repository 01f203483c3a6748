// Package blockstream streams PCM from a sample source to a block oriented transmit path.
//
// An Engine runs at most one Session at a time. A session allocates blocks from a fixed
// pool, fills them from its source and submits them to the transmitter in fill order,
// starting the transmitter after the first successful submit and stopping it exactly
// once when the session ends.
package blockstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/norasector/blockstream/pkg/blockstream/device"
	"github.com/norasector/blockstream/pkg/blockstream/pool"
	"github.com/norasector/blockstream/pkg/blockstream/source"
	"github.com/norasector/blockstream/pkg/metrics"
)

// Reason is why a session ended.
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonExhausted is the normal end of a finite source.
	ReasonExhausted
	// ReasonStopped means a stop was requested or the engine context was cancelled.
	ReasonStopped
	// ReasonError means the session failed; Status.Err holds the cause.
	ReasonError
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonExhausted:
		return "exhausted"
	case ReasonStopped:
		return "stopped"
	case ReasonError:
		return "error"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Status is the terminal report of a session.
type Status struct {
	ID       uuid.UUID     `json:"id"`
	Source   string        `json:"source"`
	Blocks   int64         `json:"blocks"`
	Reason   Reason        `json:"reason"`
	Err      error         `json:"-"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
}

// BlockObserver sees every block after it is filled and before it is submitted. The
// samples are only valid for the duration of the call.
type BlockObserver interface {
	ObserveBlock(cfg device.StreamConfig, samples []int16)
}

type Options struct {
	// Stream is the transmit configuration; rate and channel count are replaced by the
	// source's for each session.
	Stream        device.StreamConfig
	ToneAmplitude int
}

type Engine struct {
	dev       device.Transmitter
	pool      *pool.Pool
	trigger   *TriggerController
	opts      Options
	writeAPI  api.WriteAPI
	observers []BlockObserver
	onEnd     func(Status)
	logger    zerolog.Logger

	mu      sync.Mutex
	session *Session
}

type EngineOption func(e *Engine) error

func WithInfluxDB(writeAPI api.WriteAPI) EngineOption {
	return func(e *Engine) error {
		e.writeAPI = writeAPI
		return nil
	}
}

func WithLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

func WithObserver(o BlockObserver) EngineOption {
	return func(e *Engine) error {
		if o == nil {
			return fmt.Errorf("nil block observer")
		}
		e.observers = append(e.observers, o)
		return nil
	}
}

// OnSessionEnd registers fn to run on the session goroutine after a session has
// published its status.
func OnSessionEnd(fn func(Status)) EngineOption {
	return func(e *Engine) error {
		e.onEnd = fn
		return nil
	}
}

func NewEngine(dev device.Transmitter, p *pool.Pool, options Options, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		dev:      dev,
		pool:     p,
		trigger:  NewTriggerController(dev),
		opts:     options,
		writeAPI: &metrics.NopWriteAPI{}, // overwritten with option
		logger:   log.Logger,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	if dev == nil || p == nil {
		return nil, fmt.Errorf("must specify transmitter and block pool")
	}
	if err := e.opts.Stream.Validate(); err != nil {
		return nil, err
	}
	if e.opts.Stream.BlockSamples() > p.BlockSamples() {
		return nil, fmt.Errorf("block of %d samples does not fit pool blocks of %d",
			e.opts.Stream.BlockSamples(), p.BlockSamples())
	}
	if e.opts.ToneAmplitude <= 0 {
		e.opts.ToneAmplitude = source.DefaultToneAmplitude
	}
	return e, nil
}

// Start begins a session playing src. Configuration failures return ErrConfig and no
// session is created. ctx bounds the session's blocking waits; cancelling it ends the
// session as stopped.
func (e *Engine) Start(ctx context.Context, src source.Source) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil && !e.session.finished() {
		return nil, ErrSessionActive
	}

	format := src.Format()
	if format.BitsPerSample != 0 && format.BitsPerSample != e.opts.Stream.WordSize {
		return nil, fmt.Errorf("%w: %d bit source on a %d bit stream", ErrConfig, format.BitsPerSample, e.opts.Stream.WordSize)
	}
	cfg := e.opts.Stream.WithFormat(format.SampleRate, format.Channels)
	if cfg.BlockSamples() > e.pool.BlockSamples() {
		return nil, fmt.Errorf("%w: %d samples per block exceeds pool block of %d", ErrConfig, cfg.BlockSamples(), e.pool.BlockSamples())
	}
	if err := e.trigger.Configure(cfg); err != nil {
		return nil, err
	}

	s := newSession(src.Name())
	e.session = s

	logger := e.logger.With().Str("session", s.id.String()).Str("source", s.source).Logger()
	logger.Info().
		Int("frame_rate", cfg.FrameRate).
		Int("channels", cfg.Channels).
		Int("block_frames", cfg.BlockFrames()).
		Msg("session started")

	go e.run(ctx, s, src, cfg, logger)
	return s, nil
}

// StartTone plays a sine at frequency on every channel of the engine's stream. A zero
// duration plays until stopped.
func (e *Engine) StartTone(ctx context.Context, frequency float64, duration time.Duration) (*Session, error) {
	tone, err := source.NewTone(e.opts.Stream.FrameRate, e.opts.Stream.Channels, frequency,
		source.WithAmplitude(e.opts.ToneAmplitude),
		source.WithDuration(duration))
	if err != nil {
		return nil, err
	}
	return e.Start(ctx, tone)
}

// StartFile parses the WAVE container in r before starting a session on its payload.
// Parse failures wrap wav.ErrFormat and leave no session behind. r is closed when the
// session ends, or immediately if no session starts.
func (e *Engine) StartFile(ctx context.Context, name string, r io.Reader) (*Session, error) {
	f, err := source.OpenFile(name, r)
	if err != nil {
		if c, ok := r.(io.Closer); ok {
			c.Close()
		}
		return nil, err
	}
	s, err := e.Start(ctx, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// RequestStop asks the active session to stop. It returns false if nothing is playing.
func (e *Engine) RequestStop() bool {
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()
	if s == nil || s.finished() {
		return false
	}
	s.RequestStop()
	return true
}

// Session returns the most recent session, which may have finished, or nil.
func (e *Engine) Session() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Playing reports whether a session is active.
func (e *Engine) Playing() bool {
	s := e.Session()
	return s != nil && !s.finished()
}

func (e *Engine) TriggerState() TriggerState {
	return e.trigger.State()
}

func (e *Engine) Pool() *pool.Pool {
	return e.pool
}

// Shutdown stops the active session, if any, and waits for it to end or for ctx.
func (e *Engine) Shutdown(ctx context.Context) error {
	s := e.Session()
	if s == nil {
		return nil
	}
	s.RequestStop()
	select {
	case <-s.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) run(ctx context.Context, s *Session, src source.Source, cfg device.StreamConfig, logger zerolog.Logger) {
	reason, err := e.loop(ctx, s, src, cfg, logger)

	mode := StopDrop
	if reason == ReasonExhausted {
		mode = StopDrain
	}
	if stopErr := e.trigger.Stop(mode); stopErr != nil {
		logger.Error().Err(stopErr).Str("mode", mode.String()).Msg("failed to stop transmitter")
		if err == nil {
			reason, err = ReasonError, stopErr
		}
	}

	if c, ok := src.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("failed to close source")
		}
	}

	status := s.finish(reason, err)

	ev := logger.Info()
	if err != nil {
		ev = logger.Error().Err(err)
	}
	ev.Int64("blocks", status.Blocks).
		Str("reason", status.Reason.String()).
		Dur("duration", status.Duration).
		Msg("session ended")

	errText := ""
	if err != nil {
		errText = err.Error()
	}
	go e.writeAPI.WritePoint(metrics.Point(metrics.MeasurementSession,
		map[string]string{
			"session": status.ID.String(),
			"source":  status.Source,
			"reason":  status.Reason.String(),
		},
		map[string]interface{}{
			"blocks":      status.Blocks,
			"duration_ms": status.Duration.Milliseconds(),
			"error":       errText,
		}))

	if e.onEnd != nil {
		e.onEnd(status)
	}
}

// loop produces blocks until the source ends, a stop is requested or something fails.
// Every block it allocates is either submitted or released before it returns.
func (e *Engine) loop(ctx context.Context, s *Session, src source.Source, cfg device.StreamConfig, logger zerolog.Logger) (Reason, error) {
	want := cfg.BlockSamples()
	tags := map[string]string{"session": s.id.String(), "source": s.source}

	for {
		if s.stopRequested() || ctx.Err() != nil {
			return ReasonStopped, nil
		}

		blk, err := e.pool.Allocate(ctx, cfg.Timeout)
		if err != nil {
			if errors.Is(err, pool.ErrTimeout) {
				return ReasonError, fmt.Errorf("%w: %w", ErrAllocationTimeout, err)
			}
			return ReasonStopped, nil
		}

		var n int
		fillUs := metrics.TimeOperationMicroseconds(func() {
			n, err = src.Fill(blk.Samples[:want])
		})
		switch {
		case errors.Is(err, source.ErrExhausted):
			blk.Release()
			return ReasonExhausted, nil
		case err != nil:
			blk.Release()
			if !errors.Is(err, source.ErrDecode) {
				err = fmt.Errorf("%w: %w", source.ErrDecode, err)
			}
			return ReasonError, err
		case n == 0:
			blk.Release()
			return ReasonExhausted, nil
		}
		blk.Len = n

		for _, o := range e.observers {
			o.ObserveBlock(cfg, blk.Data())
		}

		submitUs := metrics.TimeOperationMicroseconds(func() {
			err = e.dev.Submit(ctx, blk)
		})
		if err != nil {
			blk.Release()
			if ctx.Err() != nil {
				return ReasonStopped, nil
			}
			return ReasonError, fmt.Errorf("%w: submit: %w", ErrTransmit, err)
		}

		if s.blocks.Add(1) == 1 {
			if err := e.trigger.Start(); err != nil {
				return ReasonError, err
			}
			logger.Debug().Msg("transmitter started")
		}

		go e.writeAPI.WritePoint(metrics.Point(metrics.MeasurementBlock, tags,
			map[string]interface{}{
				"samples":     n,
				"fill_us":     fillUs,
				"submit_us":   submitUs,
				"outstanding": e.pool.Outstanding(),
			}))
	}
}

// Session is one playback from start to its terminal Status.
type Session struct {
	id      uuid.UUID
	source  string
	started time.Time

	stop   atomic.Bool
	blocks atomic.Int64
	done   chan struct{}
	status Status
}

func newSession(sourceName string) *Session {
	return &Session{
		id:      uuid.New(),
		source:  sourceName,
		started: time.Now(),
		done:    make(chan struct{}),
	}
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) Source() string {
	return s.source
}

// Blocks is the number of blocks submitted so far.
func (s *Session) Blocks() int64 {
	return s.blocks.Load()
}

// RequestStop sets the stop flag; the session ends before its next block.
func (s *Session) RequestStop() {
	s.stop.Store(true)
}

func (s *Session) stopRequested() bool {
	return s.stop.Load()
}

// Done is closed once the session's status is published.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session ends and returns its status.
func (s *Session) Wait() Status {
	<-s.done
	return s.status
}

// Status returns the terminal status and true once the session has ended, or a live
// snapshot and false while it runs.
func (s *Session) Status() (Status, bool) {
	select {
	case <-s.done:
		return s.status, true
	default:
	}
	return Status{
		ID:       s.id,
		Source:   s.source,
		Blocks:   s.blocks.Load(),
		Started:  s.started,
		Duration: time.Since(s.started),
	}, false
}

func (s *Session) finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) finish(reason Reason, err error) Status {
	s.status = Status{
		ID:       s.id,
		Source:   s.source,
		Blocks:   s.blocks.Load(),
		Reason:   reason,
		Err:      err,
		Started:  s.started,
		Duration: time.Since(s.started),
	}
	close(s.done)
	return s.status
}
