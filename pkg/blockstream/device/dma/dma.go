// Package dma implements device.Transmitter as a bounded transmit queue drained by a
// worker goroutine, the way an I2S peripheral drains its DMA descriptors. What happens
// to each block is decided by a Sink.
package dma

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/norasector/blockstream/pkg/blockstream/device"
	"github.com/norasector/blockstream/pkg/blockstream/pool"
)

const DefaultQueueDepth = 4

// Sink consumes the samples of each completed block.
type Sink interface {
	Open(cfg device.StreamConfig) error
	Write(samples []int16) error
	Close() error
	Name() string
}

type state int

const (
	stateIdle state = iota
	stateReady
	stateRunning
	stateStopped
)

type Controller struct {
	sink       Sink
	queueDepth int
	paced      bool
	logger     zerolog.Logger

	mu     sync.Mutex
	state  state
	cfg    device.StreamConfig
	queue  chan *pool.Block
	stop   chan device.Command
	done   chan struct{}
	fault  error
	opened bool

	completed atomic.Int64
	dropped   atomic.Int64
	underruns atomic.Int64
}

type Option func(c *Controller)

func WithQueueDepth(depth int) Option {
	return func(c *Controller) {
		if depth > 0 {
			c.queueDepth = depth
		}
	}
}

// WithoutPacing completes blocks as fast as the sink accepts them instead of once per
// block period.
func WithoutPacing() Option {
	return func(c *Controller) {
		c.paced = false
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

func New(sink Sink, opts ...Option) *Controller {
	c := &Controller{
		sink:       sink,
		queueDepth: DefaultQueueDepth,
		paced:      true,
		logger:     log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("device", sink.Name()).Logger()
	return c
}

func (c *Controller) Configure(cfg device.StreamConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateReady || c.state == stateRunning {
		return device.ErrBusy
	}
	if err := c.sink.Open(cfg); err != nil {
		return fmt.Errorf("%w: %s: %v", device.ErrUnsupported, c.sink.Name(), err)
	}

	c.opened = true
	c.cfg = cfg
	c.queue = make(chan *pool.Block, c.queueDepth)
	c.stop = make(chan device.Command, 1)
	c.done = nil
	c.fault = nil
	c.state = stateReady

	c.logger.Debug().
		Int("frame_rate", cfg.FrameRate).
		Int("channels", cfg.Channels).
		Int("block_size", cfg.BlockSize).
		Msg("transmitter configured")
	return nil
}

// Submit queues blk, waiting up to the configured timeout for a free slot.
func (c *Controller) Submit(ctx context.Context, blk *pool.Block) error {
	c.mu.Lock()
	st, queue, fault, timeout := c.state, c.queue, c.fault, c.cfg.Timeout
	c.mu.Unlock()

	switch {
	case fault != nil:
		return fault
	case st == stateIdle:
		return device.ErrNotConfigured
	case st == stateStopped:
		return device.ErrTransmitStopped
	}

	select {
	case queue <- blk:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case queue <- blk:
		return nil
	case <-timer.C:
		return device.ErrSubmitTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) Trigger(cmd device.Command) error {
	switch cmd {
	case device.CommandStart:
		return c.start()
	case device.CommandDrain, device.CommandDrop:
		return c.halt(cmd)
	default:
		return fmt.Errorf("%w: %s", device.ErrInvalidTrigger, cmd)
	}
}

func (c *Controller) start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateReady {
		return fmt.Errorf("%w: start", device.ErrInvalidTrigger)
	}
	c.state = stateRunning
	c.done = make(chan struct{})
	go c.run(c.queue, c.stop, c.done, c.cfg)
	return nil
}

func (c *Controller) halt(cmd device.Command) error {
	c.mu.Lock()
	st, done := c.state, c.done
	switch st {
	case stateRunning:
		c.stop <- cmd
	case stateReady:
	default:
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", device.ErrInvalidTrigger, cmd)
	}
	c.state = stateStopped
	c.mu.Unlock()

	if done != nil {
		<-done
	}
	c.releaseQueued()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opened {
		c.opened = false
		if err := c.sink.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", c.sink.Name(), err)
		}
	}

	c.logger.Debug().
		Str("trigger", cmd.String()).
		Int64("completed", c.completed.Load()).
		Int64("dropped", c.dropped.Load()).
		Int64("underruns", c.underruns.Load()).
		Msg("transmitter stopped")
	return nil
}

func (c *Controller) releaseQueued() {
	for {
		select {
		case blk := <-c.queue:
			c.dropped.Add(1)
			blk.Release()
		default:
			return
		}
	}
}

func (c *Controller) run(queue chan *pool.Block, stop chan device.Command, done chan struct{}, cfg device.StreamConfig) {
	defer close(done)

	period := cfg.BlockPeriod()
	next := time.Now()
	draining := false

	for {
		var blk *pool.Block
		select {
		case blk = <-queue:
		default:
			if draining {
				return
			}
			select {
			case blk = <-queue:
			case cmd := <-stop:
				if cmd == device.CommandDrop {
					return
				}
				draining = true
				continue
			}
			if !draining && c.paced {
				// The queue ran dry while clocking: the line was silent.
				c.underruns.Add(1)
				next = time.Now()
			}
		}

		if !draining {
			select {
			case cmd := <-stop:
				if cmd == device.CommandDrop {
					c.dropped.Add(1)
					blk.Release()
					return
				}
				draining = true
			default:
			}
		}

		if err := c.complete(blk); err != nil {
			c.logger.Error().Err(err).Msg("sink write failed")
			c.mu.Lock()
			c.fault = fmt.Errorf("%s: %w", c.sink.Name(), err)
			c.mu.Unlock()
			return
		}

		if c.paced && period > 0 {
			next = next.Add(period)
			if d := time.Until(next); d > 0 {
				time.Sleep(d)
			}
		}
	}
}

func (c *Controller) complete(blk *pool.Block) error {
	defer blk.Release()
	if err := c.sink.Write(blk.Data()); err != nil {
		return err
	}
	c.completed.Add(1)
	return nil
}

// Completed is the number of blocks written to the sink.
func (c *Controller) Completed() int64 {
	return c.completed.Load()
}

// Dropped is the number of queued blocks released without being written.
func (c *Controller) Dropped() int64 {
	return c.dropped.Load()
}

// Underruns counts the times the queue was empty while the transmitter was running.
func (c *Controller) Underruns() int64 {
	return c.underruns.Load()
}

// NullSink discards samples. Paired with pacing it stands in for a real peripheral.
type NullSink struct{}

func (NullSink) Open(device.StreamConfig) error { return nil }
func (NullSink) Write([]int16) error            { return nil }
func (NullSink) Close() error                   { return nil }
func (NullSink) Name() string                   { return "null" }
