package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/norasector/blockstream/pkg/blockstream/pool"
)

// Command is a trigger issued to the transmit path.
type Command int

const (
	// CommandStart begins clocking queued blocks out.
	CommandStart Command = iota
	// CommandDrain plays every queued block and then stops.
	CommandDrain
	// CommandDrop stops immediately and discards queued blocks.
	CommandDrop
)

func (c Command) String() string {
	switch c {
	case CommandStart:
		return "start"
	case CommandDrain:
		return "drain"
	case CommandDrop:
		return "drop"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

var (
	ErrNotConfigured   = errors.New("transmitter not configured")
	ErrBusy            = errors.New("transmitter busy")
	ErrSubmitTimeout   = errors.New("timed out waiting for transmit queue")
	ErrUnsupported     = errors.New("unsupported stream configuration")
	ErrInvalidTrigger  = errors.New("invalid trigger for transmitter state")
	ErrTransmitStopped = errors.New("transmitter stopped")
)

// Transmitter is the hardware transmit path.
//
// A successful Submit hands ownership of the block to the transmitter, which releases
// it back to its pool once the block has been clocked out (or dropped). When Submit
// returns an error the caller still owns the block.
type Transmitter interface {
	Configure(cfg StreamConfig) error
	Submit(ctx context.Context, blk *pool.Block) error
	Trigger(cmd Command) error
}

// StreamConfig describes the PCM stream the transmit path is clocked for.
type StreamConfig struct {
	WordSize  int           `yaml:"word_size"`
	Channels  int           `yaml:"channels"`
	FrameRate int           `yaml:"frame_rate"`
	BlockSize int           `yaml:"block_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

const (
	DefaultFrameRate = 44100
	DefaultWordSize  = 16
	DefaultChannels  = 2
	DefaultTimeout   = 2000 * time.Millisecond

	// blocksPerSecond gives a 25ms block period.
	blocksPerSecond = 40
)

// DefaultStreamConfig is 44.1kHz, 16 bit stereo with a 25ms block.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		WordSize:  DefaultWordSize,
		Channels:  DefaultChannels,
		FrameRate: DefaultFrameRate,
		BlockSize: (DefaultFrameRate / blocksPerSecond) * DefaultChannels * DefaultWordSize / 8,
		Timeout:   DefaultTimeout,
	}
}

func (c StreamConfig) bytesPerSample() int {
	return c.WordSize / 8
}

// BlockSamples is the number of interleaved samples in one block.
func (c StreamConfig) BlockSamples() int {
	if c.WordSize <= 0 {
		return 0
	}
	return c.BlockSize / c.bytesPerSample()
}

// BlockFrames is the number of frames (one sample per channel) in one block.
func (c StreamConfig) BlockFrames() int {
	if c.Channels <= 0 {
		return 0
	}
	return c.BlockSamples() / c.Channels
}

// BlockPeriod is the playback time of one full block.
func (c StreamConfig) BlockPeriod() time.Duration {
	if c.FrameRate <= 0 {
		return 0
	}
	return time.Duration(c.BlockFrames()) * time.Second / time.Duration(c.FrameRate)
}

// WithFormat returns a copy retuned to a different rate and channel count, keeping
// the same number of frames per block.
func (c StreamConfig) WithFormat(frameRate, channels int) StreamConfig {
	if frameRate <= 0 || channels <= 0 {
		return c
	}
	frames := c.BlockFrames()
	c.FrameRate = frameRate
	c.Channels = channels
	c.BlockSize = frames * channels * c.bytesPerSample()
	return c
}

func (c StreamConfig) Validate() error {
	switch {
	case c.WordSize != 16:
		return fmt.Errorf("%w: word size %d (only 16 bit supported)", ErrUnsupported, c.WordSize)
	case c.Channels < 1 || c.Channels > 2:
		return fmt.Errorf("%w: %d channels", ErrUnsupported, c.Channels)
	case c.FrameRate <= 0:
		return fmt.Errorf("%w: frame rate %d", ErrUnsupported, c.FrameRate)
	case c.BlockSize <= 0 || c.BlockSize%(c.bytesPerSample()*c.Channels) != 0:
		return fmt.Errorf("%w: block size %d is not a whole number of frames", ErrUnsupported, c.BlockSize)
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout %s", ErrUnsupported, c.Timeout)
	}
	return nil
}
