package blockstream

import (
	"fmt"
	"sync"

	"github.com/norasector/blockstream/pkg/blockstream/device"
)

type TriggerState int

const (
	StateIdle TriggerState = iota
	StateConfigured
	StateStarted
	StateStopped
)

func (s TriggerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfigured:
		return "configured"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StopMode picks what happens to blocks already queued on the transmit path.
type StopMode int

const (
	// StopDrain plays queued blocks before stopping.
	StopDrain StopMode = iota
	// StopDrop discards queued blocks.
	StopDrop
)

func (m StopMode) command() device.Command {
	if m == StopDrain {
		return device.CommandDrain
	}
	return device.CommandDrop
}

func (m StopMode) String() string {
	return m.command().String()
}

// TriggerController issues start and stop triggers to the transmit path, each at most
// once per session.
type TriggerController struct {
	dev device.Transmitter

	mu    sync.Mutex
	state TriggerState
	cfg   device.StreamConfig
}

func NewTriggerController(dev device.Transmitter) *TriggerController {
	return &TriggerController{dev: dev}
}

// Configure prepares the transmit path for a new session. It is valid from Idle or
// Stopped; on failure the state is unchanged.
func (t *TriggerController) Configure(cfg device.StreamConfig) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateIdle && t.state != StateStopped {
		return fmt.Errorf("%w: configure while %s", ErrInvalidTransition, t.state)
	}
	if err := t.dev.Configure(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	t.cfg = cfg
	t.state = StateConfigured
	return nil
}

// Start begins transmission. Calling it again while started does nothing.
func (t *TriggerController) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateStarted:
		return nil
	case StateConfigured:
	default:
		return fmt.Errorf("%w: start while %s", ErrInvalidTransition, t.state)
	}
	if err := t.dev.Trigger(device.CommandStart); err != nil {
		return fmt.Errorf("%w: start trigger: %w", ErrTransmit, err)
	}
	t.state = StateStarted
	return nil
}

// Stop moves to Stopped, issuing the stop trigger if the path was configured or started.
// Calling it again once stopped does nothing. The state becomes Stopped even if the
// trigger fails.
func (t *TriggerController) Stop(mode StopMode) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateStopped:
		return nil
	case StateIdle:
		return fmt.Errorf("%w: stop while idle", ErrInvalidTransition)
	}
	t.state = StateStopped
	if err := t.dev.Trigger(mode.command()); err != nil {
		return fmt.Errorf("%w: %s trigger: %w", ErrTransmit, mode, err)
	}
	return nil
}

func (t *TriggerController) State() TriggerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// StreamConfig is the configuration applied by the last successful Configure.
func (t *TriggerController) StreamConfig() device.StreamConfig {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}
