package blockstream

import (
	"context"
	"sync"

	"github.com/norasector/blockstream/pkg/blockstream/device"
	"github.com/norasector/blockstream/pkg/blockstream/pool"
)

// fakeTransmitter completes every block as soon as it is submitted.
type fakeTransmitter struct {
	mu         sync.Mutex
	configured []device.StreamConfig
	triggers   []device.Command
	submitted  [][]int16
	configErr  error
	submitErr  error
	failAfter  int // fail submits after this many succeed, when > 0
	triggerErr map[device.Command]error
	onSubmit   func(n int)
	// hold keeps submitted blocks checked out until releaseHeld.
	hold bool
	held []*pool.Block
}

func (f *fakeTransmitter) Configure(cfg device.StreamConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.configErr != nil {
		return f.configErr
	}
	f.configured = append(f.configured, cfg)
	return nil
}

func (f *fakeTransmitter) Submit(ctx context.Context, blk *pool.Block) error {
	f.mu.Lock()
	if f.submitErr != nil && (f.failAfter == 0 || len(f.submitted) >= f.failAfter) {
		f.mu.Unlock()
		return f.submitErr
	}
	f.submitted = append(f.submitted, append([]int16(nil), blk.Data()...))
	n := len(f.submitted)
	hook := f.onSubmit
	if f.hold {
		f.held = append(f.held, blk)
	}
	f.mu.Unlock()

	if !f.hold {
		blk.Release()
	}
	if hook != nil {
		hook(n)
	}
	return nil
}

func (f *fakeTransmitter) Trigger(cmd device.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, cmd)
	return f.triggerErr[cmd]
}

func (f *fakeTransmitter) releaseHeld() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.held {
		b.Release()
	}
	f.held = nil
}

func (f *fakeTransmitter) commands() []device.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]device.Command(nil), f.triggers...)
}

func (f *fakeTransmitter) blocks() [][]int16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]int16(nil), f.submitted...)
}

func (f *fakeTransmitter) count(cmd device.Command) int {
	n := 0
	for _, c := range f.commands() {
		if c == cmd {
			n++
		}
	}
	return n
}
