package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

var ErrTimeout = errors.New("timed out waiting for free block")

// Block is one fixed-size buffer of interleaved 16 bit samples. It has exactly one
// owner between Allocate and Release.
type Block struct {
	// Samples always has the pool's full block length.
	Samples []int16
	// Len is the count of valid samples in Samples.
	Len int

	index      int
	pool       *Pool
	checkedOut atomic.Bool
}

// Data returns the valid portion of the block.
func (b *Block) Data() []int16 {
	return b.Samples[:b.Len]
}

// Release returns the block to the pool it came from.
func (b *Block) Release() {
	b.pool.Release(b)
}

// Pool is a fixed arena of equally sized blocks. All blocks are allocated up front.
type Pool struct {
	blocks       []*Block
	free         chan int
	blockSamples int
	outstanding  atomic.Int64
}

func New(count, blockSamples int) (*Pool, error) {
	if count <= 0 {
		return nil, fmt.Errorf("pool must hold at least one block, got %d", count)
	}
	if blockSamples <= 0 {
		return nil, fmt.Errorf("block must hold at least one sample, got %d", blockSamples)
	}

	p := &Pool{
		blocks:       make([]*Block, count),
		free:         make(chan int, count),
		blockSamples: blockSamples,
	}

	arena := make([]int16, count*blockSamples)
	for i := 0; i < count; i++ {
		p.blocks[i] = &Block{
			Samples: arena[i*blockSamples : (i+1)*blockSamples : (i+1)*blockSamples],
			index:   i,
			pool:    p,
		}
		p.free <- i
	}

	return p, nil
}

// Allocate checks out a free block, waiting at most timeout for one to be released.
func (p *Pool) Allocate(ctx context.Context, timeout time.Duration) (*Block, error) {
	select {
	case idx := <-p.free:
		return p.checkout(idx), nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrTimeout
	case idx := <-p.free:
		return p.checkout(idx), nil
	}
}

func (p *Pool) checkout(idx int) *Block {
	b := p.blocks[idx]
	if !b.checkedOut.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("pool: block %d handed out while already owned", idx))
	}
	b.Len = 0
	p.outstanding.Add(1)
	return b
}

// Release returns b to the free list. Releasing a block twice or releasing a block
// from another pool panics.
func (p *Pool) Release(b *Block) {
	if b == nil || b.pool != p {
		panic("pool: release of foreign block")
	}
	if !b.checkedOut.CompareAndSwap(true, false) {
		panic(fmt.Sprintf("pool: block %d released twice", b.index))
	}
	p.outstanding.Add(-1)
	p.free <- b.index
}

// Cap is the number of blocks the pool owns.
func (p *Pool) Cap() int {
	return len(p.blocks)
}

// Outstanding is the number of blocks currently checked out.
func (p *Pool) Outstanding() int {
	return int(p.outstanding.Load())
}

func (p *Pool) BlockSamples() int {
	return p.blockSamples
}
