package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name         string
		count        int
		blockSamples int
		wantErr      bool
	}{
		{"default", 34, 2204, false},
		{"single", 1, 1, false},
		{"no blocks", 0, 2204, true},
		{"empty blocks", 4, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.count, tt.blockSamples)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if p.Cap() != tt.count {
				t.Errorf("Cap() = %d, want %d", p.Cap(), tt.count)
			}
			if p.BlockSamples() != tt.blockSamples {
				t.Errorf("BlockSamples() = %d, want %d", p.BlockSamples(), tt.blockSamples)
			}
		})
	}
}

func TestAllocateRelease(t *testing.T) {
	p, err := New(3, 8)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	seen := make(map[*Block]struct{})
	var blocks []*Block
	for i := 0; i < 3; i++ {
		b, err := p.Allocate(ctx, time.Second)
		if err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
		if _, ok := seen[b]; ok {
			t.Fatalf("block handed out twice")
		}
		if len(b.Samples) != 8 {
			t.Errorf("len(Samples) = %d, want 8", len(b.Samples))
		}
		seen[b] = struct{}{}
		blocks = append(blocks, b)
	}
	if p.Outstanding() != 3 {
		t.Errorf("Outstanding() = %d, want 3", p.Outstanding())
	}

	blocks[1].Len = 5
	blocks[1].Release()
	if p.Outstanding() != 2 {
		t.Errorf("Outstanding() = %d, want 2", p.Outstanding())
	}

	b, err := p.Allocate(ctx, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if b != blocks[1] {
		t.Errorf("expected the released block back")
	}
	if b.Len != 0 {
		t.Errorf("Len = %d after checkout, want 0", b.Len)
	}
}

func TestBlocksDoNotOverlap(t *testing.T) {
	p, err := New(2, 4)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := p.Allocate(context.Background(), time.Second)
	b, _ := p.Allocate(context.Background(), time.Second)

	a.Samples = append(a.Samples, 1)
	for i := range b.Samples {
		if b.Samples[i] != 0 {
			t.Fatalf("append on one block wrote into another")
		}
	}
}

func TestAllocateTimeout(t *testing.T) {
	for _, timeout := range []time.Duration{time.Millisecond, 20 * time.Millisecond, 50 * time.Millisecond} {
		p, err := New(1, 4)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := p.Allocate(context.Background(), timeout); err != nil {
			t.Fatal(err)
		}

		start := time.Now()
		_, err = p.Allocate(context.Background(), timeout)
		elapsed := time.Since(start)
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("Allocate() error = %v, want ErrTimeout", err)
		}
		if elapsed < timeout {
			t.Errorf("returned after %s, before timeout %s", elapsed, timeout)
		}
		if elapsed > timeout+time.Second {
			t.Errorf("returned after %s, timeout was %s", elapsed, timeout)
		}
	}
}

func TestAllocateContextCancelled(t *testing.T) {
	p, _ := New(1, 4)
	_, _ = p.Allocate(context.Background(), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Allocate(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("Allocate() error = %v, want context.Canceled", err)
	}
}

func TestAllocateWaitsForRelease(t *testing.T) {
	p, _ := New(1, 4)
	b, _ := p.Allocate(context.Background(), time.Second)

	go func() {
		time.Sleep(10 * time.Millisecond)
		b.Release()
	}()

	got, err := p.Allocate(context.Background(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if got != b {
		t.Errorf("expected released block")
	}
}

func TestDoubleReleasePanics(t *testing.T) {
	p, _ := New(2, 4)
	b, _ := p.Allocate(context.Background(), time.Second)
	b.Release()

	defer func() {
		if recover() == nil {
			t.Errorf("second release did not panic")
		}
	}()
	b.Release()
}

func TestForeignReleasePanics(t *testing.T) {
	p1, _ := New(1, 4)
	p2, _ := New(1, 4)
	b, _ := p1.Allocate(context.Background(), time.Second)

	defer func() {
		if recover() == nil {
			t.Errorf("foreign release did not panic")
		}
	}()
	p2.Release(b)
}

func TestConcurrentOwnership(t *testing.T) {
	const (
		blocks  = 4
		workers = 8
		rounds  = 500
	)
	p, _ := New(blocks, 16)

	var mu sync.Mutex
	owned := make(map[*Block]bool)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				b, err := p.Allocate(context.Background(), 5*time.Second)
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				if owned[b] {
					t.Error("block owned by two workers")
				}
				owned[b] = true
				mu.Unlock()

				mu.Lock()
				owned[b] = false
				mu.Unlock()
				b.Release()
			}
		}()
	}
	wg.Wait()

	if p.Outstanding() != 0 {
		t.Errorf("Outstanding() = %d after all releases", p.Outstanding())
	}
	if p.Outstanding() > p.Cap() {
		t.Errorf("outstanding exceeded capacity")
	}
}
