package propagation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestWorkerPoolRunFillsEveryIndex(t *testing.T) {
	pool := NewWorkerPool(4, testLogger())
	out := make([]int, 1000)
	err := pool.Run(context.Background(), len(out), func(_ context.Context, i int) error {
		out[i] = i * i
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, v := range out {
		if v != i*i {
			t.Fatalf("out[%d] = %d, want %d", i, v, i*i)
		}
	}
}

func TestWorkerPoolFirstErrorStopsWork(t *testing.T) {
	pool := NewWorkerPool(2, testLogger())
	boom := errors.New("boom")
	var calls atomic.Int32

	err := pool.Run(context.Background(), 10000, func(ctx context.Context, i int) error {
		calls.Add(1)
		if i == 3 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if calls.Load() >= 10000 {
		t.Errorf("all %d jobs ran despite the early failure", calls.Load())
	}
}

func TestWorkerPoolCancellation(t *testing.T) {
	pool := NewWorkerPool(2, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	err := pool.Run(ctx, 100, func(context.Context, int) error {
		calls.Add(1)
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls.Load() >= 100 {
		t.Errorf("expected fewer calls with cancelled context, got %d", calls.Load())
	}
}

func TestWorkerPoolEmpty(t *testing.T) {
	pool := NewWorkerPool(0, testLogger())
	if pool.Workers() != 1 {
		t.Errorf("workers = %d, want 1", pool.Workers())
	}
	if err := pool.Run(context.Background(), 0, nil); err != nil {
		t.Errorf("Run(0) = %v", err)
	}
}
