package downloader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"espadl/pkg/espa"
	"espadl/pkg/logger"
	"espadl/pkg/storage"
)

// mockStorer records the scenes it is asked to store
type mockStorer struct {
	delay   time.Duration
	failOn  map[string]error
	calls   int32
	active  int32
	maxSeen int32

	mu    sync.Mutex
	order []string
}

func (m *mockStorer) Store(ctx context.Context, scene espa.Scene) (storage.Result, error) {
	atomic.AddInt32(&m.calls, 1)
	cur := atomic.AddInt32(&m.active, 1)
	defer atomic.AddInt32(&m.active, -1)
	for {
		seen := atomic.LoadInt32(&m.maxSeen)
		if cur <= seen || atomic.CompareAndSwapInt32(&m.maxSeen, seen, cur) {
			break
		}
	}

	m.mu.Lock()
	m.order = append(m.order, scene.FileName)
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return storage.Result{Scene: scene}, ctx.Err()
		}
	}
	if err := m.failOn[scene.FileName]; err != nil {
		return storage.Result{Scene: scene}, err
	}
	return storage.Result{Scene: scene, Written: 10, Total: 10}, nil
}

func scenes(n int) []espa.Scene {
	out := make([]espa.Scene, n)
	for i := range out {
		out[i] = espa.NewScene(fmt.Sprintf("http://dl/O1/s%02d.tar.gz", i), "O1")
	}
	return out
}

func runPool(t *testing.T, ctx context.Context, workers int, storer Storer, items []espa.Scene) []Result {
	t.Helper()
	pool := NewWorkerPool(ctx, workers, storer, logger.NewNopLogger())
	pool.Start()

	go func() {
		defer pool.Stop()
		for i, s := range items {
			if err := pool.Submit(Job{Index: i, Scene: s}); err != nil {
				return
			}
		}
	}()

	var results []Result
	for r := range pool.Results() {
		results = append(results, r)
	}
	return results
}

func TestWorkerPoolBasicFunctionality(t *testing.T) {
	storer := &mockStorer{delay: 5 * time.Millisecond}
	results := runPool(t, context.Background(), 3, storer, scenes(10))

	if len(results) != 10 {
		t.Fatalf("Expected 10 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Error != nil {
			t.Errorf("Unexpected error for %s: %v", r.Job.Scene.FileName, r.Error)
		}
		if r.Outcome.Written != 10 {
			t.Errorf("Expected outcome to be propagated, got %+v", r.Outcome)
		}
	}
	if got := atomic.LoadInt32(&storer.calls); got != 10 {
		t.Errorf("Expected 10 store calls, got %d", got)
	}
	if max := atomic.LoadInt32(&storer.maxSeen); max > 3 {
		t.Errorf("Expected at most 3 concurrent stores, saw %d", max)
	}
}

func TestWorkerPoolSingleWorkerPreservesOrder(t *testing.T) {
	storer := &mockStorer{}
	items := scenes(8)
	results := runPool(t, context.Background(), 1, storer, items)

	for i, r := range results {
		if r.Job.Index != i {
			t.Fatalf("Result %d has index %d, want submission order", i, r.Job.Index)
		}
	}
	for i, name := range storer.order {
		if name != items[i].FileName {
			t.Fatalf("Store call %d was %s, want %s", i, name, items[i].FileName)
		}
	}
	if max := atomic.LoadInt32(&storer.maxSeen); max != 1 {
		t.Errorf("Expected strictly sequential processing, saw %d concurrent", max)
	}
}

func TestWorkerPoolErrorIsolation(t *testing.T) {
	boom := errors.New("transfer failed")
	storer := &mockStorer{failOn: map[string]error{"s03.tar.gz": boom}}
	results := runPool(t, context.Background(), 2, storer, scenes(6))

	failed := 0
	for _, r := range results {
		if r.Error != nil {
			failed++
			if !errors.Is(r.Error, boom) || r.Job.Scene.FileName != "s03.tar.gz" {
				t.Errorf("Unexpected failure: %+v", r)
			}
		}
	}
	if failed != 1 || len(results) != 6 {
		t.Errorf("Expected 6 results with 1 failure, got %d results and %d failures", len(results), failed)
	}
}

func TestWorkerPoolCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	storer := &mockStorer{delay: time.Second}

	done := make(chan []Result)
	go func() { done <- runPool(t, ctx, 2, storer, scenes(20)) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case results := <-done:
		for _, r := range results {
			if r.Error == nil {
				t.Errorf("Expected cancelled result for %s", r.Job.Scene.FileName)
			}
		}
		if got := atomic.LoadInt32(&storer.calls); got > 2 {
			t.Errorf("Expected no new stores after cancellation, got %d calls", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Pool did not stop after cancellation")
	}
}

func TestWorkerPoolStopIsIdempotent(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 0, &mockStorer{}, nil)
	if pool.GetActiveWorkers() != 1 {
		t.Errorf("Expected worker count to be clamped to 1, got %d", pool.GetActiveWorkers())
	}
	pool.Start()
	pool.Stop()
	pool.Stop()

	if err := pool.Submit(Job{}); err == nil {
		t.Error("Expected Submit to fail after Stop")
	}
}
