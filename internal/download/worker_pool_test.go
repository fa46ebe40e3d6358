package download

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	apperrors "github.com/lopugit/ytmcloner/internal/errors"
	"go.uber.org/zap/zaptest"
)

func poolJob(id string) *Job {
	return NewJob(newSong(id, "Song "+id, "Pop"), "", []string{"Pop/" + id})
}

// collectResults drains pool results on a goroutine and returns them once
// the pool is drained
func collectResults(pool *WorkerPool) func() []*Result {
	var results []*Result
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range pool.Results() {
			results = append(results, r)
		}
	}()
	return func() []*Result {
		<-done
		return results
	}
}

func TestWorkerPoolCreation(t *testing.T) {
	handler := func(ctx context.Context, job *Job) error {
		return nil
	}

	pool := NewWorkerPool(4, handler)
	if pool.MaxWorkers() != 4 {
		t.Errorf("Expected 4 workers, got %d", pool.MaxWorkers())
	}

	if NewWorkerPool(0, handler).MaxWorkers() != 5 {
		t.Error("Expected default of 5 workers")
	}
}

func TestWorkerPoolStart(t *testing.T) {
	pool := NewWorkerPool(2, func(ctx context.Context, job *Job) error { return nil })
	ctx := context.Background()

	if err := pool.Submit(poolJob("early")); err == nil {
		t.Error("Expected error when submitting before Start")
	}

	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Failed to start pool: %v", err)
	}
	if err := pool.Start(ctx); err == nil {
		t.Error("Expected error when starting already started pool")
	}

	wait := collectResults(pool)
	pool.Drain()
	wait()

	if err := pool.Submit(poolJob("late")); err == nil {
		t.Error("Expected error when submitting after Drain")
	}

	if err := NewWorkerPool(1, nil).Start(ctx); err == nil {
		t.Error("Expected error for nil handler")
	}
}

func TestWorkerPoolDrainWaitsForAllJobs(t *testing.T) {
	var mu sync.Mutex
	processed := map[string]bool{}

	pool := NewWorkerPool(3, func(ctx context.Context, job *Job) error {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		processed[job.ID] = true
		mu.Unlock()
		return nil
	})
	pool.SetLogger(zaptest.NewLogger(t))
	if err := pool.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	wait := collectResults(pool)

	const n = 25
	for i := 0; i < n; i++ {
		if err := pool.Submit(poolJob(fmt.Sprintf("job-%d", i))); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	pool.Drain()
	results := wait()

	if len(results) != n {
		t.Fatalf("Expected %d results, got %d", n, len(results))
	}
	if len(processed) != n {
		t.Errorf("Expected %d processed jobs, got %d", n, len(processed))
	}
	for _, r := range results {
		if !r.Success || r.Job == nil || r.JobID != r.Job.ID {
			t.Errorf("unexpected result %+v", r)
		}
	}
	if pool.QueueLen() != 0 || pool.ActiveJobCount() != 0 {
		t.Errorf("queue=%d active=%d after drain", pool.QueueLen(), pool.ActiveJobCount())
	}
}

func TestWorkerPoolBound(t *testing.T) {
	const workers = 3
	var mu sync.Mutex
	active, peak := 0, 0

	pool := NewWorkerPool(workers, func(ctx context.Context, job *Job) error {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return nil
	})
	pool.Start(context.Background())
	wait := collectResults(pool)

	for i := 0; i < 20; i++ {
		pool.Submit(poolJob(fmt.Sprintf("job-%d", i)))
	}
	pool.Drain()
	wait()

	if peak > workers {
		t.Errorf("observed %d concurrent jobs, limit is %d", peak, workers)
	}
	if pool.PeakActive() > workers || pool.PeakActive() < 1 {
		t.Errorf("PeakActive() = %d", pool.PeakActive())
	}
}

func TestWorkerPoolSingleWorkerKeepsOrder(t *testing.T) {
	var order []string
	pool := NewWorkerPool(1, func(ctx context.Context, job *Job) error {
		order = append(order, job.ID)
		return nil
	})
	pool.Start(context.Background())
	wait := collectResults(pool)

	want := []string{"a", "b", "c", "d", "e"}
	for _, id := range want {
		pool.Submit(poolJob(id))
	}
	pool.Drain()
	wait()

	if fmt.Sprint(order) != fmt.Sprint(want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestWorkerPoolActiveJobTracking(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	pool := NewWorkerPool(2, func(ctx context.Context, job *Job) error {
		close(started)
		<-release
		return nil
	})
	pool.Start(context.Background())
	wait := collectResults(pool)

	pool.Submit(poolJob("slow"))
	<-started

	if pool.ActiveJobCount() != 1 {
		t.Errorf("Expected 1 active job, got %d", pool.ActiveJobCount())
	}

	close(release)
	pool.Drain()
	wait()

	if pool.ActiveJobCount() != 0 {
		t.Errorf("Expected no active job after drain, got %d", pool.ActiveJobCount())
	}
}

func TestWorkerPoolErrorHandling(t *testing.T) {
	errTest := errors.New("encoder exploded")
	pool := NewWorkerPool(2, func(ctx context.Context, job *Job) error {
		switch job.ID {
		case "fail":
			return errTest
		case "panic":
			panic("boom")
		}
		return nil
	})
	pool.SetLogger(zaptest.NewLogger(t))
	pool.Start(context.Background())
	wait := collectResults(pool)

	for _, id := range []string{"ok", "fail", "panic"} {
		pool.Submit(poolJob(id))
	}
	pool.Drain()

	byID := map[string]*Result{}
	for _, r := range wait() {
		byID[r.JobID] = r
	}

	if r := byID["ok"]; r == nil || !r.Success {
		t.Errorf("ok job: %+v", r)
	}
	if r := byID["fail"]; r == nil || r.Success || !errors.Is(r.Error, errTest) {
		t.Errorf("fail job: %+v", r)
	}
	if r := byID["panic"]; r == nil || r.Success || apperrors.GetErrorType(r.Error) != apperrors.ErrTypePanic {
		t.Errorf("panic job: %+v", r)
	}
}

func TestWorkerPoolCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	pool := NewWorkerPool(1, func(ctx context.Context, job *Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	pool.Start(ctx)
	wait := collectResults(pool)

	pool.Submit(poolJob("blocked"))
	<-started
	cancel()
	pool.Drain()

	results := wait()
	if len(results) != 1 {
		t.Fatalf("Expected one result, got %d", len(results))
	}
	if !errors.Is(results[0].Error, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", results[0].Error)
	}
}
