package download

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/lopugit/ytmcloner/internal/errors"
	"github.com/lopugit/ytmcloner/internal/monitoring"
	"go.uber.org/zap"
)

// defaultQueueSize bounds submitted jobs not yet picked up by a worker
const defaultQueueSize = 10000

// Result represents the result of a job execution
type Result struct {
	JobID    string
	Job      *Job
	Success  bool
	Error    error
	Duration time.Duration
}

// JobHandler is a function that processes a job
type JobHandler func(ctx context.Context, job *Job) error

// WorkerPool runs at most maxWorkers jobs at once, in submission order
type WorkerPool struct {
	maxWorkers int
	jobs       chan *Job
	results    chan *Result
	active     atomic.Int32
	peak       atomic.Int32
	queued     atomic.Int32
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	handler    JobHandler
	logger     *zap.Logger
	mu         sync.RWMutex
	started    bool
	draining   bool
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(maxWorkers int, handler JobHandler) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 5
	}

	return &WorkerPool{
		maxWorkers: maxWorkers,
		jobs:       make(chan *Job, defaultQueueSize),
		results:    make(chan *Result, maxWorkers*10),
		handler:    handler,
		logger:     zap.NewNop(),
	}
}

// SetLogger sets the pool logger; call before Start
func (wp *WorkerPool) SetLogger(logger *zap.Logger) {
	wp.logger = monitoring.OrNop(logger)
}

// Start spawns worker goroutines and begins processing jobs
func (wp *WorkerPool) Start(ctx context.Context) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.started {
		return fmt.Errorf("worker pool already started")
	}
	if wp.handler == nil {
		return fmt.Errorf("job handler not set")
	}

	wp.ctx, wp.cancel = context.WithCancel(ctx)

	for i := 0; i < wp.maxWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	wp.started = true
	return nil
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug("Worker stopping", zap.Int("worker", id), zap.Error(wp.ctx.Err()))
			return

		case job, ok := <-wp.jobs:
			if !ok {
				return
			}
			monitoring.UpdateQueueDepth(int(wp.queued.Add(-1)))
			wp.processJob(job)
		}
	}
}

func (wp *WorkerPool) processJob(job *Job) {
	n := wp.active.Add(1)
	defer wp.active.Add(-1)
	for {
		peak := wp.peak.Load()
		if n <= peak || wp.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	monitoring.RecordJobStart()

	start := time.Now()
	err := apperrors.Safely(wp.logger, "download job "+job.ID, func() error {
		return wp.handler(wp.ctx, job)
	})

	// results are always delivered; the consumer drains until Drain closes them
	wp.results <- &Result{
		JobID:    job.ID,
		Job:      job,
		Success:  err == nil,
		Error:    err,
		Duration: time.Since(start),
	}
}

// Submit queues a job. It blocks only while the queue buffer is full.
func (wp *WorkerPool) Submit(job *Job) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if !wp.started {
		return fmt.Errorf("worker pool not started")
	}
	if wp.draining {
		return fmt.Errorf("worker pool is draining")
	}

	monitoring.UpdateQueueDepth(int(wp.queued.Add(1)))
	select {
	case wp.jobs <- job:
		return nil
	case <-wp.ctx.Done():
		wp.queued.Add(-1)
		return fmt.Errorf("worker pool is shutting down: %w", wp.ctx.Err())
	}
}

// Drain stops intake, waits for every submitted job to finish and closes
// the results channel. Queued jobs are dropped only if the pool context
// was cancelled.
func (wp *WorkerPool) Drain() {
	wp.mu.Lock()
	if !wp.started || wp.draining {
		wp.mu.Unlock()
		return
	}
	wp.draining = true
	close(wp.jobs)
	wp.mu.Unlock()

	wp.wg.Wait()
	wp.cancel()
	close(wp.results)
}

// Results returns the results channel
func (wp *WorkerPool) Results() <-chan *Result {
	return wp.results
}

// ActiveJobCount returns the number of jobs held by a worker
func (wp *WorkerPool) ActiveJobCount() int {
	return int(wp.active.Load())
}

// PeakActive returns the highest ActiveJobCount observed
func (wp *WorkerPool) PeakActive() int {
	return int(wp.peak.Load())
}

// QueueLen returns the number of submitted jobs not yet picked up
func (wp *WorkerPool) QueueLen() int {
	return int(wp.queued.Load())
}

// MaxWorkers returns the maximum number of workers
func (wp *WorkerPool) MaxWorkers() int {
	return wp.maxWorkers
}
