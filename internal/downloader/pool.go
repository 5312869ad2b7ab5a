package downloader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"espadl/pkg/espa"
	"espadl/pkg/logger"
	"espadl/pkg/storage"
)

// Job is a single scene to store
type Job struct {
	Index int
	Scene espa.Scene
}

// Result is the outcome of a Job
type Result struct {
	Job      Job
	Outcome  storage.Result
	Error    error
	Duration time.Duration
}

// Storer persists one scene
type Storer interface {
	Store(ctx context.Context, scene espa.Scene) (storage.Result, error)
}

// WorkerPool runs store jobs on a fixed number of workers. Callers must not
// submit two jobs for the same final path.
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan Result
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	storer      Storer
	logger      logger.Logger
	stopOnce    sync.Once
}

// NewWorkerPool creates a new worker pool bound to ctx
func NewWorkerPool(ctx context.Context, numWorkers int, storer Storer, log logger.Logger) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	ctx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2), // Buffer size = 2x workers
		resultQueue: make(chan Result, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		storer:      storer,
		logger:      log,
	}
}

// Start initializes and starts all workers
func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop closes the job queue, waits for queued jobs to finish and closes
// the result channel. It is safe to call more than once.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		close(wp.jobQueue)
		wp.wg.Wait()
		close(wp.resultQueue)
		wp.cancel()
		wp.logger.Debug("Worker pool stopped")
	})
}

// Submit adds a new job to the queue
func (wp *WorkerPool) Submit(job Job) error {
	if err := wp.ctx.Err(); err != nil {
		return fmt.Errorf("worker pool is shutting down: %w", err)
	}
	select {
	case wp.jobQueue <- job:
		wp.logger.DebugWithFields("Job submitted to queue", map[string]interface{}{
			"order_id": job.Scene.OrderID,
			"file":     job.Scene.FileName,
		})
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down: %w", wp.ctx.Err())
	}
}

// Results returns the result channel; it is closed by Stop
func (wp *WorkerPool) Results() <-chan Result {
	return wp.resultQueue
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		var result Result
		if err := wp.ctx.Err(); err != nil {
			// drain: report queued jobs as cancelled instead of running them
			result = Result{Job: job, Error: err}
		} else {
			result = wp.processJob(job, id)
		}
		// results are always delivered; Stop waits for the consumer
		wp.resultQueue <- result
	}
}

func (wp *WorkerPool) processJob(job Job, workerID int) Result {
	start := time.Now()

	wp.logger.DebugWithFields("Worker processing job", map[string]interface{}{
		"worker_id": workerID,
		"order_id":  job.Scene.OrderID,
		"file":      job.Scene.FileName,
	})

	outcome, err := wp.storer.Store(wp.ctx, job.Scene)
	result := Result{
		Job:      job,
		Outcome:  outcome,
		Error:    err,
		Duration: time.Since(start),
	}

	if err != nil {
		wp.logger.ErrorWithFields("Worker failed to store scene", map[string]interface{}{
			"worker_id": workerID,
			"order_id":  job.Scene.OrderID,
			"file":      job.Scene.FileName,
			"error":     err.Error(),
			"duration":  result.Duration,
		})
	}
	return result
}

// GetActiveWorkers returns the number of workers
func (wp *WorkerPool) GetActiveWorkers() int {
	return wp.numWorkers
}
