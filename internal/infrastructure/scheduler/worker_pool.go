package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Executor runs one queued job. It owns all error handling for the job.
type Executor func(ctx context.Context, jobID uuid.UUID)

// WorkerPoolConfig holds worker pool configuration
type WorkerPoolConfig struct {
	Workers   int
	QueueSize int
}

// DefaultWorkerPoolConfig returns 5 workers over a 100 slot queue
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:   5,
		QueueSize: 100,
	}
}

// Validate checks the configuration
func (c WorkerPoolConfig) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1", ErrInvalidConfig)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("%w: queue size cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// WorkerPool drains a bounded queue of job ids with a fixed number of
// goroutines. Jobs already picked up run to completion on Stop; jobs still
// queued are dropped and left for the pending re-dispatcher.
type WorkerPool struct {
	config WorkerPoolConfig
	logger *zap.Logger

	jobs      chan uuid.UUID
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewWorkerPool creates a stopped worker pool
func NewWorkerPool(config WorkerPoolConfig, logger *zap.Logger) (*WorkerPool, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerPool{
		config: config,
		logger: logger.Named("worker_pool"),
		jobs:   make(chan uuid.UUID, config.QueueSize),
	}, nil
}

// Start launches the workers. Calling Start on a running pool is a no-op.
func (p *WorkerPool) Start(ctx context.Context, executor Executor) error {
	if executor == nil {
		return fmt.Errorf("%w: executor is required", ErrInvalidConfig)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isRunning {
		return nil
	}
	p.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i, executor)
	}

	p.logger.Info("Worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize),
	)
	return nil
}

// Stop signals the workers and waits for in-flight jobs until ctx expires
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	p.cancel()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Worker pool stopped gracefully", zap.Int("dropped", len(p.jobs)))
		return nil
	case <-ctx.Done():
		p.logger.Warn("Worker pool stop timed out")
		return ctx.Err()
	}
}

// Submit enqueues a job without blocking
func (p *WorkerPool) Submit(jobID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.isRunning {
		return ErrPoolNotRunning
	}

	select {
	case p.jobs <- jobID:
		p.logger.Debug("Job submitted", zap.String("job_id", jobID.String()))
		return nil
	default:
		return ErrJobQueueFull
	}
}

// QueueLength returns the number of jobs waiting for a worker
func (p *WorkerPool) QueueLength() int {
	return len(p.jobs)
}

// IsRunning reports whether the pool accepts jobs
func (p *WorkerPool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isRunning
}

func (p *WorkerPool) worker(ctx context.Context, workerID int, executor Executor) {
	defer p.wg.Done()

	// A job that has started is not interrupted by Stop.
	runCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-p.jobs:
			p.run(runCtx, workerID, jobID, executor)
		}
	}
}

func (p *WorkerPool) run(ctx context.Context, workerID int, jobID uuid.UUID, executor Executor) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Job panicked",
				zap.Int("worker_id", workerID),
				zap.String("job_id", jobID.String()),
				zap.Any("panic", r),
				zap.Stack("stacktrace"),
			)
		}
	}()

	p.logger.Debug("Processing job",
		zap.Int("worker_id", workerID),
		zap.String("job_id", jobID.String()),
	)
	executor(ctx, jobID)
}
