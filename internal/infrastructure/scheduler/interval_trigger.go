package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a periodic unit of work
type Task func(ctx context.Context) error

// IntervalTriggerConfig holds configuration for an interval trigger
type IntervalTriggerConfig struct {
	// Name identifies the trigger in logs
	Name string
	// Interval between runs
	Interval time.Duration
	// RunOnStart runs the task once immediately after Start
	RunOnStart bool
}

// IntervalTrigger runs a task on a fixed interval. Runs never overlap: a tick
// that arrives while the previous run is still going is skipped.
type IntervalTrigger struct {
	config IntervalTriggerConfig
	task   Task
	logger *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	running   sync.Mutex
}

// NewIntervalTrigger creates a stopped interval trigger
func NewIntervalTrigger(config IntervalTriggerConfig, task Task, logger *zap.Logger) (*IntervalTrigger, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if task == nil {
		return nil, fmt.Errorf("%w: task is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntervalTrigger{
		config: config,
		task:   task,
		logger: logger.With(zap.String("trigger", config.Name)),
	}, nil
}

// Start starts the trigger loop
func (t *IntervalTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isRunning {
		return nil
	}
	t.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Interval trigger started", zap.Duration("interval", t.config.Interval))
	return nil
}

// Stop stops the trigger and waits for a running task until ctx expires
func (t *IntervalTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.cancel()
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Interval trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow runs the task synchronously unless a run is already in progress.
// It reports whether the task ran.
func (t *IntervalTrigger) RunNow(ctx context.Context) (bool, error) {
	if !t.running.TryLock() {
		t.logger.Debug("Previous run still in progress, skipping")
		return false, nil
	}
	defer t.running.Unlock()

	start := time.Now()
	err := t.task(ctx)
	if err != nil {
		t.logger.Error("Scheduled task failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
	} else {
		t.logger.Debug("Scheduled task finished", zap.Duration("elapsed", time.Since(start)))
	}
	return true, err
}

func (t *IntervalTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	if t.config.RunOnStart {
		_, _ = t.RunNow(ctx)
	}

	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = t.RunNow(ctx)
		}
	}
}
