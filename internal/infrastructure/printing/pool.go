package printing

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	defaultPoolSize       = 5
	defaultPoolQueue      = 20
	defaultAcquireTimeout = 60 * time.Second
)

// NoQueue disables waiting: a saturated pool rejects immediately.
const NoQueue = -1

// RenderPoolConfig configures a RenderPool
type RenderPoolConfig struct {
	// Size is the number of renders allowed to run at once (default: 5)
	Size int
	// MaxQueue is the number of callers allowed to wait for a slot
	// (default: 20, NoQueue for none)
	MaxQueue int
	// AcquireTimeout bounds how long a caller waits for a slot (default: 60s)
	AcquireTimeout time.Duration
	Logger         *zap.Logger
}

// PoolStats is a snapshot of pool occupancy
type PoolStats struct {
	Size    int `json:"size"`
	Active  int `json:"active"`
	Waiting int `json:"waiting"`
}

// RenderPool bounds the number of rendering engines alive at once.
type RenderPool struct {
	sem            *semaphore.Weighted
	size           int
	maxQueue       int64
	acquireTimeout time.Duration
	active         atomic.Int64
	waiting        atomic.Int64
	logger         *zap.Logger
}

// NewRenderPool creates a new RenderPool
func NewRenderPool(config *RenderPoolConfig) *RenderPool {
	if config == nil {
		config = &RenderPoolConfig{}
	}
	size := config.Size
	if size <= 0 {
		size = defaultPoolSize
	}
	maxQueue := config.MaxQueue
	switch {
	case maxQueue == 0:
		maxQueue = defaultPoolQueue
	case maxQueue < 0:
		maxQueue = 0
	}
	acquireTimeout := config.AcquireTimeout
	if acquireTimeout <= 0 {
		acquireTimeout = defaultAcquireTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RenderPool{
		sem:            semaphore.NewWeighted(int64(size)),
		size:           size,
		maxQueue:       int64(maxQueue),
		acquireTimeout: acquireTimeout,
		logger:         logger,
	}
}

// WithSlot runs fn while holding one pool slot. The slot is released when fn
// returns or panics; a panic is returned as a RENDER_FAILED error. Callers
// beyond the queue limit, or waiting longer than the acquire timeout, get a
// CAPACITY_EXCEEDED error without fn being called.
func (p *RenderPool) WithSlot(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if err := p.acquire(ctx); err != nil {
		return err
	}
	p.active.Add(1)
	defer func() {
		p.active.Add(-1)
		p.sem.Release(1)
	}()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("render panicked inside pool slot", zap.Any("panic", r))
			err = NewRenderError(ErrCodeRenderFailed, fmt.Sprintf("render panicked: %v", r), nil)
		}
	}()

	return fn(ctx)
}

func (p *RenderPool) acquire(ctx context.Context) error {
	if p.sem.TryAcquire(1) {
		return nil
	}

	if p.waiting.Add(1) > p.maxQueue {
		p.waiting.Add(-1)
		p.logger.Warn("render pool saturated",
			zap.Int("size", p.size),
			zap.Int64("max_queue", p.maxQueue))
		return NewRenderError(ErrCodeCapacityExceeded, "render pool saturated and queue is full", nil)
	}
	defer p.waiting.Add(-1)

	waitCtx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()

	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return NewRenderError(ErrCodeCapacityExceeded, "cancelled while waiting for render slot", ctx.Err())
		}
		return NewRenderError(ErrCodeCapacityExceeded,
			fmt.Sprintf("no render slot available within %v", p.acquireTimeout), err)
	}
	return nil
}

// Stats returns the current pool occupancy
func (p *RenderPool) Stats() PoolStats {
	return PoolStats{
		Size:    p.size,
		Active:  int(p.active.Load()),
		Waiting: int(p.waiting.Load()),
	}
}
