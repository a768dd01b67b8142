package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rpgsheets/backend/internal/domain/shared"
)

type lease struct {
	owner     string
	expiresAt time.Time
}

// InMemoryLocker implements Locker with a process-local map.
// Suitable for single-instance deployments and testing.
type InMemoryLocker struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

// NewInMemoryLocker creates a new in-memory locker
func NewInMemoryLocker() *InMemoryLocker {
	return &InMemoryLocker{
		leases: make(map[string]lease),
		now:    time.Now,
	}
}

// TryLock takes key if it is free or its previous lease has lapsed
func (l *InMemoryLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if current, held := l.leases[key]; held && now.Before(current.expiresAt) {
		return nil, false, nil
	}

	owner := uuid.NewString()
	l.leases[key] = lease{owner: owner, expiresAt: now.Add(ttl)}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			// a lapsed lease may already belong to someone else
			if current, held := l.leases[key]; held && current.owner == owner {
				delete(l.leases, key)
			}
		})
	}
	return release, true, nil
}

// Close releases all leases
func (l *InMemoryLocker) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.leases)
	return nil
}

// Size returns the number of leases held (for testing/monitoring)
func (l *InMemoryLocker) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.leases)
}

var _ shared.Locker = (*InMemoryLocker)(nil)
