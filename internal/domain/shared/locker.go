package shared

import (
	"context"
	"time"
)

// Locker grants short-lived named locks, typically so that only one process
// in a deployment runs a periodic task at a time.
type Locker interface {
	// TryLock attempts to take key for ttl without waiting.
	// Returns acquired=false when another holder has it. The returned
	// release func is non-nil only when acquired and is safe to call once.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)

	// Close closes the locker and releases resources
	Close() error
}
