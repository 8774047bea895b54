package cache

import (
	"context"
	"time"
)

// Locker grants short-lived exclusive leases on named keys so that only one
// replica performs a given job at a time.
type Locker interface {
	// TryLock attempts to take key for ttl. It returns the lease token and
	// whether the lease was granted.
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	// Unlock releases key when token still owns it.
	Unlock(ctx context.Context, key, token string) error
}
