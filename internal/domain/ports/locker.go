package ports

import (
	"context"
	"errors"
	"time"
)

// ErrLockHeld is returned by TryLock when another holder owns the key
var ErrLockHeld = errors.New("lock held by another owner")

// Locker hands out short-lived exclusive locks keyed by name
type Locker interface {
	// TryLock acquires key for ttl without blocking. The returned release
	// func is safe to call more than once.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
