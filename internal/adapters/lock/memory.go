// Package lock provides ports.Locker implementations.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/kevin07696/subscription-scheduler/internal/domain/ports"
)

// MemoryLocker is an in-process Locker for single-instance deployments
type MemoryLocker struct {
	held map[string]memoryEntry
	now  func() time.Time
	mu   sync.Mutex
	seq  uint64
}

type memoryEntry struct {
	expires time.Time
	owner   uint64
}

var _ ports.Locker = (*MemoryLocker)(nil)

// NewMemoryLocker creates an empty MemoryLocker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		held: make(map[string]memoryEntry),
		now:  time.Now,
	}
}

// TryLock acquires key unless an unexpired holder owns it
func (l *MemoryLocker) TryLock(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if entry, ok := l.held[key]; ok && now.Before(entry.expires) {
		return nil, ports.ErrLockHeld
	}

	l.seq++
	owner := l.seq
	l.held[key] = memoryEntry{owner: owner, expires: now.Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if entry, ok := l.held[key]; ok && entry.owner == owner {
				delete(l.held, key)
			}
		})
	}, nil
}
