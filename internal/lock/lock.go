// Package lock provides the try-lock that keeps local supply passes from
// overlapping, either inside one process or across processes through Redis.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLost is returned by Extend once the lease has expired or been released.
var ErrLost = errors.New("lock lease lost")

// Lease is a held lock.
type Lease interface {
	// Release gives up the lock. It is safe to call more than once.
	Release(ctx context.Context) error
	// Extend pushes the expiry out to ttl from now.
	Extend(ctx context.Context, ttl time.Duration) error
}

type Locker interface {
	// TryAcquire never blocks waiting for the lock; ok is false while
	// another holder has it.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error)
}

// Local is a process-wide Locker. The ttl is ignored; a holder keeps the lock
// until it releases it.
type Local struct {
	mu   sync.Mutex
	held map[string]*localLease
}

func NewLocal() *Local {
	return &Local{held: map[string]*localLease{}}
}

func (l *Local) TryAcquire(ctx context.Context, key string, _ time.Duration) (Lease, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != nil {
		return nil, false, nil
	}
	lease := &localLease{owner: l, key: key}
	l.held[key] = lease
	return lease, true, nil
}

type localLease struct {
	owner *Local
	key   string
}

func (ll *localLease) Release(context.Context) error {
	ll.owner.mu.Lock()
	defer ll.owner.mu.Unlock()
	if ll.owner.held[ll.key] == ll {
		delete(ll.owner.held, ll.key)
	}
	return nil
}

func (ll *localLease) Extend(context.Context, time.Duration) error {
	ll.owner.mu.Lock()
	defer ll.owner.mu.Unlock()
	if ll.owner.held[ll.key] != ll {
		return ErrLost
	}
	return nil
}
