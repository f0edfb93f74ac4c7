package oracle

import (
	"context"
	"fmt"
	"sync"
)

// Locker serializes synthesis across processes, for runs sharing one
// backend license. The returned function releases the lock.
type Locker interface {
	Lock(ctx context.Context) (func(), error)
}

// Exclusive allows one synthesis at a time through the wrapped oracle:
// within the process by a mutex, and across processes by Locker when set.
type Exclusive struct {
	Oracle Oracle
	Locker Locker

	mu sync.Mutex
}

// NewExclusive wraps o. locker may be nil.
func NewExclusive(o Oracle, locker Locker) *Exclusive {
	return &Exclusive{Oracle: o, Locker: locker}
}

// Synthesize holds the locks for the duration of the wrapped call.
func (e *Exclusive) Synthesize(ctx context.Context, req Request) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.Locker != nil {
		unlock, err := e.Locker.Lock(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("acquire synthesis lock: %w", err)
		}
		defer unlock()
	}
	return e.Oracle.Synthesize(ctx, req)
}
