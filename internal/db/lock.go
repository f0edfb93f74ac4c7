package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AdvisoryLock is a session-level PostgreSQL advisory lock keyed by name.
// It implements oracle.Locker.
type AdvisoryLock struct {
	db   *pgxpool.Pool
	Name string
	key  int64
}

// NewAdvisoryLock returns the lock for name.
func NewAdvisoryLock(pool *pgxpool.Pool, name string) *AdvisoryLock {
	return &AdvisoryLock{db: pool, Name: name, key: hashTo64Bit(name)}
}

// Lock blocks until the lock is held. The lock lives on one pooled
// connection, which is returned to the pool on release.
func (l *AdvisoryLock) Lock(ctx context.Context) (func(), error) {
	conn, err := l.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", l.key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("lock %s: %w", l.Name, err)
	}
	return func() {
		// ctx may already be cancelled here.
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", l.key); err != nil {
			// Closing the session drops any lock it still holds.
			conn.Conn().Close(context.Background())
		}
		conn.Release()
	}, nil
}

// hashTo64Bit is FNV-1a over s.
func hashTo64Bit(s string) int64 {
	var h uint64 = 14695981039346656037
	for _, c := range []byte(s) {
		h ^= uint64(c)
		h *= 1099511628211
	}
	return int64(h)
}
