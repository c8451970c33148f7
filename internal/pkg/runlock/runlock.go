// Package runlock prevents two processes from firing the same report run
// concurrently. A lock is held per cadence for the duration of one run.
package runlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is a distributed mutual-exclusion guard for one report run.
// A Lock instance belongs to a single goroutine.
type Lock interface {
	// Acquire tries to take the lock without blocking. True on success.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock back if this instance still owns it.
	Release(ctx context.Context) error
}

// ForCadence returns a run lock for a cadence using the best available
// backend: Redis when a client is configured (cross-host), otherwise a
// PostgreSQL advisory lock. The advisory lock is session-scoped, so a
// crashed process releases it with its connection.
func ForCadence(redisClient *redis.Client, db *sql.DB, cadence string, ttl time.Duration) Lock {
	key := "report-run:" + cadence
	if redisClient != nil {
		return newRedisLock(redisClient, key, ttl)
	}
	return newAdvisoryLock(db, key)
}

type advisoryLock struct {
	db     *sql.DB
	lockID int64
}

func newAdvisoryLock(db *sql.DB, key string) *advisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &advisoryLock{db: db, lockID: int64(h.Sum64())}
}

func (l *advisoryLock) Acquire(ctx context.Context) (bool, error) {
	var acquired bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired)
	return acquired, err
}

func (l *advisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
