package database

import (
	"context"
	"database/sql/driver"
	"fmt"
	"time"
)

// TryAdvisoryLock takes a session-level pg_try_advisory_lock on a dedicated
// connection. The lock lives as long as that connection, so release must be
// called exactly once when acquired is true.
func (db *DB) TryAdvisoryLock(ctx context.Context, key int64) (release func(), acquired bool, err error) {
	conn, err := db.Connx(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to reserve connection for advisory lock: %w", err)
	}

	if err := conn.GetContext(ctx, &acquired, "SELECT pg_try_advisory_lock($1)", key); err != nil {
		conn.Close()
		return nil, false, fmt.Errorf("failed to take advisory lock %d: %w", key, err)
	}

	if !acquired {
		conn.Close()
		return nil, false, nil
	}

	release = func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := conn.ExecContext(unlockCtx, "SELECT pg_advisory_unlock($1)", key); err != nil {
			// the session may still hold the lock, so it must not go back to the pool
			db.logger.Warn().Err(err).Int64("lock_key", key).Msg("failed to release advisory lock, discarding connection")
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
			conn.Close()
			return
		}
		if err := conn.Close(); err != nil {
			db.logger.Warn().Err(err).Msg("failed to return advisory lock connection")
		}
	}

	return release, true, nil
}
