package storage

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Conflict retry policy for run snapshot upserts and event appends. A run
// that advances quickly re-upserts the same workflow_runs row in close
// succession, so concurrent writers can trip serialization failures.
const (
	conflictAttempts = 4
	conflictBaseWait = 50 * time.Millisecond
)

// isConflict reports whether the error carries a Postgres code a fresh
// attempt can win: serialization_failure or deadlock_detected.
func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// withConflictRetry runs fn until it succeeds, fails with a non-conflict
// error, or the attempt budget runs out. Waits grow exponentially from
// conflictBaseWait with uniform jitter.
func withConflictRetry(ctx context.Context, fn func() error) error {
	wait := conflictBaseWait
	var err error
	for attempt := 1; attempt <= conflictAttempts; attempt++ {
		err = fn()
		if err == nil || !isConflict(err) {
			return err
		}
		if attempt == conflictAttempts {
			break
		}
		jitter := time.Duration(rand.Int64N(int64(wait))) //nolint:gosec // jitter doesn't need crypto-strength randomness
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait + jitter):
		}
		wait *= 2
	}
	return err
}
