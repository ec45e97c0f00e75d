package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsConflict(t *testing.T) {
	assert.True(t, isConflict(&pgconn.PgError{Code: "40001"}))
	assert.True(t, isConflict(&pgconn.PgError{Code: "40P01"}))
	assert.True(t, isConflict(fmt.Errorf("storage: save run: %w", &pgconn.PgError{Code: "40001"})))
	assert.False(t, isConflict(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isConflict(errors.New("connection refused")))
}

func TestWithConflictRetry(t *testing.T) {
	t.Run("retries conflicts until success", func(t *testing.T) {
		calls := 0
		err := withConflictRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return &pgconn.PgError{Code: "40001"}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("non-conflict errors return immediately", func(t *testing.T) {
		calls := 0
		sentinel := errors.New("relation does not exist")
		err := withConflictRetry(context.Background(), func() error {
			calls++
			return sentinel
		})
		assert.ErrorIs(t, err, sentinel)
		assert.Equal(t, 1, calls)
	})

	t.Run("exhausted budget returns the conflict", func(t *testing.T) {
		calls := 0
		err := withConflictRetry(context.Background(), func() error {
			calls++
			return &pgconn.PgError{Code: "40P01"}
		})
		var pgErr *pgconn.PgError
		require.ErrorAs(t, err, &pgErr)
		assert.Equal(t, "40P01", pgErr.Code)
		assert.Equal(t, conflictAttempts, calls)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := withConflictRetry(ctx, func() error {
			return &pgconn.PgError{Code: "40001"}
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
