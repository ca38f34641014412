package repositoryimpl

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/taskloom/taskloom/internal/store"
	"github.com/taskloom/taskloom/internal/task"
)

// openTestPool connects to the database named by TASKLOOM_TEST_POSTGRES_DSN.
// These tests need a live server and are skipped without one.
func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TASKLOOM_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TASKLOOM_TEST_POSTGRES_DSN not set")
	}
	pool, err := store.OpenPostgres(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

// Two concurrent reciprocal attaches must never both land: the chain lock in
// SetParent serializes them so the second one re-checks against the first
// one's committed link.
func TestPostgresReciprocalAttachCannotCycle(t *testing.T) {
	r := NewPostgresRepository(openTestPool(t))
	ctx := context.Background()

	a := makeTask(ulid.Make().String(), "left")
	b := makeTask(ulid.Make().String(), "right")
	require.NoError(t, r.Create(ctx, a))
	require.NoError(t, r.Create(ctx, b))
	t.Cleanup(func() {
		_ = r.Delete(ctx, a.ID)
		_ = r.Delete(ctx, b.ID)
	})

	for i := 0; i < 25; i++ {
		require.NoError(t, r.ClearParent(ctx, a.ID, testNow))
		require.NoError(t, r.ClearParent(ctx, b.ID, testNow))

		errs := make(chan error, 2)
		go func() { errs <- r.SetParent(ctx, a.ID, b.ID, testNow) }()
		go func() { errs <- r.SetParent(ctx, b.ID, a.ID, testNow) }()
		for j := 0; j < 2; j++ {
			err := <-errs
			if err != nil && !errors.Is(err, task.ErrHierarchyCycle) && !errors.Is(err, task.ErrConcurrentUpdate) {
				t.Fatalf("iteration %d: attach failed with %v", i, err)
			}
		}

		gotA, err := r.Get(ctx, a.ID)
		require.NoError(t, err)
		gotB, err := r.Get(ctx, b.ID)
		require.NoError(t, err)
		if gotA.ParentID == b.ID && gotB.ParentID == a.ID {
			t.Fatalf("iteration %d: reciprocal attach produced a two-node cycle", i)
		}
	}
}
