package repositoryimpl

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskloom/taskloom/internal/notification"
	"github.com/taskloom/taskloom/internal/store"
	"github.com/taskloom/taskloom/pkg/cerr"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "taskloom.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteRepository(db)
}

var base = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, r *SQLiteRepository, id, userID string, read bool, at time.Time) {
	t.Helper()
	require.NoError(t, r.Create(context.Background(), &notification.Notification{
		ID: id, UserID: userID, Type: notification.TypeTaskUpdated,
		Title: "Task updated", Message: "something changed",
		ResourceType: "task", ResourceID: "task-1",
		Read: read, CreatedAt: at,
	}))
}

func TestNotificationRoundtrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seed(t, r, "n1", "bob", false, base)

	got, err := r.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "bob", got.UserID)
	assert.Equal(t, notification.TypeTaskUpdated, got.Type)
	assert.Equal(t, "task", got.ResourceType)
	assert.Equal(t, "task-1", got.ResourceID)
	assert.False(t, got.Read)
	assert.True(t, got.CreatedAt.Equal(base))

	_, err = r.Get(ctx, "missing")
	var ce *cerr.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, cerr.NotFound, ce.Code)
}

func TestListByUserNewestFirst(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		seed(t, r, fmt.Sprintf("n%d", i), "bob", i%2 == 0, base.Add(time.Duration(i)*time.Minute))
	}
	seed(t, r, "other", "carol", false, base)

	all, err := r.ListByUser(ctx, "bob", false, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "n4", all[0].ID)
	assert.Equal(t, "n0", all[4].ID)

	unread, err := r.ListByUser(ctx, "bob", true, 0)
	require.NoError(t, err)
	require.Len(t, unread, 2)
	assert.Equal(t, "n3", unread[0].ID)
	assert.Equal(t, "n1", unread[1].ID)

	limited, err := r.ListByUser(ctx, "bob", false, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "n4", limited[0].ID)
}

func TestSetReadChecksOwner(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seed(t, r, "n1", "bob", false, base)

	// Someone else's id does not reach the row.
	err := r.SetRead(ctx, "n1", "carol", true)
	var ce *cerr.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, cerr.NotFound, ce.Code)

	require.NoError(t, r.SetRead(ctx, "n1", "bob", true))
	got, err := r.Get(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, got.Read)

	// And back again.
	require.NoError(t, r.SetRead(ctx, "n1", "bob", false))
	got, err = r.Get(ctx, "n1")
	require.NoError(t, err)
	assert.False(t, got.Read)
}

func TestCountUnreadAndMarkAllRead(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seed(t, r, "n1", "bob", false, base)
	seed(t, r, "n2", "bob", false, base.Add(time.Minute))
	seed(t, r, "n3", "bob", true, base.Add(2*time.Minute))
	seed(t, r, "n4", "carol", false, base)

	count, err := r.CountUnread(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, r.MarkAllRead(ctx, "bob"))
	count, err = r.CountUnread(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// carol's notifications are untouched.
	count, err = r.CountUnread(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Marking with nothing unread is a quiet no-op.
	require.NoError(t, r.MarkAllRead(ctx, "bob"))
}
