package repositoryimpl

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskloom/taskloom/internal/pushsubscription"
	"github.com/taskloom/taskloom/internal/store"
	"github.com/taskloom/taskloom/pkg/cerr"
)

var testNow = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "taskloom.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func makeSubscription(id, userID, endpoint string) *pushsubscription.Subscription {
	return &pushsubscription.Subscription{
		ID:        id,
		UserID:    userID,
		Endpoint:  endpoint,
		P256dhKey: "p256dh-" + id,
		AuthKey:   "auth-" + id,
		CreatedAt: testNow,
	}
}

func assertCode(t *testing.T, err error, code cerr.Code) {
	t.Helper()
	var ce *cerr.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, code, ce.Code)
}

func TestSQLiteSubscriptionRoundTrip(t *testing.T) {
	r := NewSQLiteRepository(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, makeSubscription("s1", "alice", "https://push.example/one")))

	got, err := r.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, "https://push.example/one", got.Endpoint)
	assert.Equal(t, "p256dh-s1", got.P256dhKey)
	assert.Equal(t, "auth-s1", got.AuthKey)

	byEndpoint, err := r.FindByEndpoint(ctx, "https://push.example/one")
	require.NoError(t, err)
	assert.Equal(t, "s1", byEndpoint.ID)

	require.NoError(t, r.Delete(ctx, "s1"))
	_, err = r.Get(ctx, "s1")
	assertCode(t, err, cerr.NotFound)
}

func TestSQLiteSubscriptionEndpointUnique(t *testing.T) {
	r := NewSQLiteRepository(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, makeSubscription("s1", "alice", "https://push.example/dup")))
	assertCode(t, r.Create(ctx, makeSubscription("s2", "bob", "https://push.example/dup")), cerr.Internal)
}

func TestSQLiteSubscriptionListByUser(t *testing.T) {
	r := NewSQLiteRepository(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, makeSubscription("s2", "alice", "https://push.example/laptop")))
	require.NoError(t, r.Create(ctx, makeSubscription("s1", "alice", "https://push.example/phone")))
	require.NoError(t, r.Create(ctx, makeSubscription("s3", "bob", "https://push.example/other")))

	mine, err := r.ListByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "s1", mine[0].ID)
	assert.Equal(t, "s2", mine[1].ID)

	all, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := r.ListByUser(ctx, "dave")
	require.NoError(t, err)
	assert.Empty(t, none)
}

// The sender prunes gone endpoints by the URL the push service reported, not
// by subscription id.
func TestSQLiteSubscriptionDeleteByEndpoint(t *testing.T) {
	r := NewSQLiteRepository(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, makeSubscription("s1", "alice", "https://push.example/gone")))
	require.NoError(t, r.DeleteByEndpoint(ctx, "https://push.example/gone"))

	_, err := r.FindByEndpoint(ctx, "https://push.example/gone")
	assertCode(t, err, cerr.NotFound)
	assertCode(t, r.DeleteByEndpoint(ctx, "https://push.example/gone"), cerr.NotFound)
}
