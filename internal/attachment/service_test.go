package attachment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskloom/taskloom/internal/eventbus"
	"github.com/taskloom/taskloom/internal/task"
	"github.com/taskloom/taskloom/pkg/blob"
	"github.com/taskloom/taskloom/pkg/cerr"
)

type fakeAttachmentRepo struct {
	mu        sync.Mutex
	rows      map[string]*Attachment
	order     []string
	createErr error
}

func newFakeAttachmentRepo() *fakeAttachmentRepo {
	return &fakeAttachmentRepo{rows: map[string]*Attachment{}}
}

func (r *fakeAttachmentRepo) Create(ctx context.Context, a *Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	c := *a
	r.rows[a.ID] = &c
	r.order = append(r.order, a.ID)
	return nil
}

func (r *fakeAttachmentRepo) Get(ctx context.Context, id string) (*Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, "attachment not found", nil)
	}
	c := *a
	return &c, nil
}

func (r *fakeAttachmentRepo) ListByTask(ctx context.Context, taskID string) ([]*Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Attachment
	for _, id := range r.order {
		if a := r.rows[id]; a.TaskID == taskID {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *fakeAttachmentRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return cerr.NewError(cerr.NotFound, "attachment not found", nil)
	}
	delete(r.rows, id)
	return nil
}

type fakeTaskRepo struct {
	task.Repository
	tasks map[string]*task.Task
}

func (r *fakeTaskRepo) Get(ctx context.Context, id string) (*task.Task, error) {
	t, ok := r.tasks[id]
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	c := *t
	return &c, nil
}

func newAttachmentTestService(t *testing.T) (*Service, *fakeAttachmentRepo, blob.Store) {
	t.Helper()
	blobs, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	repo := newFakeAttachmentRepo()
	taskRepo := &fakeTaskRepo{tasks: map[string]*task.Task{
		"task-1": {ID: "task-1", TaskNumber: 1, Title: "holder", CreatorID: "alice"},
	}}
	return NewService(repo, taskRepo, blobs), repo, blobs
}

func TestUploadAndDownload(t *testing.T) {
	svc, _, blobs := newAttachmentTestService(t)
	ctx := context.Background()

	a, err := svc.Upload(ctx, "task-1", "report.pdf", "application/pdf", []byte("pdf bytes"), "bob")
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "task-1", a.TaskID)
	assert.Equal(t, "bob", a.UploaderID)
	assert.Equal(t, "report.pdf", a.FileName)
	assert.Equal(t, "application/pdf", a.ContentType)
	assert.Equal(t, int64(9), a.SizeBytes)
	assert.Equal(t, "attachments/task-1/"+a.ID+".pdf", a.BlobKey)

	got, data, err := svc.Download(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, "pdf bytes", string(data))

	ok, err := blobs.Exists(ctx, a.BlobKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUploadValidation(t *testing.T) {
	svc, _, _ := newAttachmentTestService(t)
	ctx := context.Background()

	_, err := svc.Upload(ctx, "task-1", "  ", "", []byte("x"), "bob")
	var ce *cerr.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, cerr.InvalidArgument, ce.Code)

	_, err = svc.Upload(ctx, "missing", "f.txt", "", []byte("x"), "bob")
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, cerr.NotFound, ce.Code)
}

func TestUploadRemovesBlobWhenMetadataFails(t *testing.T) {
	svc, repo, blobs := newAttachmentTestService(t)
	ctx := context.Background()
	repo.createErr = cerr.NewError(cerr.Internal, "server error", nil)

	_, err := svc.Upload(ctx, "task-1", "doomed.txt", "", []byte("x"), "bob")
	require.Error(t, err)

	keys, err := blobs.List(ctx, "attachments/task-1")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestDeleteRemovesRowAndBlob(t *testing.T) {
	svc, _, blobs := newAttachmentTestService(t)
	ctx := context.Background()

	a, err := svc.Upload(ctx, "task-1", "notes.txt", "text/plain", []byte("notes"), "bob")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, a.ID))
	_, _, err = svc.Download(ctx, a.ID)
	var ce *cerr.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, cerr.NotFound, ce.Code)

	ok, err := blobs.Exists(ctx, a.BlobKey)
	require.NoError(t, err)
	assert.False(t, ok)

	err = svc.Delete(ctx, "missing")
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, cerr.NotFound, ce.Code)
}

func TestListByTask(t *testing.T) {
	svc, _, _ := newAttachmentTestService(t)
	ctx := context.Background()

	first, err := svc.Upload(ctx, "task-1", "a.txt", "", []byte("a"), "bob")
	require.NoError(t, err)
	_, err = svc.Upload(ctx, "task-1", "b.txt", "", []byte("b"), "bob")
	require.NoError(t, err)

	list, err := svc.ListByTask(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)

	_, err = svc.ListByTask(ctx, "missing")
	var ce *cerr.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, cerr.NotFound, ce.Code)
}

func TestCleanerSweepsDeletedTaskBlobs(t *testing.T) {
	blobs, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, key := range []string{
		"attachments/task-1/one.pdf",
		"attachments/task-1/two.txt",
		"attachments/task-2/keep.txt",
	} {
		require.NoError(t, blobs.Write(ctx, key, []byte("x")))
	}

	bus := eventbus.New()
	cleaner := NewCleaner(bus, blobs)
	go cleaner.Start(ctx)

	// Give the cleaner a moment to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)
	bus.PublishNew(eventbus.TypeTaskDeleted, "task-1", "gone", nil)

	require.Eventually(t, func() bool {
		keys, err := blobs.List(ctx, "attachments/task-1")
		return err == nil && len(keys) == 0
	}, 2*time.Second, 20*time.Millisecond, "blobs were not swept")

	ok, err := blobs.Exists(ctx, "attachments/task-2/keep.txt")
	require.NoError(t, err)
	assert.True(t, ok, "unrelated task's blob was removed")
}
