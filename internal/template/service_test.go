package template_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskloom/taskloom/internal/eventbus"
	"github.com/taskloom/taskloom/internal/notification"
	"github.com/taskloom/taskloom/internal/task"
	"github.com/taskloom/taskloom/internal/template"
	templaterepo "github.com/taskloom/taskloom/internal/template/repositoryimpl"
	"github.com/taskloom/taskloom/pkg/blob"
	"github.com/taskloom/taskloom/pkg/cerr"
)

type fakeTaskRepo struct {
	task.Repository
	mu     sync.Mutex
	tasks  map[string]*task.Task
	nextNo int64
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: map[string]*task.Task{}}
}

func (r *fakeTaskRepo) Create(ctx context.Context, t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextNo++
	t.TaskNumber = r.nextNo
	c := *t
	r.tasks[t.ID] = &c
	return nil
}

func (r *fakeTaskRepo) Get(ctx context.Context, id string) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	c := *t
	return &c, nil
}

func (r *fakeTaskRepo) Update(ctx context.Context, t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[t.ID]; !ok {
		return cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	c := *t
	r.tasks[t.ID] = &c
	return nil
}

type noopNotifRepo struct{}

func (noopNotifRepo) Create(ctx context.Context, n *notification.Notification) error { return nil }
func (noopNotifRepo) Get(ctx context.Context, id string) (*notification.Notification, error) {
	return nil, cerr.NewError(cerr.NotFound, "notification not found", nil)
}
func (noopNotifRepo) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*notification.Notification, error) {
	return nil, nil
}
func (noopNotifRepo) CountUnread(ctx context.Context, userID string) (int64, error) { return 0, nil }
func (noopNotifRepo) SetRead(ctx context.Context, id, userID string, read bool) error {
	return nil
}
func (noopNotifRepo) MarkAllRead(ctx context.Context, userID string) error { return nil }

func newTemplateTestService(t *testing.T) (*template.Service, *fakeTaskRepo) {
	t.Helper()
	blobs, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	taskRepo := newFakeTaskRepo()
	bus := eventbus.New()
	taskSvc := task.NewService(taskRepo, notification.NewEmitter(noopNotifRepo{}, bus), bus)
	return template.NewService(templaterepo.NewYAMLRepository(blobs), taskRepo, taskSvc), taskRepo
}

func seedTask(t *testing.T, repo *fakeTaskRepo) *task.Task {
	t.Helper()
	estimate := 3.5
	tk := &task.Task{
		ID: "task-1", Title: "Prepare release", Description: "collect notes",
		Tags: []string{"release", "docs"}, Status: task.StatusInProgress,
		Priority: task.PriorityHigh, EstimatedHours: &estimate,
		CreatorID: "alice", AssigneeID: "bob",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, repo.Create(context.Background(), tk))
	return tk
}

func TestSaveAsTemplate(t *testing.T) {
	svc, taskRepo := newTemplateTestService(t)
	ctx := context.Background()
	src := seedTask(t, taskRepo)

	tpl, err := svc.SaveAsTemplate(ctx, src.ID, "Release checklist", "carol")
	require.NoError(t, err)
	assert.NotEmpty(t, tpl.ID)
	assert.Equal(t, "Release checklist", tpl.Name)
	assert.Equal(t, "Prepare release", tpl.Title)
	assert.Equal(t, "collect notes", tpl.Description)
	assert.Equal(t, []string{"release", "docs"}, tpl.Tags)
	assert.Equal(t, task.PriorityHigh, tpl.Priority)
	require.NotNil(t, tpl.EstimatedHours)
	assert.Equal(t, 3.5, *tpl.EstimatedHours)
	assert.Equal(t, "carol", tpl.CreatorID)

	// The source task is marked, nothing else about it changes.
	stored, err := taskRepo.Get(ctx, src.ID)
	require.NoError(t, err)
	assert.True(t, stored.SavedAsTemplate)
	assert.Equal(t, task.StatusInProgress, stored.Status)

	// Round trip through the yaml store.
	got, err := svc.Get(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, tpl.Name, got.Name)
	assert.Equal(t, tpl.Tags, got.Tags)
	require.NotNil(t, got.EstimatedHours)
	assert.Equal(t, 3.5, *got.EstimatedHours)
}

func TestSaveAsTemplateNameFallsBackToTitle(t *testing.T) {
	svc, taskRepo := newTemplateTestService(t)
	src := seedTask(t, taskRepo)

	tpl, err := svc.SaveAsTemplate(context.Background(), src.ID, "   ", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Prepare release", tpl.Name)
}

func TestSaveAsTemplateMissingTask(t *testing.T) {
	svc, _ := newTemplateTestService(t)

	_, err := svc.SaveAsTemplate(context.Background(), "missing", "name", "alice")
	var ce *cerr.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, cerr.NotFound, ce.Code)
}

func TestCreateFromTemplate(t *testing.T) {
	svc, taskRepo := newTemplateTestService(t)
	ctx := context.Background()
	src := seedTask(t, taskRepo)

	tpl, err := svc.SaveAsTemplate(ctx, src.ID, "Release checklist", "alice")
	require.NoError(t, err)

	created, err := svc.CreateFromTemplate(ctx, tpl.ID, "dave")
	require.NoError(t, err)
	assert.NotEqual(t, src.ID, created.ID)
	assert.Equal(t, int64(2), created.TaskNumber)
	assert.Equal(t, "Prepare release", created.Title)
	assert.Equal(t, []string{"release", "docs"}, created.Tags)
	assert.Equal(t, task.PriorityHigh, created.Priority)
	require.NotNil(t, created.EstimatedHours)
	assert.Equal(t, 3.5, *created.EstimatedHours)
	// A fresh task, not a copy of the source's state.
	assert.Equal(t, task.StatusTodo, created.Status)
	assert.Equal(t, "dave", created.CreatorID)
	assert.Empty(t, created.AssigneeID)
	assert.False(t, created.SavedAsTemplate)
}

func TestCreateFromTemplateMissing(t *testing.T) {
	svc, _ := newTemplateTestService(t)

	_, err := svc.CreateFromTemplate(context.Background(), "missing", "dave")
	var ce *cerr.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, cerr.NotFound, ce.Code)
}

func TestListAndDeleteTemplates(t *testing.T) {
	svc, taskRepo := newTemplateTestService(t)
	ctx := context.Background()
	src := seedTask(t, taskRepo)

	first, err := svc.SaveAsTemplate(ctx, src.ID, "first", "alice")
	require.NoError(t, err)
	second, err := svc.SaveAsTemplate(ctx, src.ID, "second", "alice")
	require.NoError(t, err)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, svc.Delete(ctx, first.ID))
	all, err = svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, second.ID, all[0].ID)

	_, err = svc.Get(ctx, first.ID)
	var ce *cerr.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, cerr.NotFound, ce.Code)

	// Deleting a template leaves tasks created from it untouched.
	created, err := svc.CreateFromTemplate(ctx, second.ID, "dave")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, second.ID))
	got, err := taskRepo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Title, got.Title)
}
