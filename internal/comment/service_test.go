package comment

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskloom/taskloom/internal/eventbus"
	"github.com/taskloom/taskloom/internal/notification"
	"github.com/taskloom/taskloom/internal/task"
	"github.com/taskloom/taskloom/pkg/cerr"
)

type fakeCommentRepo struct {
	mu       sync.Mutex
	comments map[string]*Comment
	order    []string
}

func newFakeCommentRepo() *fakeCommentRepo {
	return &fakeCommentRepo{comments: map[string]*Comment{}}
}

func (r *fakeCommentRepo) Create(ctx context.Context, c *Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.comments[c.ID] = &cp
	r.order = append(r.order, c.ID)
	return nil
}

func (r *fakeCommentRepo) Get(ctx context.Context, id string) (*Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.comments[id]
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, "comment not found", nil)
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCommentRepo) ListByTask(ctx context.Context, taskID string) ([]*Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Comment
	for _, id := range r.order {
		if c := r.comments[id]; c.TaskID == taskID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeCommentRepo) Update(ctx context.Context, c *Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.comments[c.ID]; !ok {
		return cerr.NewError(cerr.NotFound, "comment not found", nil)
	}
	cp := *c
	r.comments[c.ID] = &cp
	return nil
}

func (r *fakeCommentRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.comments[id]; !ok {
		return cerr.NewError(cerr.NotFound, "comment not found", nil)
	}
	for _, c := range r.comments {
		if c.ParentID == id {
			delete(r.comments, c.ID)
		}
	}
	delete(r.comments, id)
	return nil
}

// fakeTaskRepo backs the task lookups; only Get is reachable from here.
type fakeTaskRepo struct {
	task.Repository
	tasks map[string]*task.Task
}

func (r *fakeTaskRepo) Get(ctx context.Context, id string) (*task.Task, error) {
	t, ok := r.tasks[id]
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	cp := *t
	return &cp, nil
}

type fakeNotifRepo struct {
	mu      sync.Mutex
	created []*notification.Notification
}

func (r *fakeNotifRepo) Create(ctx context.Context, n *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *n
	r.created = append(r.created, &cp)
	return nil
}

func (r *fakeNotifRepo) Get(ctx context.Context, id string) (*notification.Notification, error) {
	return nil, cerr.NewError(cerr.NotFound, "notification not found", nil)
}

func (r *fakeNotifRepo) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*notification.Notification, error) {
	return nil, nil
}

func (r *fakeNotifRepo) CountUnread(ctx context.Context, userID string) (int64, error) {
	return 0, nil
}

func (r *fakeNotifRepo) SetRead(ctx context.Context, id, userID string, read bool) error {
	return nil
}

func (r *fakeNotifRepo) MarkAllRead(ctx context.Context, userID string) error {
	return nil
}

func (r *fakeNotifRepo) ofType(typ notification.Type) []*notification.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*notification.Notification
	for _, n := range r.created {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

func newCommentTestService() (*Service, *fakeCommentRepo, *fakeNotifRepo) {
	repo := newFakeCommentRepo()
	taskRepo := &fakeTaskRepo{tasks: map[string]*task.Task{
		"task-1": {
			ID: "task-1", TaskNumber: 7, Title: "wire the release",
			Status: task.StatusInProgress, Priority: task.PriorityMedium,
			CreatorID: "alice", AssigneeID: "bob",
			CreatedAt: time.Now(), UpdatedAt: time.Now(),
		},
	}}
	notifRepo := &fakeNotifRepo{}
	bus := eventbus.New()
	svc := NewService(repo, taskRepo, notification.NewEmitter(notifRepo, bus), bus)
	return svc, repo, notifRepo
}

func TestMentions(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"single", "ping @bob about this", []string{"bob"}},
		{"leading", "@bob take a look", []string{"bob"}},
		{"several", "@bob and @carol, then @bob again", []string{"bob", "carol"}},
		{"punctuation boundary", "(@bob) @carol: @dave.", []string{"bob", "carol", "dave"}},
		{"email is not a mention", "reach me at alice@example.com", nil},
		{"hyphen and underscore", "cc @ci-bot and @on_call", []string{"ci-bot", "on_call"}},
		{"bare at", "meet @ noon", nil},
		{"newline boundary", "first line\n@bob second", []string{"bob"}},
		{"none", "nothing to see", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Mentions(tt.body))
		})
	}
}

func TestMentionsCap(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 25; i++ {
		sb.WriteString(" @user")
		sb.WriteByte(byte('a' + i))
	}
	got := Mentions(sb.String())
	require.Len(t, got, 16)
	assert.Equal(t, "usera", got[0])
	assert.Equal(t, "userp", got[15])
}

func TestCreateComment(t *testing.T) {
	svc, _, _ := newCommentTestService()
	ctx := context.Background()

	c, err := svc.Create(ctx, "task-1", "", "looks good", "carol")
	require.NoError(t, err)
	assert.Equal(t, "task-1", c.TaskID)
	assert.Equal(t, "carol", c.AuthorID)
	assert.Empty(t, c.ParentID)
	assert.NotEmpty(t, c.ID)

	reply, err := svc.Create(ctx, "task-1", c.ID, "agreed", "bob")
	require.NoError(t, err)
	assert.Equal(t, c.ID, reply.ParentID)

	list, err := svc.ListByTask(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, c.ID, list[0].ID)
}

func TestCreateCommentValidation(t *testing.T) {
	svc, _, _ := newCommentTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, "task-1", "", "   ", "carol")
	var ce *cerr.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, cerr.InvalidArgument, ce.Code)

	_, err = svc.Create(ctx, "missing-task", "", "hello", "carol")
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, cerr.NotFound, ce.Code)

	_, err = svc.Create(ctx, "task-1", "missing-comment", "hello", "carol")
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, cerr.NotFound, ce.Code)
}

func TestCreateCommentRejectsCrossTaskParent(t *testing.T) {
	svc, repo, _ := newCommentTestService()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &Comment{
		ID: "other", TaskID: "task-2", AuthorID: "bob", Body: "elsewhere",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))

	_, err := svc.Create(ctx, "task-1", "other", "reply across tasks", "carol")
	var ce *cerr.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, cerr.InvalidArgument, ce.Code)
}

func TestCreateCommentNotifications(t *testing.T) {
	svc, _, notifs := newCommentTestService()
	ctx := context.Background()

	// carol comments: assignee bob and creator alice each hear once.
	_, err := svc.Create(ctx, "task-1", "", "shipping today", "carol")
	require.NoError(t, err)
	added := notifs.ofType(notification.TypeCommentAdded)
	require.Len(t, added, 2)
	assert.Equal(t, "bob", added[0].UserID)
	assert.Equal(t, "alice", added[1].UserID)

	// The author's own comment does not notify them, even as assignee.
	notifs.mu.Lock()
	notifs.created = nil
	notifs.mu.Unlock()
	_, err = svc.Create(ctx, "task-1", "", "my own note", "bob")
	require.NoError(t, err)
	added = notifs.ofType(notification.TypeCommentAdded)
	require.Len(t, added, 1)
	assert.Equal(t, "alice", added[0].UserID)
}

func TestCreateCommentMentionNotifications(t *testing.T) {
	svc, _, notifs := newCommentTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, "task-1", "", "@dave please review, ignoring @carol", "carol")
	require.NoError(t, err)

	mentions := notifs.ofType(notification.TypeMention)
	// carol mentioned herself; only dave is notified.
	require.Len(t, mentions, 1)
	assert.Equal(t, "dave", mentions[0].UserID)
	assert.Contains(t, mentions[0].Title, "#7")
}

func TestUpdateComment(t *testing.T) {
	svc, _, _ := newCommentTestService()
	ctx := context.Background()

	c, err := svc.Create(ctx, "task-1", "", "draft", "carol")
	require.NoError(t, err)

	got, err := svc.Update(ctx, c.ID, "final", "carol")
	require.NoError(t, err)
	assert.Equal(t, "final", got.Body)

	_, err = svc.Update(ctx, c.ID, "  ", "carol")
	var ce *cerr.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, cerr.InvalidArgument, ce.Code)

	_, err = svc.Update(ctx, "missing", "body", "carol")
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, cerr.NotFound, ce.Code)
}

func TestCreateCommentPublishesEvent(t *testing.T) {
	svc, _, _ := newCommentTestService()
	bus := svc.eventBus
	_, ch := bus.Subscribe(8)

	c, err := svc.Create(context.Background(), "task-1", "", "observable", "carol")
	require.NoError(t, err)

	// The COMMENT_ADDED notifications publish their own events first, so
	// scan past those until the comment event shows up.
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type != eventbus.TypeCommentCreated {
				continue
			}
			assert.Equal(t, c.ID, ev.ResourceID)
			assert.Equal(t, "task-1", ev.Metadata["taskId"])
			return
		case <-deadline:
			t.Fatal("no comment event published")
		}
	}
}
