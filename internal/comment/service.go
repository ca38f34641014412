package comment

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/taskloom/taskloom/internal/eventbus"
	"github.com/taskloom/taskloom/internal/notification"
	"github.com/taskloom/taskloom/internal/task"
	"github.com/taskloom/taskloom/pkg/cerr"
)

// mentionPattern matches @handle at a word boundary, so an email address does
// not read as a mention of its domain.
var mentionPattern = regexp.MustCompile(`(?:^|[^A-Za-z0-9_-])@([A-Za-z0-9_-]+)`)

const maxMentions = 16

type Service struct {
	repo     Repository
	tasks    task.Repository
	emitter  *notification.Emitter
	eventBus *eventbus.Bus
	now      func() time.Time
}

func NewService(repo Repository, tasks task.Repository, emitter *notification.Emitter, eventBus *eventbus.Bus) *Service {
	return &Service{
		repo:     repo,
		tasks:    tasks,
		emitter:  emitter,
		eventBus: eventBus,
		now:      time.Now,
	}
}

func (s *Service) Create(ctx context.Context, taskID, parentID, body, author string) (*Comment, error) {
	if strings.TrimSpace(body) == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "body is required", nil)
	}
	t, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if parentID != "" {
		parent, err := s.repo.Get(ctx, parentID)
		if err != nil {
			return nil, err
		}
		if parent.TaskID != taskID {
			return nil, cerr.NewError(cerr.InvalidArgument, "parent comment belongs to a different task", nil)
		}
	}

	now := s.now()
	c := &Comment{
		ID:        ulid.Make().String(),
		TaskID:    taskID,
		ParentID:  parentID,
		AuthorID:  author,
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	s.notifyCommentAdded(ctx, t, c)
	s.notifyMentions(ctx, t, c)
	s.eventBus.PublishNew(eventbus.TypeCommentCreated, c.ID, c.Body, map[string]string{
		"taskId":   c.TaskID,
		"authorId": c.AuthorID,
	})
	return c, nil
}

func (s *Service) ListByTask(ctx context.Context, taskID string) ([]*Comment, error) {
	if _, err := s.tasks.Get(ctx, taskID); err != nil {
		return nil, err
	}
	return s.repo.ListByTask(ctx, taskID)
}

func (s *Service) Update(ctx context.Context, id, body, actor string) (*Comment, error) {
	if strings.TrimSpace(body) == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "body is required", nil)
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Body = body
	c.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes the comment and, through the store's cascade, every reply
// under it.
func (s *Service) Delete(ctx context.Context, id string, actor string) error {
	return s.repo.Delete(ctx, id)
}

// Mentions extracts the @handles from body, deduplicated in order of first
// appearance and capped at 16.
func Mentions(body string) []string {
	matches := mentionPattern.FindAllStringSubmatch(body, -1)
	var handles []string
	seen := make(map[string]bool)
	for _, m := range matches {
		handle := m[1]
		if seen[handle] {
			continue
		}
		seen[handle] = true
		handles = append(handles, handle)
		if len(handles) == maxMentions {
			break
		}
	}
	return handles
}

func (s *Service) notifyCommentAdded(ctx context.Context, t *task.Task, c *Comment) {
	title := fmt.Sprintf("New comment on task #%d", t.TaskNumber)
	seen := map[string]bool{c.AuthorID: true}
	for _, userID := range []string{t.AssigneeID, t.CreatorID} {
		if userID == "" || seen[userID] {
			continue
		}
		seen[userID] = true
		s.emitter.Emit(ctx, notification.Event{
			Type:         notification.TypeCommentAdded,
			UserID:       userID,
			Title:        title,
			Message:      c.Body,
			ResourceType: "task",
			ResourceID:   t.ID,
		})
	}
}

func (s *Service) notifyMentions(ctx context.Context, t *task.Task, c *Comment) {
	title := fmt.Sprintf("You were mentioned on task #%d", t.TaskNumber)
	for _, handle := range Mentions(c.Body) {
		if handle == c.AuthorID {
			continue
		}
		s.emitter.Emit(ctx, notification.Event{
			Type:         notification.TypeMention,
			UserID:       handle,
			Title:        title,
			Message:      c.Body,
			ResourceType: "task",
			ResourceID:   t.ID,
		})
	}
}
