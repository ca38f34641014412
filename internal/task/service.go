package task

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/taskloom/taskloom/internal/eventbus"
	"github.com/taskloom/taskloom/internal/notification"
	"github.com/taskloom/taskloom/pkg/cerr"
)

// Service is the task domain engine: status and priority transitions,
// hierarchy changes, the time tracking protocol, and the notification side
// effects those transitions trigger. It holds no state of its own; the
// repository is the single point of mutual exclusion.
type Service struct {
	repo     Repository
	emitter  *notification.Emitter
	eventBus *eventbus.Bus
	now      func() time.Time
}

func NewService(repo Repository, emitter *notification.Emitter, eventBus *eventbus.Bus) *Service {
	return &Service{
		repo:     repo,
		emitter:  emitter,
		eventBus: eventBus,
		now:      time.Now,
	}
}

type CreateRequest struct {
	Title          string
	Description    string
	Tags           []string
	Priority       Priority
	DueDate        *time.Time
	EstimatedHours *float64
	ParentID       string
	AssigneeID     string
}

func (s *Service) Create(ctx context.Context, req CreateRequest, creator string) (*Task, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "title is required", nil)
	}
	priority := req.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.Valid() {
		return nil, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("invalid priority %q", req.Priority), ErrInvalidPriority)
	}
	if req.EstimatedHours != nil && *req.EstimatedHours < 0 {
		return nil, cerr.NewError(cerr.InvalidArgument, "estimated hours must not be negative", nil)
	}
	if req.ParentID != "" {
		if _, err := s.repo.Get(ctx, req.ParentID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	t := &Task{
		ID:             ulid.Make().String(),
		Title:          title,
		Description:    req.Description,
		Tags:           req.Tags,
		Status:         StatusTodo,
		Priority:       priority,
		DueDate:        req.DueDate,
		EstimatedHours: req.EstimatedHours,
		CreatorID:      creator,
		AssigneeID:     req.AssigneeID,
		ParentID:       req.ParentID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}

	if t.AssigneeID != "" && t.AssigneeID != creator {
		s.emitter.Emit(ctx, notification.Event{
			Type:         notification.TypeTaskAssigned,
			UserID:       t.AssigneeID,
			Title:        fmt.Sprintf("Task #%d assigned to you", t.TaskNumber),
			Message:      t.Title,
			ResourceType: "task",
			ResourceID:   t.ID,
		})
	}
	s.eventBus.PublishNew(eventbus.TypeTaskCreated, t.ID, t.Title, map[string]string{
		"creatorId":  t.CreatorID,
		"assigneeId": t.AssigneeID,
	})
	return t, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Details, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.Counts(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Details{
		Task:            t,
		SubtaskCount:    counts.Subtasks,
		CommentCount:    counts.Comments,
		AttachmentCount: counts.Attachments,
	}, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Task, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("invalid status %q", f.Status), ErrInvalidStatus)
	}
	return s.repo.List(ctx, f)
}

// ListByStatus applies the visibility rule of the listing surface: BACKLOG is
// globally visible, every other status is restricted to tasks the requester
// created or is assigned to.
func (s *Service) ListByStatus(ctx context.Context, status Status, requester string) ([]*Task, error) {
	if !status.Valid() {
		return nil, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("invalid status %q", status), ErrInvalidStatus)
	}
	return s.repo.ListByStatus(ctx, status, requester)
}

func (s *Service) ListSubtasks(ctx context.Context, parentID string) ([]*Task, error) {
	if _, err := s.repo.Get(ctx, parentID); err != nil {
		return nil, err
	}
	return s.repo.ListSubtasks(ctx, parentID)
}

// Search unions case-insensitive substring matches on title and description,
// exact tag matches, and an exact task number match when the query parses as
// an integer, deduplicated by task id.
func (s *Service) Search(ctx context.Context, query string) ([]*Task, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "query is required", nil)
	}
	return s.repo.Search(ctx, query)
}

type UpdateRequest struct {
	Title          *string
	Description    *string
	Tags           []string
	DueDate        *time.Time
	ClearDueDate   bool
	EstimatedHours *float64
	ActualHours    *float64
	Archived       *bool
}

func (s *Service) Update(ctx context.Context, id string, req UpdateRequest, actor string) (*Task, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, cerr.NewError(cerr.InvalidArgument, "title must not be empty", nil)
		}
		t.Title = title
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Tags != nil {
		t.Tags = req.Tags
	}
	if req.ClearDueDate {
		t.DueDate = nil
		t.DueReminderSentAt = nil
	} else if req.DueDate != nil {
		if t.DueDate == nil || !t.DueDate.Equal(*req.DueDate) {
			// A new due date re-arms the reminder.
			t.DueReminderSentAt = nil
		}
		t.DueDate = req.DueDate
	}
	if req.EstimatedHours != nil {
		if *req.EstimatedHours < 0 {
			return nil, cerr.NewError(cerr.InvalidArgument, "estimated hours must not be negative", nil)
		}
		t.EstimatedHours = req.EstimatedHours
	}
	if req.ActualHours != nil {
		if *req.ActualHours < 0 {
			return nil, cerr.NewError(cerr.InvalidArgument, "actual hours must not be negative", nil)
		}
		t.ActualHours = req.ActualHours
	}
	if req.Archived != nil {
		t.Archived = *req.Archived
	}
	t.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	s.notifyTaskUpdated(ctx, t, actor, "Task details were updated")
	s.publishTaskUpdated(t, "fields")
	return t, nil
}

func (s *Service) Delete(ctx context.Context, id string, actor string) error {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.eventBus.PublishNew(eventbus.TypeTaskDeleted, id, t.Title, map[string]string{
		"creatorId": t.CreatorID,
	})
	return nil
}

// SetStatus applies a status transition. Any status may follow any status;
// only enum validity is checked. Entering ARCHIVED also sets the archived
// flag, but leaving ARCHIVED does not clear it: callers clear it explicitly
// through Update. Keep that asymmetry.
func (s *Service) SetStatus(ctx context.Context, id string, status Status, actor string) (*Task, error) {
	if !status.Valid() {
		return nil, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("invalid status %q", status), ErrInvalidStatus)
	}
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Status = status
	if status == StatusArchived {
		t.Archived = true
	}
	t.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	s.notifyTaskUpdated(ctx, t, actor, fmt.Sprintf("Status changed to %s", status))
	s.publishTaskUpdated(t, "status")
	return t, nil
}

func (s *Service) SetPriority(ctx context.Context, id string, priority Priority, actor string) (*Task, error) {
	if !priority.Valid() {
		return nil, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("invalid priority %q", priority), ErrInvalidPriority)
	}
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Priority = priority
	t.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	s.notifyTaskUpdated(ctx, t, actor, fmt.Sprintf("Priority changed to %s", priority))
	s.publishTaskUpdated(t, "priority")
	return t, nil
}

// SetAssignee reassigns the task. An empty assignee unassigns it.
func (s *Service) SetAssignee(ctx context.Context, id string, assigneeID string, actor string) (*Task, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	t.AssigneeID = assigneeID
	t.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	if assigneeID != "" && assigneeID != actor {
		s.emitter.Emit(ctx, notification.Event{
			Type:         notification.TypeTaskAssigned,
			UserID:       assigneeID,
			Title:        fmt.Sprintf("Task #%d assigned to you", t.TaskNumber),
			Message:      t.Title,
			ResourceType: "task",
			ResourceID:   t.ID,
		})
	}
	s.publishTaskUpdated(t, "assignee")
	return t, nil
}

func (s *Service) StartTracking(ctx context.Context, id string, actor string) (*Task, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.TrackingActive {
		return nil, cerr.NewError(cerr.FailedPrecondition, "time tracking is already running", ErrAlreadyTracking)
	}
	at := s.now()
	if err := s.repo.BeginTracking(ctx, id, at); err != nil {
		return nil, err
	}
	t.TrackingActive = true
	t.TrackingStartTime = &at
	t.UpdatedAt = at
	return t, nil
}

func (s *Service) StopTracking(ctx context.Context, id string, actor string) (*Task, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	// A set start time without the active flag, or the reverse, is corrupted
	// state; both read as "not tracking" rather than silently repairing.
	if !t.TrackingActive || t.TrackingStartTime == nil {
		return nil, cerr.NewError(cerr.FailedPrecondition, "time tracking is not running", ErrNotTracking)
	}
	at := s.now()
	elapsed := int64(at.Sub(*t.TrackingStartTime) / time.Second)
	if elapsed < 0 {
		// Clock skew can place the start in the future. Count zero seconds
		// instead of shrinking the accumulated total.
		elapsed = 0
	}
	if err := s.repo.FinishTracking(ctx, id, *t.TrackingStartTime, elapsed, at); err != nil {
		return nil, err
	}
	t.TrackingActive = false
	t.TrackingStartTime = nil
	t.TrackingTimeSeconds += elapsed
	t.UpdatedAt = at
	return t, nil
}

// AttachSubtask makes childID a subtask of parentID. The ancestor walk here
// gives a deterministic answer against the state we read; the repository
// re-checks the chain inside the write itself so two concurrent restructures
// cannot slip a cycle past both checks.
func (s *Service) AttachSubtask(ctx context.Context, childID, parentID string, actor string) (*Task, error) {
	if childID == parentID {
		return nil, cerr.NewError(cerr.FailedPrecondition, "task cannot be its own parent", ErrHierarchyCycle)
	}
	child, err := s.repo.Get(ctx, childID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.Get(ctx, parentID); err != nil {
		return nil, err
	}
	cycle, err := s.wouldCycle(ctx, childID, parentID)
	if err != nil {
		return nil, err
	}
	if cycle {
		return nil, cerr.NewError(cerr.FailedPrecondition, "attaching would create a cycle", ErrHierarchyCycle)
	}

	at := s.now()
	if err := s.repo.SetParent(ctx, childID, parentID, at); err != nil {
		return nil, err
	}
	child.ParentID = parentID
	child.UpdatedAt = at
	s.publishTaskUpdated(child, "parent")
	return child, nil
}

func (s *Service) DetachSubtask(ctx context.Context, childID string, actor string) (*Task, error) {
	child, err := s.repo.Get(ctx, childID)
	if err != nil {
		return nil, err
	}
	at := s.now()
	if err := s.repo.ClearParent(ctx, childID, at); err != nil {
		return nil, err
	}
	child.ParentID = ""
	child.UpdatedAt = at
	s.publishTaskUpdated(child, "parent")
	return child, nil
}

// wouldCycle walks the parent chain upward from parentID looking for
// childID. The walk is bounded by the total task count so a corrupted chain
// cannot loop forever; exceeding the bound reads as a cycle.
func (s *Service) wouldCycle(ctx context.Context, childID, parentID string) (bool, error) {
	total, err := s.repo.Count(ctx)
	if err != nil {
		return false, err
	}
	cur := parentID
	for i := int64(0); i <= total; i++ {
		if cur == childID {
			return true, nil
		}
		p, err := s.repo.Get(ctx, cur)
		if err != nil {
			return false, err
		}
		if p.ParentID == "" {
			return false, nil
		}
		cur = p.ParentID
	}
	return true, nil
}

func (s *Service) notifyTaskUpdated(ctx context.Context, t *Task, actor, message string) {
	title := fmt.Sprintf("Task #%d updated", t.TaskNumber)
	if t.AssigneeID != "" && t.AssigneeID != actor {
		s.emitter.Emit(ctx, notification.Event{
			Type:         notification.TypeTaskUpdated,
			UserID:       t.AssigneeID,
			Title:        title,
			Message:      message,
			ResourceType: "task",
			ResourceID:   t.ID,
		})
	}
	if t.CreatorID != actor && t.CreatorID != t.AssigneeID {
		s.emitter.Emit(ctx, notification.Event{
			Type:         notification.TypeTaskUpdated,
			UserID:       t.CreatorID,
			Title:        title,
			Message:      message,
			ResourceType: "task",
			ResourceID:   t.ID,
		})
	}
}

func (s *Service) publishTaskUpdated(t *Task, change string) {
	s.eventBus.PublishNew(eventbus.TypeTaskUpdated, t.ID, t.Title, map[string]string{
		"change":     change,
		"creatorId":  t.CreatorID,
		"assigneeId": t.AssigneeID,
	})
}
