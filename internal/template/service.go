package template

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/taskloom/taskloom/internal/task"
)

type Service struct {
	repo    Repository
	tasks   task.Repository
	taskSvc *task.Service
	now     func() time.Time
}

func NewService(repo Repository, tasks task.Repository, taskSvc *task.Service) *Service {
	return &Service{
		repo:    repo,
		tasks:   tasks,
		taskSvc: taskSvc,
		now:     time.Now,
	}
}

// SaveAsTemplate snapshots the task's structural fields. The task keeps
// working as before; only its savedAsTemplate flag flips on.
func (s *Service) SaveAsTemplate(ctx context.Context, taskID, name, actor string) (*TaskTemplate, error) {
	t, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = t.Title
	}

	tpl := &TaskTemplate{
		ID:             ulid.Make().String(),
		Name:           name,
		Title:          t.Title,
		Description:    t.Description,
		Tags:           t.Tags,
		Priority:       t.Priority,
		EstimatedHours: t.EstimatedHours,
		CreatorID:      actor,
		CreatedAt:      s.now(),
	}
	if err := s.repo.Create(ctx, tpl); err != nil {
		return nil, err
	}

	t.SavedAsTemplate = true
	t.UpdatedAt = s.now()
	if err := s.tasks.Update(ctx, t); err != nil {
		return nil, err
	}
	return tpl, nil
}

// CreateFromTemplate builds a brand new task from the snapshot: fresh id,
// fresh number, status TODO, created by actor.
func (s *Service) CreateFromTemplate(ctx context.Context, templateID, actor string) (*task.Task, error) {
	tpl, err := s.repo.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	return s.taskSvc.Create(ctx, task.CreateRequest{
		Title:          tpl.Title,
		Description:    tpl.Description,
		Tags:           tpl.Tags,
		Priority:       tpl.Priority,
		EstimatedHours: tpl.EstimatedHours,
	}, actor)
}

func (s *Service) Get(ctx context.Context, id string) (*TaskTemplate, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*TaskTemplate, error) {
	return s.repo.List(ctx)
}

// Delete removes the template only; tasks created from it, and the source
// task's savedAsTemplate flag, stay as they are.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
