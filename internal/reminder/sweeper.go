package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskloom/taskloom/internal/config"
	"github.com/taskloom/taskloom/internal/notification"
	"github.com/taskloom/taskloom/internal/task"
)

// Sweeper periodically looks for tasks coming due and notifies the assignee,
// or the creator when nobody is assigned, once per due date. The stamp is a
// conditional update, so several instances can sweep the same store and only
// one of them emits.
type Sweeper struct {
	env     *config.ReminderEnv
	tasks   task.Repository
	emitter *notification.Emitter
	now     func() time.Time
}

func NewSweeper(env *config.ReminderEnv, tasks task.Repository, emitter *notification.Emitter) *Sweeper {
	return &Sweeper{
		env:     env,
		tasks:   tasks,
		emitter: emitter,
		now:     time.Now,
	}
}

// Start runs the sweep loop until ctx is done. Run it on its own goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	if !s.env.Enabled {
		slog.InfoContext(ctx, "due date reminders disabled")
		return
	}
	slog.InfoContext(ctx, "due date reminder sweeper started",
		"interval", s.env.Interval.String(), "lookahead", s.env.Lookahead.String())

	ticker := time.NewTicker(s.env.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "due date reminder sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over the due tasks.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.now()
	due, err := s.tasks.ListDue(ctx, now.Add(s.env.Lookahead))
	if err != nil {
		slog.ErrorContext(ctx, "reminder sweep: failed to list due tasks", "error", err)
		return
	}

	for _, t := range due {
		if t.DueDate == nil {
			continue
		}
		// The stamp names the due date it saw; a task whose due date moved in
		// the meantime is skipped now and picked up again with the new date.
		won, err := s.tasks.MarkDueReminded(ctx, t.ID, *t.DueDate, now)
		if err != nil {
			slog.WarnContext(ctx, "reminder sweep: failed to stamp task", "task_id", t.ID, "error", err)
			continue
		}
		if !won {
			continue
		}

		recipient := t.AssigneeID
		if recipient == "" {
			recipient = t.CreatorID
		}
		title := fmt.Sprintf("Task #%d is due soon", t.TaskNumber)
		if t.DueDate.Before(now) {
			title = fmt.Sprintf("Task #%d is overdue", t.TaskNumber)
		}
		s.emitter.Emit(ctx, notification.Event{
			Type:         notification.TypeDueDateReminder,
			UserID:       recipient,
			Title:        title,
			Message:      fmt.Sprintf("%s (due %s)", t.Title, t.DueDate.Format(time.RFC3339)),
			ResourceType: "task",
			ResourceID:   t.ID,
		})
	}
}
