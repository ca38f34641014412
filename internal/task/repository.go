package task

import (
	"context"
	"time"
)

type Filter struct {
	Status   Status
	Assignee string
	ParentID string
	Limit    int
	Offset   int
}

type Counts struct {
	Subtasks    int64
	Comments    int64
	Attachments int64
}

// Repository is the task store. Mutually exclusive transitions (tracking,
// reparenting, reminder stamps) are conditional writes: the row is updated
// only if it still matches the expected prior state, and a miss is reported
// as the matching domain error so callers can retry.
type Repository interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context, f Filter) ([]*Task, int, error)
	ListByStatus(ctx context.Context, status Status, requester string) ([]*Task, error)
	ListSubtasks(ctx context.Context, parentID string) ([]*Task, error)
	// ListDue reports open tasks due no later than until whose reminder has
	// not been sent yet. Overdue tasks stay in the result until stamped.
	ListDue(ctx context.Context, until time.Time) ([]*Task, error)
	Search(ctx context.Context, query string) ([]*Task, error)
	Count(ctx context.Context) (int64, error)
	Counts(ctx context.Context, id string) (Counts, error)
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, id string) error

	// BeginTracking opens a tracking interval, conditional on the task being
	// idle.
	BeginTracking(ctx context.Context, id string, at time.Time) error
	// FinishTracking closes a tracking interval and adds addSeconds to the
	// accumulated total, conditional on the interval still being the one
	// opened at startedAt.
	FinishTracking(ctx context.Context, id string, startedAt time.Time, addSeconds int64, at time.Time) error
	// SetParent reparents a task, conditional on the new parent chain not
	// containing the task itself.
	SetParent(ctx context.Context, childID, parentID string, at time.Time) error
	ClearParent(ctx context.Context, childID string, at time.Time) error
	// MarkDueReminded stamps the reminder time, conditional on no reminder
	// having been sent for the current due date. Reports whether this caller
	// won the stamp.
	MarkDueReminded(ctx context.Context, id string, due time.Time, at time.Time) (bool, error)
}
