package task

import "time"

type Status string

const (
	StatusBacklog    Status = "BACKLOG"
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusReview     Status = "REVIEW"
	StatusDone       Status = "DONE"
	StatusArchived   Status = "ARCHIVED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusBacklog, StatusTodo, StatusInProgress, StatusReview, StatusDone, StatusArchived:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type Task struct {
	ID          string   `json:"id"`
	TaskNumber  int64    `json:"taskNumber"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Status      Status   `json:"status"`
	Priority    Priority `json:"priority"`
	Archived    bool     `json:"archived"`

	DueDate        *time.Time `json:"dueDate,omitempty"`
	EstimatedHours *float64   `json:"estimatedHours,omitempty"`
	ActualHours    *float64   `json:"actualHours,omitempty"`

	CreatorID  string `json:"creatorId"`
	AssigneeID string `json:"assigneeId,omitempty"`
	ParentID   string `json:"parentId,omitempty"`

	// TrackingStartTime is set iff TrackingActive is true.
	TrackingActive      bool       `json:"timeTrackingActive"`
	TrackingStartTime   *time.Time `json:"trackingStartTime,omitempty"`
	TrackingTimeSeconds int64      `json:"trackingTimeSeconds"`

	SavedAsTemplate bool `json:"savedAsTemplate"`

	DueReminderSentAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Details is a Task together with its aggregate counts. The counts are
// computed from the child rows on every read, never stored on the task.
type Details struct {
	*Task
	SubtaskCount    int64 `json:"subtaskCount"`
	CommentCount    int64 `json:"commentCount"`
	AttachmentCount int64 `json:"attachmentCount"`
}
