package notification

import "time"

type Type string

const (
	TypeTaskAssigned    Type = "TASK_ASSIGNED"
	TypeTaskUpdated     Type = "TASK_UPDATED"
	TypeCommentAdded    Type = "COMMENT_ADDED"
	TypeDueDateReminder Type = "DUE_DATE_REMINDER"
	TypeMention         Type = "MENTION"
	TypeSystem          Type = "SYSTEM"
)

func (t Type) Valid() bool {
	switch t {
	case TypeTaskAssigned, TypeTaskUpdated, TypeCommentAdded, TypeDueDateReminder, TypeMention, TypeSystem:
		return true
	}
	return false
}

// Notification is created by the engine's side effects. Only the Read flag
// is ever mutated afterwards.
type Notification struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Type         Type      `json:"type"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	ResourceType string    `json:"resourceType,omitempty"`
	ResourceID   string    `json:"resourceId,omitempty"`
	Read         bool      `json:"read"`
	CreatedAt    time.Time `json:"createdAt"`
}
