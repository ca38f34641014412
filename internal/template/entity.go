package template

import (
	"time"

	"github.com/taskloom/taskloom/internal/task"
)

// TaskTemplate is a frozen copy of a task's structural fields. Instantiating
// it builds a fresh task; the source task and the template never stay linked.
type TaskTemplate struct {
	ID             string        `json:"id" yaml:"id"`
	Name           string        `json:"name" yaml:"name"`
	Title          string        `json:"title" yaml:"title"`
	Description    string        `json:"description" yaml:"description"`
	Tags           []string      `json:"tags" yaml:"tags"`
	Priority       task.Priority `json:"priority" yaml:"priority"`
	EstimatedHours *float64      `json:"estimatedHours,omitempty" yaml:"estimated_hours,omitempty"`
	CreatorID      string        `json:"creatorId" yaml:"creator_id"`
	CreatedAt      time.Time     `json:"createdAt" yaml:"created_at"`
}
