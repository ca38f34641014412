package comment

import "time"

// Comment is a threaded note on a task. ParentID points at another comment on
// the same task; deleting a comment removes its whole subtree, and deleting
// the task removes every comment with it.
type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"taskId"`
	ParentID  string    `json:"parentId,omitempty"`
	AuthorID  string    `json:"authorId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
