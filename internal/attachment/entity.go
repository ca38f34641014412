package attachment

import "time"

// Attachment is the metadata row for a stored file. The payload lives in blob
// storage under BlobKey; deleting the task cascades the row away, and the
// cleaner removes the orphaned blobs by prefix.
type Attachment struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"taskId"`
	UploaderID  string    `json:"uploaderId"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType,omitempty"`
	SizeBytes   int64     `json:"sizeBytes"`
	BlobKey     string    `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
}
