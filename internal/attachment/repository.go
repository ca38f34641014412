package attachment

import "context"

type Repository interface {
	Create(ctx context.Context, a *Attachment) error
	Get(ctx context.Context, id string) (*Attachment, error)
	ListByTask(ctx context.Context, taskID string) ([]*Attachment, error)
	Delete(ctx context.Context, id string) error
}
