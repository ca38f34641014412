package notification

import "context"

type Repository interface {
	Create(ctx context.Context, n *Notification) error
	Get(ctx context.Context, id string) (*Notification, error)
	// ListByUser returns the user's notifications newest first. limit <= 0
	// means no limit.
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	// SetRead toggles the read flag of the user's own notification.
	SetRead(ctx context.Context, id, userID string, read bool) error
	MarkAllRead(ctx context.Context, userID string) error
}
