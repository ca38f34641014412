package repositoryimpl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/taskloom/taskloom/internal/notification"
	"github.com/taskloom/taskloom/pkg/cerr"
)

const notificationColumns = `id, user_id, type, title, message, resource_type, resource_id, read, created_at`

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, n *notification.Notification) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO notifications (`+notificationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, nullString(n.ResourceType), nullString(n.ResourceID), n.Read, n.CreatedAt.UTC())
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to insert notification: %w", err))
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*notification.Notification, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	n, err := scanSQLiteNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cerr.NewError(cerr.NotFound, "notification not found", nil)
	}
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read notification: %w", err))
	}
	return n, nil
}

func (r *SQLiteRepository) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*notification.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to query notifications: %w", err))
	}
	defer rows.Close()

	var notifications []*notification.Notification
	for rows.Next() {
		n, err := scanSQLiteNotification(rows)
		if err != nil {
			return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to scan notification: %w", err))
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to iterate notifications: %w", err))
	}
	return notifications, nil
}

func (r *SQLiteRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read = 0`, userID).Scan(&n)
	if err != nil {
		return 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to count notifications: %w", err))
	}
	return n, nil
}

// SetRead also matches on user_id so nobody can flip someone else's flag.
func (r *SQLiteRepository) SetRead(ctx context.Context, id, userID string, read bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = ? WHERE id = ? AND user_id = ?`, read, id, userID)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to update notification: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read rows affected: %w", err))
	}
	if n == 0 {
		return cerr.NewError(cerr.NotFound, "notification not found", nil)
	}
	return nil
}

func (r *SQLiteRepository) MarkAllRead(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE user_id = ? AND read = 0`, userID)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to update notifications: %w", err))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteNotification(row rowScanner) (*notification.Notification, error) {
	var (
		n            notification.Notification
		resourceType sql.NullString
		resourceID   sql.NullString
	)
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &resourceType, &resourceID, &n.Read, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	n.ResourceType = resourceType.String
	n.ResourceID = resourceID.String
	n.CreatedAt = n.CreatedAt.UTC()
	return &n, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
