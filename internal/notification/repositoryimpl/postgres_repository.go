package repositoryimpl

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskloom/taskloom/internal/notification"
	"github.com/taskloom/taskloom/pkg/cerr"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, n *notification.Notification) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO notifications (`+notificationColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, nullString(n.ResourceType), nullString(n.ResourceID), n.Read, n.CreatedAt.UTC())
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to insert notification: %w", err))
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*notification.Notification, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	n, err := scanPostgresNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cerr.NewError(cerr.NotFound, "notification not found", nil)
	}
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read notification: %w", err))
	}
	return n, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*notification.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1`
	if unreadOnly {
		query += ` AND read = FALSE`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to query notifications: %w", err))
	}
	defer rows.Close()

	var notifications []*notification.Notification
	for rows.Next() {
		n, err := scanPostgresNotification(rows)
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

func (r *PostgresRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE`, userID).Scan(&n)
	if err != nil {
		return 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to count notifications: %w", err))
	}
	return n, nil
}

func (r *PostgresRepository) SetRead(ctx context.Context, id, userID string, read bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET read = $1 WHERE id = $2 AND user_id = $3`, read, id, userID)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to update notification: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return cerr.NewError(cerr.NotFound, "notification not found", nil)
	}
	return nil
}

func (r *PostgresRepository) MarkAllRead(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE`, userID)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to update notifications: %w", err))
	}
	return nil
}

func scanPostgresNotification(row rowScanner) (*notification.Notification, error) {
	var (
		n            notification.Notification
		resourceType *string
		resourceID   *string
	)
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &resourceType, &resourceID, &n.Read, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	if resourceType != nil {
		n.ResourceType = *resourceType
	}
	if resourceID != nil {
		n.ResourceID = *resourceID
	}
	n.CreatedAt = n.CreatedAt.UTC()
	return &n, nil
}
