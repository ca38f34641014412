package repositoryimpl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/taskloom/taskloom/internal/pushsubscription"
	"github.com/taskloom/taskloom/pkg/cerr"
)

const subscriptionColumns = `id, user_id, endpoint, p256dh_key, auth_key, created_at`

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, s *pushsubscription.Subscription) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO push_subscriptions (`+subscriptionColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.Endpoint, s.P256dhKey, s.AuthKey, s.CreatedAt.UTC())
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to insert push subscription: %w", err))
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*pushsubscription.Subscription, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM push_subscriptions WHERE id = ?`, id)
	s, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cerr.NewError(cerr.NotFound, "push subscription not found", nil)
	}
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read push subscription: %w", err))
	}
	return s, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*pushsubscription.Subscription, error) {
	return r.querySubscriptions(ctx, `SELECT `+subscriptionColumns+` FROM push_subscriptions ORDER BY id ASC`)
}

func (r *SQLiteRepository) ListByUser(ctx context.Context, userID string) ([]*pushsubscription.Subscription, error) {
	return r.querySubscriptions(ctx, `SELECT `+subscriptionColumns+` FROM push_subscriptions WHERE user_id = ? ORDER BY id ASC`, userID)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE id = ?`, id)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to delete push subscription: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read rows affected: %w", err))
	}
	if n == 0 {
		return cerr.NewError(cerr.NotFound, "push subscription not found", nil)
	}
	return nil
}

func (r *SQLiteRepository) FindByEndpoint(ctx context.Context, endpoint string) (*pushsubscription.Subscription, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	s, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cerr.NewError(cerr.NotFound, "push subscription not found", nil)
	}
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read push subscription: %w", err))
	}
	return s, nil
}

func (r *SQLiteRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to delete push subscription: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read rows affected: %w", err))
	}
	if n == 0 {
		return cerr.NewError(cerr.NotFound, "push subscription not found", nil)
	}
	return nil
}

func (r *SQLiteRepository) querySubscriptions(ctx context.Context, query string, args ...any) ([]*pushsubscription.Subscription, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to query push subscriptions: %w", err))
	}
	defer rows.Close()

	var subs []*pushsubscription.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to scan push subscription: %w", err))
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to iterate push subscriptions: %w", err))
	}
	return subs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*pushsubscription.Subscription, error) {
	var s pushsubscription.Subscription
	err := row.Scan(&s.ID, &s.UserID, &s.Endpoint, &s.P256dhKey, &s.AuthKey, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}
