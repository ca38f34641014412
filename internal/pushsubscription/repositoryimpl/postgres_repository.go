package repositoryimpl

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskloom/taskloom/internal/pushsubscription"
	"github.com/taskloom/taskloom/pkg/cerr"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, s *pushsubscription.Subscription) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO push_subscriptions (`+subscriptionColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.UserID, s.Endpoint, s.P256dhKey, s.AuthKey, s.CreatedAt.UTC())
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to insert push subscription: %w", err))
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*pushsubscription.Subscription, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM push_subscriptions WHERE id = $1`, id)
	s, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cerr.NewError(cerr.NotFound, "push subscription not found", nil)
	}
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read push subscription: %w", err))
	}
	return s, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*pushsubscription.Subscription, error) {
	return r.querySubscriptions(ctx, `SELECT `+subscriptionColumns+` FROM push_subscriptions ORDER BY id ASC`)
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*pushsubscription.Subscription, error) {
	return r.querySubscriptions(ctx, `SELECT `+subscriptionColumns+` FROM push_subscriptions WHERE user_id = $1 ORDER BY id ASC`, userID)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE id = $1`, id)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to delete push subscription: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return cerr.NewError(cerr.NotFound, "push subscription not found", nil)
	}
	return nil
}

func (r *PostgresRepository) FindByEndpoint(ctx context.Context, endpoint string) (*pushsubscription.Subscription, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	s, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cerr.NewError(cerr.NotFound, "push subscription not found", nil)
	}
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read push subscription: %w", err))
	}
	return s, nil
}

func (r *PostgresRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to delete push subscription: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return cerr.NewError(cerr.NotFound, "push subscription not found", nil)
	}
	return nil
}

func (r *PostgresRepository) querySubscriptions(ctx context.Context, query string, args ...any) ([]*pushsubscription.Subscription, error) {
	rows, err := r.pool.Query(ctx, query, args...)
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
