package repositoryimpl

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskloom/taskloom/internal/comment"
	"github.com/taskloom/taskloom/pkg/cerr"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, c *comment.Comment) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO comments (`+commentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.TaskID, nullString(c.ParentID), c.AuthorID, c.Body, c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to insert comment: %w", err))
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*comment.Comment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = $1`, id)
	c, err := scanPostgresComment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cerr.NewError(cerr.NotFound, "comment not found", nil)
	}
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read comment: %w", err))
	}
	return c, nil
}

func (r *PostgresRepository) ListByTask(ctx context.Context, taskID string) ([]*comment.Comment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+commentColumns+` FROM comments
		WHERE task_id = $1 ORDER BY created_at ASC, id ASC`, taskID)
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to query comments: %w", err))
	}
	defer rows.Close()

	var comments []*comment.Comment
	for rows.Next() {
		c, err := scanPostgresComment(rows)
		if err != nil {
			return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to scan comment: %w", err))
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to iterate comments: %w", err))
	}
	return comments, nil
}

func (r *PostgresRepository) Update(ctx context.Context, c *comment.Comment) error {
	tag, err := r.pool.Exec(ctx, `UPDATE comments SET body = $1, updated_at = $2 WHERE id = $3`,
		c.Body, c.UpdatedAt.UTC(), c.ID)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to update comment: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return cerr.NewError(cerr.NotFound, "comment not found", nil)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to delete comment: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return cerr.NewError(cerr.NotFound, "comment not found", nil)
	}
	return nil
}

func scanPostgresComment(row rowScanner) (*comment.Comment, error) {
	var (
		c        comment.Comment
		parentID *string
	)
	err := row.Scan(&c.ID, &c.TaskID, &parentID, &c.AuthorID, &c.Body, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if parentID != nil {
		c.ParentID = *parentID
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}
