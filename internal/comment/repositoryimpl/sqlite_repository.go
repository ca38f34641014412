package repositoryimpl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/taskloom/taskloom/internal/comment"
	"github.com/taskloom/taskloom/pkg/cerr"
)

const commentColumns = `id, task_id, parent_id, author_id, body, created_at, updated_at`

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, c *comment.Comment) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO comments (`+commentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TaskID, nullString(c.ParentID), c.AuthorID, c.Body, c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to insert comment: %w", err))
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*comment.Comment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = ?`, id)
	c, err := scanSQLiteComment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cerr.NewError(cerr.NotFound, "comment not found", nil)
	}
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read comment: %w", err))
	}
	return c, nil
}

func (r *SQLiteRepository) ListByTask(ctx context.Context, taskID string) ([]*comment.Comment, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+commentColumns+` FROM comments
		WHERE task_id = ? ORDER BY created_at ASC, id ASC`, taskID)
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to query comments: %w", err))
	}
	defer rows.Close()

	var comments []*comment.Comment
	for rows.Next() {
		c, err := scanSQLiteComment(rows)
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

func (r *SQLiteRepository) Update(ctx context.Context, c *comment.Comment) error {
	res, err := r.db.ExecContext(ctx, `UPDATE comments SET body = ?, updated_at = ? WHERE id = ?`,
		c.Body, c.UpdatedAt.UTC(), c.ID)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to update comment: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read rows affected: %w", err))
	}
	if n == 0 {
		return cerr.NewError(cerr.NotFound, "comment not found", nil)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to delete comment: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read rows affected: %w", err))
	}
	if n == 0 {
		return cerr.NewError(cerr.NotFound, "comment not found", nil)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteComment(row rowScanner) (*comment.Comment, error) {
	var (
		c        comment.Comment
		parentID sql.NullString
	)
	err := row.Scan(&c.ID, &c.TaskID, &parentID, &c.AuthorID, &c.Body, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.ParentID = parentID.String
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
