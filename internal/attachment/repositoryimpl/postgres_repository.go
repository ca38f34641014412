package repositoryimpl

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskloom/taskloom/internal/attachment"
	"github.com/taskloom/taskloom/pkg/cerr"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, a *attachment.Attachment) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO attachments (`+attachmentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.TaskID, a.UploaderID, a.FileName, a.ContentType, a.SizeBytes, a.BlobKey, a.CreatedAt.UTC())
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to insert attachment: %w", err))
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*attachment.Attachment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE id = $1`, id)
	a, err := scanAttachment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cerr.NewError(cerr.NotFound, "attachment not found", nil)
	}
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read attachment: %w", err))
	}
	return a, nil
}

func (r *PostgresRepository) ListByTask(ctx context.Context, taskID string) ([]*attachment.Attachment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+attachmentColumns+` FROM attachments
		WHERE task_id = $1 ORDER BY created_at ASC, id ASC`, taskID)
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to query attachments: %w", err))
	}
	defer rows.Close()

	var attachments []*attachment.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to scan attachment: %w", err))
		}
		attachments = append(attachments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to iterate attachments: %w", err))
	}
	return attachments, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM attachments WHERE id = $1`, id)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to delete attachment: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return cerr.NewError(cerr.NotFound, "attachment not found", nil)
	}
	return nil
}
