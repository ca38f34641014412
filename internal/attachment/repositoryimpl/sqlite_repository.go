package repositoryimpl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/taskloom/taskloom/internal/attachment"
	"github.com/taskloom/taskloom/pkg/cerr"
)

const attachmentColumns = `id, task_id, uploader_id, file_name, content_type, size_bytes, blob_key, created_at`

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, a *attachment.Attachment) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO attachments (`+attachmentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TaskID, a.UploaderID, a.FileName, a.ContentType, a.SizeBytes, a.BlobKey, a.CreatedAt.UTC())
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to insert attachment: %w", err))
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*attachment.Attachment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE id = ?`, id)
	a, err := scanAttachment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cerr.NewError(cerr.NotFound, "attachment not found", nil)
	}
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read attachment: %w", err))
	}
	return a, nil
}

func (r *SQLiteRepository) ListByTask(ctx context.Context, taskID string) ([]*attachment.Attachment, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+attachmentColumns+` FROM attachments
		WHERE task_id = ? ORDER BY created_at ASC, id ASC`, taskID)
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

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = ?`, id)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to delete attachment: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read rows affected: %w", err))
	}
	if n == 0 {
		return cerr.NewError(cerr.NotFound, "attachment not found", nil)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttachment(row rowScanner) (*attachment.Attachment, error) {
	var a attachment.Attachment
	err := row.Scan(&a.ID, &a.TaskID, &a.UploaderID, &a.FileName, &a.ContentType, &a.SizeBytes, &a.BlobKey, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}
