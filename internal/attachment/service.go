package attachment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/taskloom/taskloom/internal/task"
	"github.com/taskloom/taskloom/pkg/blob"
	"github.com/taskloom/taskloom/pkg/cerr"
)

type Service struct {
	repo  Repository
	tasks task.Repository
	blobs blob.Store
	now   func() time.Time
}

func NewService(repo Repository, tasks task.Repository, blobs blob.Store) *Service {
	return &Service{
		repo:  repo,
		tasks: tasks,
		blobs: blobs,
		now:   time.Now,
	}
}

// blobKey keeps the original extension so downloads keep a usable name even
// when only the key survives.
func blobKey(taskID, attachmentID, fileName string) string {
	return fmt.Sprintf("attachments/%s/%s%s", taskID, attachmentID, filepath.Ext(fileName))
}

func (s *Service) Upload(ctx context.Context, taskID, fileName, contentType string, data []byte, uploader string) (*Attachment, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "file name is required", nil)
	}
	if _, err := s.tasks.Get(ctx, taskID); err != nil {
		return nil, err
	}

	a := &Attachment{
		ID:          ulid.Make().String(),
		TaskID:      taskID,
		UploaderID:  uploader,
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		CreatedAt:   s.now(),
	}
	a.BlobKey = blobKey(taskID, a.ID, fileName)

	if err := s.blobs.Write(ctx, a.BlobKey, data); err != nil {
		return nil, cerr.WrapBlobWriteError("attachment", err)
	}
	if err := s.repo.Create(ctx, a); err != nil {
		if derr := s.blobs.Delete(ctx, a.BlobKey); derr != nil {
			slog.WarnContext(ctx, "failed to remove blob after metadata write failed", "key", a.BlobKey, "error", derr)
		}
		return nil, err
	}
	return a, nil
}

func (s *Service) Download(ctx context.Context, id string) (*Attachment, []byte, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.blobs.Read(ctx, a.BlobKey)
	if err != nil {
		return nil, nil, cerr.WrapBlobReadError("attachment", err)
	}
	return a, data, nil
}

func (s *Service) ListByTask(ctx context.Context, taskID string) ([]*Attachment, error) {
	if _, err := s.tasks.Get(ctx, taskID); err != nil {
		return nil, err
	}
	return s.repo.ListByTask(ctx, taskID)
}

// Delete removes the metadata row first; the blob delete is best effort, the
// cleaner sweeps what it misses.
func (s *Service) Delete(ctx context.Context, id string) error {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, a.BlobKey); err != nil && !errors.Is(err, blob.ErrNotFound) {
		slog.WarnContext(ctx, "failed to delete attachment blob", "key", a.BlobKey, "error", err)
	}
	return nil
}
