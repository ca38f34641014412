package cerr

import (
	"errors"
	"fmt"

	"github.com/taskloom/taskloom/pkg/blob"
)

func WrapBlobReadError(target string, err error) error {
	if errors.Is(err, blob.ErrNotFound) {
		return NewError(NotFound, fmt.Sprintf("%s not found", target), err)
	}
	return NewError(Internal, "server error", fmt.Errorf("failed to read %s: %w", target, err))
}

func WrapBlobWriteError(target string, err error) error {
	return NewError(Internal, "server error", fmt.Errorf("failed to write %s: %w", target, err))
}

func WrapBlobDeleteError(target string, err error) error {
	if errors.Is(err, blob.ErrNotFound) {
		return NewError(NotFound, fmt.Sprintf("%s not found", target), err)
	}
	return NewError(Internal, "server error", fmt.Errorf("failed to delete %s: %w", target, err))
}
