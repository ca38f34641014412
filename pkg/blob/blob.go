package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested key does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store provides an abstraction over key-value style blob storage. It holds
// attachment payloads and template snapshots; metadata lives in the database.
type Store interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, key string) (bool, error)
}
