package attachment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/taskloom/taskloom/internal/eventbus"
	"github.com/taskloom/taskloom/pkg/blob"
)

// Cleaner removes attachment blobs once their task is gone. The metadata rows
// cascade away with the task before their keys can be read back, so the keys
// are recovered from the blob store by prefix instead.
type Cleaner struct {
	eventBus *eventbus.Bus
	blobs    blob.Store
}

func NewCleaner(eventBus *eventbus.Bus, blobs blob.Store) *Cleaner {
	return &Cleaner{
		eventBus: eventBus,
		blobs:    blobs,
	}
}

// Start consumes the bus until ctx is done. Run it on its own goroutine.
func (c *Cleaner) Start(ctx context.Context) {
	id, events := c.eventBus.Subscribe(64)
	defer c.eventBus.Unsubscribe(id)

	slog.InfoContext(ctx, "attachment cleaner started")
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "attachment cleaner stopped")
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Type != eventbus.TypeTaskDeleted {
				continue
			}
			c.sweepTask(ctx, event.ResourceID)
		}
	}
}

func (c *Cleaner) sweepTask(ctx context.Context, taskID string) {
	prefix := fmt.Sprintf("attachments/%s/", taskID)
	keys, err := c.blobs.List(ctx, prefix)
	if err != nil {
		slog.WarnContext(ctx, "attachment cleaner: failed to list blobs", "prefix", prefix, "error", err)
		return
	}
	for _, key := range keys {
		if err := c.blobs.Delete(ctx, key); err != nil && !errors.Is(err, blob.ErrNotFound) {
			slog.WarnContext(ctx, "attachment cleaner: failed to delete blob", "key", key, "error", err)
		}
	}
}
