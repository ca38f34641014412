package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/taskloom/taskloom/internal/eventbus"
)

// Event is a request to notify a single user about something that happened.
type Event struct {
	Type         Type
	UserID       string
	Title        string
	Message      string
	ResourceType string
	ResourceID   string
}

// Emitter persists notifications and announces them on the bus. Emission is
// fire-and-forget: the owning operation has already committed, so failures
// here are logged and dropped, never surfaced to the caller.
type Emitter struct {
	repo Repository
	bus  *eventbus.Bus
	now  func() time.Time
}

func NewEmitter(repo Repository, bus *eventbus.Bus) *Emitter {
	return &Emitter{
		repo: repo,
		bus:  bus,
		now:  time.Now,
	}
}

func (e *Emitter) Emit(ctx context.Context, ev Event) {
	if ev.UserID == "" {
		return
	}
	if !ev.Type.Valid() {
		slog.WarnContext(ctx, "notification emitter: unknown type, dropping", "type", string(ev.Type))
		return
	}
	n := &Notification{
		ID:           ulid.Make().String(),
		UserID:       ev.UserID,
		Type:         ev.Type,
		Title:        ev.Title,
		Message:      ev.Message,
		ResourceType: ev.ResourceType,
		ResourceID:   ev.ResourceID,
		CreatedAt:    e.now(),
	}
	if err := e.repo.Create(ctx, n); err != nil {
		slog.WarnContext(ctx, "notification emitter: failed to persist, dropping", "user_id", ev.UserID, "type", string(ev.Type), "error", err)
		return
	}
	e.bus.PublishNew(
		eventbus.TypeNotificationCreated,
		n.ID,
		n.Title,
		map[string]string{"userId": n.UserID, "type": string(n.Type)},
	)
}
