package notification

import (
	"context"
	"log/slog"

	"github.com/taskloom/taskloom/internal/eventbus"
)

// Dispatcher forwards freshly created notifications to the web push sender.
// It is a best-effort tail of the pipeline: the notification row is already
// persisted before the dispatcher ever sees it.
type Dispatcher struct {
	eventBus *eventbus.Bus
	repo     Repository
	sender   *Sender
}

func NewDispatcher(eventBus *eventbus.Bus, repo Repository, sender *Sender) *Dispatcher {
	return &Dispatcher{
		eventBus: eventBus,
		repo:     repo,
		sender:   sender,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	subID, ch := d.eventBus.Subscribe(256)
	defer d.eventBus.Unsubscribe(subID)

	slog.Info("notification dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("notification dispatcher stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.Type == eventbus.TypeNotificationCreated {
				d.handleNotificationCreated(ctx, event)
			}
		}
	}
}

func (d *Dispatcher) handleNotificationCreated(ctx context.Context, event *eventbus.Event) {
	n, err := d.repo.Get(ctx, event.ResourceID)
	if err != nil {
		slog.Error("notification dispatcher: failed to get notification", "id", event.ResourceID, "error", err)
		return
	}

	var url string
	if n.ResourceType == "task" && n.ResourceID != "" {
		url = "/tasks/" + n.ResourceID
	}

	d.sender.SendToUser(ctx, n.UserID, &PushPayload{
		Title: n.Title,
		Body:  n.Message,
		URL:   url,
		Tag:   n.ID,
	})
}
