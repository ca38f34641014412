package notification

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/sourcegraph/conc"

	"github.com/taskloom/taskloom/internal/config"
	"github.com/taskloom/taskloom/internal/pushsubscription"
)

type PushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// Sender delivers web push messages to a user's registered browsers.
type Sender struct {
	vapidEnv *config.VAPIDEnv
	subs     pushsubscription.Repository
}

func NewSender(vapidEnv *config.VAPIDEnv, subs pushsubscription.Repository) *Sender {
	return &Sender{
		vapidEnv: vapidEnv,
		subs:     subs,
	}
}

func (s *Sender) SendToUser(ctx context.Context, userID string, payload *PushPayload) {
	if s.vapidEnv.PublicKey == "" || s.vapidEnv.PrivateKey == "" {
		slog.DebugContext(ctx, "web push: VAPID keys not configured, skipping")
		return
	}

	subs, err := s.subs.ListByUser(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "web push: failed to list subscriptions", "user_id", userID, "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "web push: failed to marshal payload", "error", err)
		return
	}

	var wg conc.WaitGroup
	for _, sub := range subs {
		wg.Go(func() {
			s.sendToSubscription(ctx, sub, data)
		})
	}
	if p := wg.WaitAndRecover(); p != nil {
		slog.ErrorContext(ctx, "web push: send panicked", "panic", p.String())
	}
}

func (s *Sender) sendToSubscription(ctx context.Context, sub *pushsubscription.Subscription, data []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}

	resp, err := webpush.SendNotification(data, wpSub, &webpush.Options{
		VAPIDPublicKey:  s.vapidEnv.PublicKey,
		VAPIDPrivateKey: s.vapidEnv.PrivateKey,
		Subscriber:      s.vapidEnv.Contact,
		TTL:             86400,
	})
	if err != nil {
		slog.ErrorContext(ctx, "web push: failed to send", "endpoint", sub.Endpoint, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		slog.InfoContext(ctx, "web push: subscription expired, removing", "endpoint", sub.Endpoint)
		if err := s.subs.Delete(ctx, sub.ID); err != nil {
			slog.ErrorContext(ctx, "web push: failed to delete expired subscription", "id", sub.ID, "error", err)
		}
		return
	}

	if resp.StatusCode >= 400 {
		slog.WarnContext(ctx, "web push: unexpected status", "endpoint", sub.Endpoint, "status", resp.StatusCode)
	}
}
