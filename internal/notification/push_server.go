package notification

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/taskloom/taskloom/internal/config"
	"github.com/taskloom/taskloom/internal/identity"
	"github.com/taskloom/taskloom/internal/pushsubscription"
	"github.com/taskloom/taskloom/pkg/cerr"
)

// PushServer manages browser subscriptions and the test send endpoint.
type PushServer struct {
	vapidEnv *config.VAPIDEnv
	subs     pushsubscription.Repository
	sender   *Sender
}

func NewPushServer(vapidEnv *config.VAPIDEnv, subs pushsubscription.Repository, sender *Sender) *PushServer {
	return &PushServer{
		vapidEnv: vapidEnv,
		subs:     subs,
		sender:   sender,
	}
}

func (s *PushServer) RegisterRoutes(r chi.Router) {
	r.Route("/push", func(r chi.Router) {
		r.Get("/vapid_public_key", s.handleVapidPublicKey)
		r.Post("/subscriptions", s.handleSubscribe)
		r.Delete("/subscriptions", s.handleUnsubscribe)
		r.Post("/test", s.handleSendTest)
	})
}

type vapidPublicKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

func (s *PushServer) handleVapidPublicKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.vapidEnv.PublicKey == "" {
		cerr.SetNewJSONError(ctx, cerr.FailedPrecondition, "VAPID keys not configured", nil)
		return
	}
	cerr.SetJSONResponse(ctx, vapidPublicKeyResponse{PublicKey: s.vapidEnv.PublicKey})
}

type subscribeRequest struct {
	Endpoint  string `json:"endpoint"`
	P256dhKey string `json:"p256dhKey"`
	AuthKey   string `json:"authKey"`
}

func (s *PushServer) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := identity.RequireUserID(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if req.Endpoint == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "endpoint is required", nil)
		return
	}
	if req.P256dhKey == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "p256dhKey is required", nil)
		return
	}
	if req.AuthKey == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "authKey is required", nil)
		return
	}

	// Idempotent: a browser re-subscribing with a known endpoint replaces the
	// stored keys.
	if existing, err := s.subs.FindByEndpoint(ctx, req.Endpoint); err == nil && existing != nil {
		if err := s.subs.Delete(ctx, existing.ID); err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
	}

	sub := &pushsubscription.Subscription{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Endpoint:  req.Endpoint,
		P256dhKey: req.P256dhKey,
		AuthKey:   req.AuthKey,
		CreatedAt: time.Now(),
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, struct{}{})
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

func (s *PushServer) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := identity.RequireUserID(ctx); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req unsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if req.Endpoint == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "endpoint is required", nil)
		return
	}
	if err := s.subs.DeleteByEndpoint(ctx, req.Endpoint); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, struct{}{})
}

func (s *PushServer) handleSendTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := identity.RequireUserID(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	s.sender.SendToUser(ctx, userID, &PushPayload{
		Title: "Taskloom Test",
		Body:  "Push notifications are working!",
	})
	cerr.SetJSONResponse(ctx, struct{}{})
}
