package notification

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/taskloom/taskloom/internal/identity"
	"github.com/taskloom/taskloom/pkg/cerr"
)

type Server struct {
	repo Repository
}

func NewServer(repo Repository) *Server {
	return &Server{repo: repo}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Get("/unread_count", s.handleUnreadCount)
		r.Put("/{notificationID}/read", s.handleMarkRead)
		r.Put("/{notificationID}/unread", s.handleMarkUnread)
		r.Post("/read_all", s.handleMarkAllRead)
	})
}

type notificationListResponse struct {
	Notifications []*Notification `json:"notifications"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := identity.RequireUserID(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	q := r.URL.Query()
	unreadOnly := q.Get("unread") == "true"
	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	notifications, err := s.repo.ListByUser(ctx, userID, unreadOnly, limit)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, notificationListResponse{Notifications: notifications})
}

type unreadCountResponse struct {
	Count int64 `json:"count"`
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := identity.RequireUserID(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, unreadCountResponse{Count: count})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	s.setRead(w, r, true)
}

func (s *Server) handleMarkUnread(w http.ResponseWriter, r *http.Request) {
	s.setRead(w, r, false)
}

func (s *Server) setRead(w http.ResponseWriter, r *http.Request, read bool) {
	ctx := r.Context()
	userID, err := identity.RequireUserID(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := s.repo.SetRead(ctx, chi.URLParam(r, "notificationID"), userID, read); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, struct{}{})
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := identity.RequireUserID(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := s.repo.MarkAllRead(ctx, userID); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, struct{}{})
}
