package comment

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taskloom/taskloom/internal/identity"
	"github.com/taskloom/taskloom/pkg/cerr"
)

type Server struct {
	svc *Service
}

func NewServer(svc *Service) *Server {
	return &Server{svc: svc}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/tasks/{taskID}/comments", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleListByTask)
	})
	r.Route("/comments/{commentID}", func(r chi.Router) {
		r.Patch("/", s.handleUpdate)
		r.Delete("/", s.handleDelete)
	})
}

type commentResponse struct {
	Comment *Comment `json:"comment"`
}

type commentListResponse struct {
	Comments []*Comment `json:"comments"`
}

type createCommentRequest struct {
	ParentID string `json:"parentId"`
	Body     string `json:"body"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	author, err := identity.RequireUserID(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req createCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	c, err := s.svc.Create(ctx, chi.URLParam(r, "taskID"), req.ParentID, req.Body, author)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, commentResponse{Comment: c})
}

func (s *Server) handleListByTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := identity.RequireUserID(ctx); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	comments, err := s.svc.ListByTask(ctx, chi.URLParam(r, "taskID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, commentListResponse{Comments: comments})
}

type updateCommentRequest struct {
	Body string `json:"body"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := identity.RequireUserID(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req updateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	c, err := s.svc.Update(ctx, chi.URLParam(r, "commentID"), req.Body, actor)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, commentResponse{Comment: c})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := identity.RequireUserID(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := s.svc.Delete(ctx, chi.URLParam(r, "commentID"), actor); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, struct{}{})
}
