package template

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taskloom/taskloom/internal/identity"
	"github.com/taskloom/taskloom/internal/task"
	"github.com/taskloom/taskloom/pkg/cerr"
)

type Server struct {
	svc *Service
}

func NewServer(svc *Service) *Server {
	return &Server{svc: svc}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Post("/tasks/{taskID}/template", s.handleSaveAsTemplate)
	r.Route("/templates", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Route("/{templateID}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Delete("/", s.handleDelete)
			r.Post("/tasks", s.handleCreateFromTemplate)
		})
	})
}

type templateResponse struct {
	Template *TaskTemplate `json:"template"`
}

type templateListResponse struct {
	Templates []*TaskTemplate `json:"templates"`
}

type saveAsTemplateRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleSaveAsTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := identity.RequireUserID(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req saveAsTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	tpl, err := s.svc.SaveAsTemplate(ctx, chi.URLParam(r, "taskID"), req.Name, actor)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, templateResponse{Template: tpl})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := identity.RequireUserID(ctx); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	templates, err := s.svc.List(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, templateListResponse{Templates: templates})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := identity.RequireUserID(ctx); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	tpl, err := s.svc.Get(ctx, chi.URLParam(r, "templateID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, templateResponse{Template: tpl})
}

type createdTaskResponse struct {
	Task *task.Task `json:"task"`
}

func (s *Server) handleCreateFromTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := identity.RequireUserID(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	t, err := s.svc.CreateFromTemplate(ctx, chi.URLParam(r, "templateID"), actor)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, createdTaskResponse{Task: t})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := identity.RequireUserID(ctx); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := s.svc.Delete(ctx, chi.URLParam(r, "templateID")); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, struct{}{})
}
