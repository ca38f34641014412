package task

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

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
	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleList)
		r.Get("/search", s.handleSearch)
		r.Get("/status/{status}", s.handleListByStatus)
		r.Route("/{taskID}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Patch("/", s.handleUpdate)
			r.Delete("/", s.handleDelete)
			r.Put("/status", s.handleSetStatus)
			r.Put("/priority", s.handleSetPriority)
			r.Put("/assignee", s.handleSetAssignee)
			r.Post("/tracking/start", s.handleStartTracking)
			r.Post("/tracking/stop", s.handleStopTracking)
			r.Put("/parent", s.handleAttachSubtask)
			r.Delete("/parent", s.handleDetachSubtask)
			r.Get("/subtasks", s.handleListSubtasks)
		})
	})
}

type taskResponse struct {
	Task *Task `json:"task"`
}

type taskListResponse struct {
	Tasks []*Task `json:"tasks"`
	Total int     `json:"total,omitempty"`
}

type createTaskRequest struct {
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Tags           []string   `json:"tags"`
	Priority       string     `json:"priority"`
	DueDate        *time.Time `json:"dueDate"`
	EstimatedHours *float64   `json:"estimatedHours"`
	ParentID       string     `json:"parentId"`
	AssigneeID     string     `json:"assigneeId"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := identity.RequireUserID(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	t, err := s.svc.Create(ctx, CreateRequest{
		Title:          req.Title,
		Description:    req.Description,
		Tags:           req.Tags,
		Priority:       Priority(req.Priority),
		DueDate:        req.DueDate,
		EstimatedHours: req.EstimatedHours,
		ParentID:       req.ParentID,
		AssigneeID:     req.AssigneeID,
	}, actor)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, taskResponse{Task: t})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := identity.RequireUserID(ctx); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	q := r.URL.Query()
	limit, offset := 50, 0
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	tasks, total, err := s.svc.List(ctx, Filter{
		Status:   Status(q.Get("status")),
		Assignee: q.Get("assignee"),
		ParentID: q.Get("parent"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, taskListResponse{Tasks: tasks, Total: total})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := identity.RequireUserID(ctx); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	tasks, err := s.svc.Search(ctx, r.URL.Query().Get("q"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, taskListResponse{Tasks: tasks})
}

func (s *Server) handleListByStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requester, err := identity.RequireUserID(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	tasks, err := s.svc.ListByStatus(ctx, Status(chi.URLParam(r, "status")), requester)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, taskListResponse{Tasks: tasks})
}

type taskDetailsResponse struct {
	Task *Details `json:"task"`
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := identity.RequireUserID(ctx); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	d, err := s.svc.Get(ctx, chi.URLParam(r, "taskID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, taskDetailsResponse{Task: d})
}

type updateTaskRequest struct {
	Title          *string    `json:"title"`
	Description    *string    `json:"description"`
	Tags           []string   `json:"tags"`
	DueDate        *time.Time `json:"dueDate"`
	ClearDueDate   bool       `json:"clearDueDate"`
	EstimatedHours *float64   `json:"estimatedHours"`
	ActualHours    *float64   `json:"actualHours"`
	Archived       *bool      `json:"archived"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := identity.RequireUserID(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	t, err := s.svc.Update(ctx, chi.URLParam(r, "taskID"), UpdateRequest{
		Title:          req.Title,
		Description:    req.Description,
		Tags:           req.Tags,
		DueDate:        req.DueDate,
		ClearDueDate:   req.ClearDueDate,
		EstimatedHours: req.EstimatedHours,
		ActualHours:    req.ActualHours,
		Archived:       req.Archived,
	}, actor)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, taskResponse{Task: t})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := identity.RequireUserID(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := s.svc.Delete(ctx, chi.URLParam(r, "taskID"), actor); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, struct{}{})
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := identity.RequireUserID(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	t, err := s.svc.SetStatus(ctx, chi.URLParam(r, "taskID"), Status(req.Status), actor)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, taskResponse{Task: t})
}

type setPriorityRequest struct {
	Priority string `json:"priority"`
}

func (s *Server) handleSetPriority(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := identity.RequireUserID(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req setPriorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	t, err := s.svc.SetPriority(ctx, chi.URLParam(r, "taskID"), Priority(req.Priority), actor)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, taskResponse{Task: t})
}

type setAssigneeRequest struct {
	AssigneeID string `json:"assigneeId"`
}

func (s *Server) handleSetAssignee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := identity.RequireUserID(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req setAssigneeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	t, err := s.svc.SetAssignee(ctx, chi.URLParam(r, "taskID"), req.AssigneeID, actor)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, taskResponse{Task: t})
}

func (s *Server) handleStartTracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := identity.RequireUserID(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	t, err := s.svc.StartTracking(ctx, chi.URLParam(r, "taskID"), actor)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, taskResponse{Task: t})
}

func (s *Server) handleStopTracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := identity.RequireUserID(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	t, err := s.svc.StopTracking(ctx, chi.URLParam(r, "taskID"), actor)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, taskResponse{Task: t})
}

type attachSubtaskRequest struct {
	ParentID string `json:"parentId"`
}

func (s *Server) handleAttachSubtask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := identity.RequireUserID(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req attachSubtaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if req.ParentID == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "parentId is required", nil)
		return
	}
	t, err := s.svc.AttachSubtask(ctx, chi.URLParam(r, "taskID"), req.ParentID, actor)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, taskResponse{Task: t})
}

func (s *Server) handleDetachSubtask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := identity.RequireUserID(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	t, err := s.svc.DetachSubtask(ctx, chi.URLParam(r, "taskID"), actor)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, taskResponse{Task: t})
}

func (s *Server) handleListSubtasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := identity.RequireUserID(ctx); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	tasks, err := s.svc.ListSubtasks(ctx, chi.URLParam(r, "taskID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, taskListResponse{Tasks: tasks})
}
