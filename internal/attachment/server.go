package attachment

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/taskloom/taskloom/internal/identity"
	"github.com/taskloom/taskloom/pkg/cerr"
	"github.com/taskloom/taskloom/pkg/clog"
)

const maxUploadMemory = 32 << 20

type Server struct {
	svc *Service
}

func NewServer(svc *Service) *Server {
	return &Server{svc: svc}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/tasks/{taskID}/attachments", func(r chi.Router) {
		r.Post("/", s.handleUpload)
		r.Get("/", s.handleListByTask)
	})
	r.Route("/attachments/{attachmentID}", func(r chi.Router) {
		r.Get("/content", s.handleDownload)
		r.Delete("/", s.handleDelete)
	})
}

type attachmentResponse struct {
	Attachment *Attachment `json:"attachment"`
}

type attachmentListResponse struct {
	Attachments []*Attachment `json:"attachments"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uploader, err := identity.RequireUserID(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid multipart body", err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "file field is required", err)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		cerr.SetNewJSONError(ctx, cerr.Internal, "server error", err)
		return
	}
	a, err := s.svc.Upload(ctx, chi.URLParam(r, "taskID"), header.Filename, header.Header.Get("Content-Type"), data, uploader)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, attachmentResponse{Attachment: a})
}

func (s *Server) handleListByTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := identity.RequireUserID(ctx); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	attachments, err := s.svc.ListByTask(ctx, chi.URLParam(r, "taskID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, attachmentListResponse{Attachments: attachments})
}

// handleDownload writes the payload straight to the connection instead of
// going through the JSON response receiver.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := identity.RequireUserID(ctx); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	a, data, err := s.svc.Download(ctx, chi.URLParam(r, "attachmentID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		clog.AddError(ctx, err)
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := identity.RequireUserID(ctx); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := s.svc.Delete(ctx, chi.URLParam(r, "attachmentID")); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, struct{}{})
}
