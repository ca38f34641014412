package internal

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/taskloom/taskloom/internal/attachment"
	"github.com/taskloom/taskloom/internal/comment"
	"github.com/taskloom/taskloom/internal/config"
	"github.com/taskloom/taskloom/internal/event"
	"github.com/taskloom/taskloom/internal/identity"
	"github.com/taskloom/taskloom/internal/notification"
	"github.com/taskloom/taskloom/internal/task"
	"github.com/taskloom/taskloom/internal/template"
	"github.com/taskloom/taskloom/pkg/cerr"
	"github.com/taskloom/taskloom/pkg/clog"
)

type Server struct {
	server             *http.Server
	env                *config.Env
	taskServer         *task.Server
	commentServer      *comment.Server
	attachmentServer   *attachment.Server
	notificationServer *notification.Server
	pushServer         *notification.PushServer
	templateServer     *template.Server
	eventServer        *event.Server
}

func NewServer(
	env *config.Env,
	taskServer *task.Server,
	commentServer *comment.Server,
	attachmentServer *attachment.Server,
	notificationServer *notification.Server,
	pushServer *notification.PushServer,
	templateServer *template.Server,
	eventServer *event.Server,
) *Server {
	return &Server{
		env:                env,
		taskServer:         taskServer,
		commentServer:      commentServer,
		attachmentServer:   attachmentServer,
		notificationServer: notificationServer,
		pushServer:         pushServer,
		templateServer:     templateServer,
		eventServer:        eventServer,
	}
}

// ListenAndServe starts the HTTP server. The provided context is used as the
// base context for all incoming requests via http.Server.BaseContext. When ctx
// is cancelled (e.g. on shutdown signal), all event stream contexts are also
// cancelled, allowing the server to shut down without waiting for streams.
func (s *Server) ListenAndServe(ctx context.Context) error {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(
			clog.SlogChiMiddleware(),
			cerr.NewJSONResponseChiMiddleware(),
			identity.ChiMiddleware(),
		)
		s.taskServer.RegisterRoutes(r)
		s.commentServer.RegisterRoutes(r)
		s.attachmentServer.RegisterRoutes(r)
		s.notificationServer.RegisterRoutes(r)
		s.pushServer.RegisterRoutes(r)
		s.templateServer.RegisterRoutes(r)
		s.eventServer.RegisterRoutes(r)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
		})
	})

	mux := http.NewServeMux()

	mux.Handle("/health", &HealthChecker{})
	mux.Handle("/api/", r)

	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	s.server = &http.Server{
		Addr: addr,
		Handler: h2c.NewHandler(cors.New(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}).Handler(mux), &http2.Server{}),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
