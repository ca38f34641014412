package event

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/taskloom/taskloom/internal/eventbus"
	"github.com/taskloom/taskloom/pkg/cerr"
	"github.com/taskloom/taskloom/pkg/clog"
)

// Server streams the in-process bus over server-sent events so boards can
// refresh live without polling.
type Server struct {
	eventBus *eventbus.Bus
}

func NewServer(eventBus *eventbus.Bus) *Server {
	return &Server{eventBus: eventBus}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/events", s.handleStream)
}

// handleStream owns the connection for its whole lifetime; it never goes
// through the JSON response receiver. EventSource cannot set request headers,
// so the stream does not require the identity header either.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flusher, ok := w.(http.Flusher)
	if !ok {
		cerr.SetNewJSONError(ctx, cerr.Internal, "streaming unsupported", nil)
		return
	}

	// Optional comma-separated type filter, e.g. ?types=task.created,task.updated
	typeFilter := make(map[eventbus.Type]struct{})
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			typeFilter[eventbus.Type(strings.TrimSpace(t))] = struct{}{}
		}
	}

	subID, events := s.eventBus.Subscribe(16)
	defer s.eventBus.Unsubscribe(subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if len(typeFilter) > 0 {
				if _, match := typeFilter[event.Type]; !match {
					continue
				}
			}
			data, err := json.Marshal(event)
			if err != nil {
				clog.AddError(ctx, err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
