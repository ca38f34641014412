package cerr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

var errSentinel = errors.New("sentinel")

func TestErrorFormat(t *testing.T) {
	err := NewError(NotFound, "task not found", nil)
	if got, want := err.Error(), "[NotFound] task not found"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	err = NewError(Aborted, "task was modified concurrently", errSentinel)
	if got, want := err.Error(), "[Aborted] task was modified concurrently: sentinel"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestUnwrapReachesSentinel(t *testing.T) {
	err := NewError(FailedPrecondition, "time tracking is already running", errSentinel)
	if !errors.Is(err, errSentinel) {
		t.Error("errors.Is should reach the wrapped sentinel")
	}

	wrapped := fmt.Errorf("outer: %w", err)
	var ce *Error
	if !errors.As(wrapped, &ce) {
		t.Fatal("errors.As should find the cerr.Error")
	}
	if ce.Code != FailedPrecondition {
		t.Errorf("code = %v, want FailedPrecondition", ce.Code)
	}
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewError(NotFound, "gone", nil))
	if !IsCode(err, NotFound) {
		t.Error("IsCode(NotFound) = false, want true")
	}
	if IsCode(err, Internal) {
		t.Error("IsCode(Internal) = true, want false")
	}
	if IsCode(errSentinel, NotFound) {
		t.Error("IsCode on a plain error = true, want false")
	}
}

func TestStackOnlyForServerErrors(t *testing.T) {
	if err := NewError(Internal, "server error", nil); err.Stack == "" {
		t.Error("Internal error should capture a stack")
	}
	if err := NewError(NotFound, "task not found", nil); err.Stack != "" {
		t.Error("NotFound should not capture a stack")
	}
	if err := NewError(Aborted, "conflict", nil); err.Stack != "" {
		t.Error("Aborted should not capture a stack")
	}
}

func TestHTTPCodeMapping(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{InvalidArgument, http.StatusBadRequest},
		{NotFound, http.StatusNotFound},
		{AlreadyExists, http.StatusConflict},
		{Aborted, http.StatusConflict},
		{FailedPrecondition, http.StatusPreconditionFailed},
		{Unauthenticated, http.StatusUnauthorized},
		{PermissionDenied, http.StatusForbidden},
		{Internal, http.StatusInternalServerError},
		{Canceled, 499},
		{OK, http.StatusOK},
	}
	for _, tt := range tests {
		if got := tt.code.HTTPCode(); got != tt.want {
			t.Errorf("%s.HTTPCode() = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func middlewareRoundTrip(handler http.HandlerFunc) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	NewJSONResponseChiMiddleware()(handler).ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareRendersResponse(t *testing.T) {
	rec := middlewareRoundTrip(func(w http.ResponseWriter, r *http.Request) {
		SetJSONResponse(r.Context(), map[string]string{"status": "ok"})
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestMiddlewareRendersError(t *testing.T) {
	rec := middlewareRoundTrip(func(w http.ResponseWriter, r *http.Request) {
		SetNewJSONError(r.Context(), NotFound, "task not found", nil)
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body.Code != "NotFound" || body.Message != "task not found" {
		t.Errorf("body = %+v", body)
	}
}

func TestMiddlewareWrapsPlainErrors(t *testing.T) {
	rec := middlewareRoundTrip(func(w http.ResponseWriter, r *http.Request) {
		SetJSONError(r.Context(), errSentinel)
	})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body.Code != "Unknown" {
		t.Errorf("code = %q, want Unknown", body.Code)
	}
}

func TestMiddlewareMapsCanceledContexts(t *testing.T) {
	rec := middlewareRoundTrip(func(w http.ResponseWriter, r *http.Request) {
		SetJSONError(r.Context(), fmt.Errorf("reading body: %w", context.Canceled))
	})
	if rec.Code != 499 {
		t.Fatalf("status = %d, want 499", rec.Code)
	}
}

func TestMiddlewareLeavesStreamingHandlersAlone(t *testing.T) {
	rec := middlewareRoundTrip(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("data: hello\n\n"))
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "data: hello\n\n" {
		t.Errorf("body = %q, the middleware must not append to a streamed body", got)
	}
}
