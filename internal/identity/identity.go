package identity

import (
	"context"
	"net/http"

	"github.com/taskloom/taskloom/pkg/cerr"
)

// Header carries the acting user's id. Authentication itself happens in front
// of this service; the engine only needs a stable actor identity.
const Header = "X-User-ID"

type userIDKey struct{}

func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}

// RequireUserID returns the actor id or an Unauthenticated error when the
// request carried no identity header.
func RequireUserID(ctx context.Context) (string, error) {
	id := UserIDFromContext(ctx)
	if id == "" {
		return "", cerr.NewError(cerr.Unauthenticated, "missing "+Header+" header", nil)
	}
	return id, nil
}

func ChiMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := ContextWithUserID(r.Context(), r.Header.Get(Header))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
