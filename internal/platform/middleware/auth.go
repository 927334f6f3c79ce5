package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"brgycert/internal/identity"
	"brgycert/pkg/cerrors"
	"brgycert/pkg/httpjson"
)

// Validator turns a bearer token into an authenticated identity.
type Validator interface {
	Validate(token string) (identity.Identity, error)
}

type contextKeyIdentity struct{}

// GetIdentity returns the authenticated identity set by RequireAuth. The
// second return is false on public routes.
func GetIdentity(ctx context.Context) (identity.Identity, bool) {
	id, ok := ctx.Value(contextKeyIdentity{}).(identity.Identity)
	return id, ok
}

// RequireAuth rejects requests without a valid bearer token and stores the
// resolved identity in context.
func RequireAuth(validator Validator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				httpjson.WriteError(w, cerrors.New(cerrors.CodeUnauthorized, "missing bearer token"))
				return
			}
			id, err := validator.Validate(token)
			if err != nil {
				logger.WarnContext(r.Context(), "rejected token",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				httpjson.WriteError(w, cerrors.New(cerrors.CodeUnauthorized, "invalid or expired token"))
				return
			}
			ctx := context.WithValue(r.Context(), contextKeyIdentity{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCapability gates a route on a capability derived from the role.
// Must run after RequireAuth.
func RequireCapability(cap identity.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := GetIdentity(r.Context())
			if !ok || !id.HasCapability(cap) {
				httpjson.WriteError(w, cerrors.New(cerrors.CodeForbidden, "insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
