package httputil

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/expensio/expensio/internal/authz"
	"github.com/expensio/expensio/internal/domain"
)

// AccessTokenCookie is the cookie carrying the access token for browser
// clients. API clients may send the token as a bearer header instead.
const AccessTokenCookie = "access_token"

type contextKey string

const actorKey contextKey = "actor"

// TokenValidator verifies an access token and returns the identity it
// carries.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (userID int64, role domain.Role, err error)
}

// ActorLoader fetches the full account for an authenticated user id.
// Loading on every request means a deleted account is locked out
// immediately, even while its tokens are still unexpired.
type ActorLoader interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

// CORSMiddleware handles preflight requests and adds CORS headers.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	originsSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originsSet[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if originsSet[origin] || originsSet["*"] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuthMiddleware authenticates the request and attaches the actor to the
// request context. Requests without a valid token, or whose account has
// been deleted, are rejected with 401.
func AuthMiddleware(validator TokenValidator, loader ActorLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				Error(w, http.StatusUnauthorized, "authentication required")
				return
			}

			userID, _, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				Error(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			actor, err := loader.GetByID(r.Context(), userID)
			if err != nil || actor.IsDeleted() {
				Error(w, http.StatusUnauthorized, "account no longer active")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// RequireOperation authorizes the actor against the policy for
// operations that are not ownership-scoped. Ownership-scoped operations
// are authorized inside the handlers, where the owner is known.
func RequireOperation(op authz.Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := authz.Authorize(ActorFromContext(r.Context()), op, false); err != nil {
				if errors.Is(err, authz.ErrUnauthenticated) {
					Error(w, http.StatusUnauthorized, "authentication required")
					return
				}
				Error(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithActor attaches the authenticated actor to the context.
func WithActor(ctx context.Context, actor *domain.User) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext extracts the authenticated actor, or nil when the
// request was not authenticated.
func ActorFromContext(ctx context.Context) *domain.User {
	if actor, ok := ctx.Value(actorKey).(*domain.User); ok {
		return actor
	}
	return nil
}

// extractToken reads the access token from the bearer header or, for
// browser clients, the auth cookie.
func extractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}

	if cookie, err := r.Cookie(AccessTokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// AuthzError writes the response for a policy error and reports whether
// it did: 401 for a missing or invalid identity, 403 for an
// authenticated actor lacking the privilege. Non-policy errors are left
// for the caller.
func AuthzError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, authz.ErrUnauthenticated):
		Error(w, http.StatusUnauthorized, "authentication required")
		return true
	case errors.Is(err, authz.ErrPermissionDenied):
		Error(w, http.StatusForbidden, "insufficient permissions")
		return true
	}
	return false
}
