package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/pratik-mahalle/costwatch/internal/auth"
	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
	"github.com/pratik-mahalle/costwatch/internal/pkg/utils"
)

// ContextKey is a custom type for context keys
type ContextKey string

const (
	// ActorKey is the context key for the authenticated operator
	ActorKey ContextKey = "actor"

	// AnonymousActor is recorded when the API runs without auth
	AnonymousActor = "api"
)

// AuthMiddleware validates operator tokens. When required is false a request
// without a token passes through as AnonymousActor, but a bad token is still
// rejected.
func AuthMiddleware(jwtSecret string, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := bearerToken(r)
			if tokenStr == "" {
				if required {
					utils.WriteError(w, errors.Unauthorized("Missing authentication token"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.ParseClaims(tokenStr, jwtSecret)
			if err != nil {
				utils.WriteError(w, errors.Unauthorized("Invalid or expired token"))
				return
			}

			ctx := context.WithValue(r.Context(), ActorKey, claims.Operator)
			AddLogField(w, "actor", claims.Operator)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// GetActor returns the operator behind the request
func GetActor(r *http.Request) string {
	if actor, ok := r.Context().Value(ActorKey).(string); ok && actor != "" {
		return actor
	}
	return AnonymousActor
}
