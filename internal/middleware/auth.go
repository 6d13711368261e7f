package middleware

import (
	"context"
	"net/http"

	"storecore/internal/auth"
	"storecore/internal/logger"
	"storecore/internal/order"

	"go.uber.org/zap"
)

type contextKey string

const actorKey contextKey = "actor"

func WithActor(ctx context.Context, a order.Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFrom returns the authenticated actor, if any.
func ActorFrom(ctx context.Context) (order.Actor, bool) {
	a, ok := ctx.Value(actorKey).(order.Actor)
	return a, ok
}

// Auth attaches the bearer token's actor to the request context. Requests
// without a token pass through anonymous; a bad token is rejected.
func Auth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.ExtractAccessToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			actor, err := auth.ParseActor(token, secret)
			if err != nil {
				logger.FromCtx(r.Context()).Info("rejected token",
					zap.String("layer", "middleware"),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// RequireRole lets only the listed roles through.
func RequireRole(roles ...order.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "forbidden")
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
