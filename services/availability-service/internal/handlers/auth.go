package handlers

import (
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/slotengine/libs/auth"
	"github.com/md-rashed-zaman/slotengine/libs/httpx"
)

type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// RequireOwner lets a request through only when its bearer token may edit
// the schedules of the owner_id query parameter.
func RequireOwner(v TokenVerifier, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		claims, err := v.Verify(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		ownerID := queryParam(r, "owner_id")
		if !claims.CanEdit(ownerID) {
			if logger != nil {
				logger.WarnContext(r.Context(), "schedule edit forbidden",
					"request_id", httpx.RequestIDFromContext(r.Context()),
					"subject", claims.Subject,
					"owner_id", ownerID,
				)
			}
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
