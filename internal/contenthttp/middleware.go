package contenthttp

import (
	"context"
	"net/http"
	"strings"
)

type actorKey struct{}

// ActorFromContext returns the authenticated username, or "" outside the
// auth-gated route group.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

// requireAuth gates mutating routes on a valid bearer token. Failures get the
// standard envelope, not a bare 401, so the admin UI can show the message.
func (api *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			api.writeFailure(w, r, http.StatusUnauthorized, "unauthorized", "missing bearer token", nil)
			return
		}
		username, err := api.gate.Verify(token)
		if err != nil {
			api.writeFailure(w, r, http.StatusUnauthorized, "unauthorized", "invalid or expired token", nil)
			return
		}
		ctx := context.WithValue(r.Context(), actorKey{}, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
