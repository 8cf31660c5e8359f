package httpmw

import "net/http"

// MaxBody caps request body size. Oversized bodies surface as a 413 when
// the handler reads them. Content documents are small JSON files, so the
// API cap can stay tight without ever biting a legitimate save.
func MaxBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
