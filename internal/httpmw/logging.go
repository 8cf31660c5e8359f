package httpmw

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rgeddes/contentd/internal/log"
)

// statusRecorder captures status and bytes written for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += int64(n)
	return n, err
}

func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// WithLogger binds a request-scoped logger (request id, client ip, method,
// path) into the context so handlers and the core log with correlation
// fields for free.
func WithLogger(base log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			L := base.With(
				"request_id", RequestIDFromContext(ctx),
				"client.address", ClientIPFromContext(ctx),
				"http.request.method", r.Method,
				"url.path", r.URL.Path,
			)
			next.ServeHTTP(w, r.WithContext(log.WithContext(ctx, L)))
		})
	}
}

// AccessLog emits one line per completed request with status, duration, and
// response size. Route pattern is logged instead of raw path where chi has
// resolved one, keeping log cardinality bounded.
func AccessLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			log.FromContext(r.Context()).Info(r.Context(), "request",
				"http.route", route,
				"http.response.status_code", status,
				"http.response.body.size", rec.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
