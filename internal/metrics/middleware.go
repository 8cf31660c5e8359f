package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// countingWriter captures the status code and body size the handler
// actually produced.
type countingWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *countingWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *countingWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

// Middleware records inflight gauge, request totals, error totals, latency
// and response size per method+route.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// the middleware can sit outside the router, so make sure a route
		// context exists for the pattern lookup afterwards
		if chi.RouteContext(r.Context()) == nil {
			rctx := chi.NewRouteContext()
			r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
		}

		m.inflight.Inc()
		defer m.inflight.Dec()

		cw := &countingWriter{ResponseWriter: w}
		next.ServeHTTP(cw, r)

		m.record(r, cw, time.Since(start))
	})
}

func (m *ServerMetrics) record(r *http.Request, cw *countingWriter, elapsed time.Duration) {
	status := cw.status
	if status == 0 {
		// handler wrote nothing at all
		status = http.StatusOK
	}

	// label by chi route pattern, never the raw path: raw paths make label
	// cardinality grow without bound
	route := "unmatched"
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			route = p
		}
	}

	m.reqTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	if status >= 500 {
		m.errorsTotal.WithLabelValues(r.Method, route).Inc()
	}

	observe(m.reqDur.WithLabelValues(r.Method, route), elapsed.Seconds(), r.Context())
	m.respBytes.WithLabelValues(r.Method, route).Observe(float64(cw.bytes))
}

// observe attaches the sampled trace id as an exemplar when one is present,
// linking latency outliers back to their traces.
func observe(o prometheus.Observer, v float64, ctx context.Context) {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() && sc.IsSampled() {
		if eo, ok := o.(prometheus.ExemplarObserver); ok {
			eo.ObserveWithExemplar(v, prometheus.Labels{"trace_id": sc.TraceID().String()})
			return
		}
	}
	o.Observe(v)
}
