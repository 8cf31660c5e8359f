package health

import "net/http"

// probeHandler answers 200 with okBody when p passes, 503 with the probe's
// reason when it fails. A nil probe is treated as always passing.
func probeHandler(p Probe, okBody string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			if err := p.Check(r.Context()); err != nil {
				http.Error(w, err.Error()+"\n", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(okBody + "\n"))
	}
}

// HealthzHandler serves the liveness endpoint.
func HealthzHandler(p Probe) http.HandlerFunc { return probeHandler(p, "ok") }

// ReadyzHandler serves the readiness endpoint.
func ReadyzHandler(p Probe) http.HandlerFunc { return probeHandler(p, "ready") }
