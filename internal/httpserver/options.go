package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rgeddes/contentd/internal/health"
	"github.com/rgeddes/contentd/internal/httpmw"
	"github.com/rgeddes/contentd/internal/log"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	Health       health.Probe
	Readiness    health.Probe
	ClientIPOpts httpmw.ClientIPOptions

	// MaxBodyBytes caps request bodies, content documents arrive as JSON
	// uploads so this has to leave room for real payloads
	MaxBodyBytes int64

	// APIRoutes mounts the content/auth/backup API onto the main router
	APIRoutes func(chi.Router)

	// SiteHandler serves the admin UI and any static assets, and doubles as
	// the catch-all for unmatched routes
	SiteHandler http.Handler
}
