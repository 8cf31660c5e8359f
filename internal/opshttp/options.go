package opshttp

import (
	"net/http"

	"github.com/rgeddes/contentd/internal/health"
)

type Options struct {
	Port int

	// Metrics is the prometheus exposition handler; nil leaves /metrics
	// unregistered.
	Metrics http.Handler

	EnablePprof bool

	Health    health.Probe
	Readiness health.Probe
}
