// Package health holds the liveness/readiness probe primitives mounted on
// both listeners. Probes compose with All and Any; ShutdownGate is the
// drain switch that fails readiness first so load balancers pull traffic
// before in-flight requests finish.
package health

import (
	"context"
	"sync/atomic"

	"github.com/rgeddes/contentd/internal/xerrors"
)

// Probe is evaluated per request. nil means healthy; an error carries the
// reason surfaced in the 503 body.
type Probe interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a plain function into a Probe.
type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Named labels a probe so a composite failure says which check tripped.
func Named(name string, p Probe) CheckFunc {
	return func(ctx context.Context) error {
		if p == nil {
			return nil
		}
		if err := p.Check(ctx); err != nil {
			return xerrors.Wrap(err, name)
		}
		return nil
	}
}

// Fixed returns a constant probe. A failing one reports reason, defaulting
// to "unhealthy".
func Fixed(ok bool, reason string) CheckFunc {
	if ok {
		return func(context.Context) error { return nil }
	}
	if reason == "" {
		reason = "unhealthy"
	}
	err := xerrors.New(reason)
	return func(context.Context) error { return err }
}

// All passes when every non-nil probe passes, short-circuiting on the
// first failure.
func All(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// Any passes when at least one non-nil probe passes. Every probe still
// runs, so side-effecting checks fire each cycle. An all-nil set fails.
func Any(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		var lastErr error
		healthy := false
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				lastErr = err
				continue
			}
			healthy = true
		}
		switch {
		case healthy:
			return nil
		case lastErr != nil:
			return lastErr
		default:
			return xerrors.New("no healthy probes")
		}
	}
}

// ShutdownGate fails its readiness probe once Set, carrying the drain
// reason. Liveness probes should not include it: a draining process is
// still alive.
type ShutdownGate struct {
	draining atomic.Bool
	reason   atomic.Value
}

// Set flips the gate closed with a human-readable reason.
func (g *ShutdownGate) Set(reason string) {
	g.reason.Store(reason)
	g.draining.Store(true)
}

// Clear reopens the gate.
func (g *ShutdownGate) Clear() {
	g.draining.Store(false)
	g.reason.Store("")
}

// Probe returns the readiness probe view of the gate.
func (g *ShutdownGate) Probe() CheckFunc {
	return func(context.Context) error {
		if !g.draining.Load() {
			return nil
		}
		reason, _ := g.reason.Load().(string)
		if reason == "" {
			reason = "draining"
		}
		return xerrors.New(reason)
	}
}
