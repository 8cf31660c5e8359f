// Package poller is the client-side collaborator for change detection: it
// periodically asks the server whether registered content types changed
// since the last timestamp it observed, and invokes callbacks so embedding
// code can refetch and re-render. Polling compares absolute timestamps, so a
// missed interval is always recoverable on the next poll.
package poller

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/rgeddes/contentd/internal/log"
	"github.com/rgeddes/contentd/internal/xerrors"
)

// DefaultInterval is the poll cadence when none is configured.
const DefaultInterval = 5 * time.Second

// Callback runs after a change is detected for a type, before the new
// timestamp is recorded as seen. Called on the poll goroutine.
type Callback func(typ string, timestamp int64)

// Options configures a Poller.
type Options struct {
	// BaseURL of the content server, e.g. "http://localhost:8080".
	BaseURL string

	// Interval between poll cycles. Zero means DefaultInterval.
	Interval time.Duration

	// HTTPClient to poll with. Nil gets a client with a sane timeout.
	HTTPClient *http.Client

	Logger log.Logger

	// OnNotice, if set, is invoked after a change callback so the embedder
	// can surface a user-visible "content updated" notice.
	OnNotice func(typ string)
}

// Poller drives the interval loop. All methods are safe for concurrent use;
// Stop and Suspend/Resume may be called at any time, in any order.
type Poller struct {
	base     string
	interval time.Duration
	client   *http.Client
	logger   log.Logger
	onNotice func(string)

	mu        sync.Mutex
	lastSeen  map[string]int64
	callbacks map[string]Callback

	suspended atomic.Bool
	cancel    context.CancelFunc
	cancelMu  sync.Mutex
}

// statusEnvelope mirrors the server's response envelope for the
// update-status endpoint.
type statusEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		HasUpdate bool  `json:"hasUpdate"`
		Timestamp int64 `json:"timestamp"`
	} `json:"data"`
}

// New validates the base URL and returns a Poller with nothing registered.
func New(opts Options) (*Poller, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, xerrors.Newf("poller base URL must be absolute (got %q)", opts.BaseURL)
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Poller{
		base:      opts.BaseURL,
		interval:  interval,
		client:    client,
		logger:    logger,
		onNotice:  opts.OnNotice,
		lastSeen:  make(map[string]int64),
		callbacks: make(map[string]Callback),
	}, nil
}

// Register adds a content type to the poll set. since seeds the remembered
// timestamp; zero means "anything newer than never".
func (p *Poller) Register(typ string, since int64, cb Callback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSeen[typ] = since
	p.callbacks[typ] = cb
}

// Suspend pauses change detection without stopping the loop, mirroring a
// page losing visibility. Purely a resource-saving policy: nothing is lost
// while suspended because polls compare absolute timestamps.
func (p *Poller) Suspend() { p.suspended.Store(true) }

// Resume re-enables polling after Suspend.
func (p *Poller) Resume() { p.suspended.Store(false) }

// Stop cancels a running loop. Idempotent and safe before Run.
func (p *Poller) Stop() {
	p.cancelMu.Lock()
	defer p.cancelMu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// Run blocks polling until ctx is cancelled or Stop is called.
func (p *Poller) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancelMu.Lock()
	p.cancel = cancel
	p.cancelMu.Unlock()

	p.logger.Info(ctx, "update poller starting", "interval", p.interval.String())
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info(ctx, "update poller stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if p.suspended.Load() {
				continue
			}
			p.pollOnce(ctx)
		}
	}
}

// pollOnce checks every registered type. A failed poll is a no-op for that
// cycle, never an error surfaced to the user; the next interval retries.
func (p *Poller) pollOnce(ctx context.Context) {
	for _, typ := range p.registered() {
		since := p.seen(typ)
		notice, err := p.fetchStatus(ctx, typ, since)
		if err != nil {
			p.logger.Debug(ctx, "poll failed, retrying next interval", "type", typ, "error", err)
			continue
		}
		if !notice.HasUpdate {
			continue
		}
		p.logger.Info(ctx, "content change detected", "type", typ, "timestamp", notice.Timestamp)
		if cb := p.callback(typ); cb != nil {
			cb(typ, notice.Timestamp)
		}
		p.record(typ, notice.Timestamp)
		if p.onNotice != nil {
			p.onNotice(typ)
		}
	}
}

func (p *Poller) fetchStatus(ctx context.Context, typ string, since int64) (hasUpdate struct {
	HasUpdate bool
	Timestamp int64
}, err error) {
	u := fmt.Sprintf("%s/api/content/update-status/%s?lastUpdate=%d", p.base, url.PathEscape(typ), since)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return hasUpdate, xerrors.Wrap(err, "build poll request")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return hasUpdate, xerrors.Wrap(err, "poll request")
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return hasUpdate, xerrors.Newf("poll status %d", resp.StatusCode)
	}
	var env statusEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return hasUpdate, xerrors.Wrap(err, "decode poll response")
	}
	if !env.Success {
		return hasUpdate, xerrors.New("poll response not successful")
	}
	hasUpdate.HasUpdate = env.Data.HasUpdate
	hasUpdate.Timestamp = env.Data.Timestamp
	return hasUpdate, nil
}

func (p *Poller) registered() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.callbacks))
	for typ := range p.callbacks {
		out = append(out, typ)
	}
	return out
}

func (p *Poller) seen(typ string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen[typ]
}

func (p *Poller) record(typ string, ts int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ts > p.lastSeen[typ] {
		p.lastSeen[typ] = ts
	}
}

func (p *Poller) callback(typ string) Callback {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callbacks[typ]
}
