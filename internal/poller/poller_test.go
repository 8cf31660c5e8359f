package poller

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rgeddes/contentd/internal/log"
)

// statusServer serves the update-status endpoint with a mutable per-type
// timestamp, the way the content server answers polls.
type statusServer struct {
	mu    sync.Mutex
	ts    map[string]int64
	polls atomic.Int64
}

func (s *statusServer) set(typ string, ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ts == nil {
		s.ts = map[string]int64{}
	}
	s.ts[typ] = ts
}

func (s *statusServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.polls.Add(1)
		typ := strings.TrimPrefix(r.URL.Path, "/api/content/update-status/")
		var since int64
		fmt.Sscanf(r.URL.Query().Get("lastUpdate"), "%d", &since)

		s.mu.Lock()
		ts := s.ts[typ]
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"success":true,"message":"update status","data":{"hasUpdate":%v,"timestamp":%d},"timestamp":"now"}`,
			ts > since, ts)
	}
}

func startPoller(t *testing.T, p *Poller) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(context.Background())
	}()
	t.Cleanup(func() {
		p.Stop()
		<-done
	})
}

func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestNew_RejectsRelativeBaseURL(t *testing.T) {
	for _, base := range []string{"", "not a url", "/relative", "localhost:8080"} {
		if _, err := New(Options{BaseURL: base}); err == nil {
			t.Fatalf("New(%q) accepted", base)
		}
	}
}

func TestPoller_DetectsChange(t *testing.T) {
	srv := &statusServer{}
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	p, err := New(Options{BaseURL: ts.URL, Interval: 10 * time.Millisecond, Logger: log.Nop()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var fired atomic.Int64
	var gotTS atomic.Int64
	p.Register("homepage", 0, func(typ string, timestamp int64) {
		if typ != "homepage" {
			t.Errorf("callback type = %q", typ)
		}
		gotTS.Store(timestamp)
		fired.Add(1)
	})
	startPoller(t, p)

	// no change yet
	time.Sleep(50 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatal("callback fired with no change")
	}

	srv.set("homepage", 1000)
	if !waitFor(t, func() bool { return fired.Load() == 1 }) {
		t.Fatal("change never detected")
	}
	if gotTS.Load() != 1000 {
		t.Fatalf("callback timestamp = %d", gotTS.Load())
	}

	// timestamp recorded: the same state must not fire again
	time.Sleep(50 * time.Millisecond)
	if fired.Load() != 1 {
		t.Fatalf("callback fired %d times for one change", fired.Load())
	}

	// a later change fires again
	srv.set("homepage", 2000)
	if !waitFor(t, func() bool { return fired.Load() == 2 }) {
		t.Fatal("second change never detected")
	}
}

func TestPoller_OnNoticeRunsAfterCallback(t *testing.T) {
	srv := &statusServer{}
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	var order []string
	var mu sync.Mutex
	p, err := New(Options{
		BaseURL:  ts.URL,
		Interval: 10 * time.Millisecond,
		Logger:   log.Nop(),
		OnNotice: func(typ string) {
			mu.Lock()
			order = append(order, "notice:"+typ)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.Register("contact", 0, func(typ string, _ int64) {
		mu.Lock()
		order = append(order, "callback:"+typ)
		mu.Unlock()
	})
	startPoller(t, p)

	srv.set("contact", 500)
	ok := waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) >= 2
	})
	if !ok {
		t.Fatal("notice never fired")
	}
	mu.Lock()
	defer mu.Unlock()
	if order[0] != "callback:contact" || order[1] != "notice:contact" {
		t.Fatalf("order = %v", order)
	}
}

func TestPoller_SuspendAndResume(t *testing.T) {
	srv := &statusServer{}
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	p, err := New(Options{BaseURL: ts.URL, Interval: 10 * time.Millisecond, Logger: log.Nop()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var fired atomic.Int64
	p.Register("homepage", 0, func(string, int64) { fired.Add(1) })
	startPoller(t, p)

	p.Suspend()
	// let any in-flight cycle finish before sampling the poll count
	time.Sleep(30 * time.Millisecond)
	before := srv.polls.Load()
	srv.set("homepage", 1000)
	time.Sleep(60 * time.Millisecond)
	if srv.polls.Load() != before {
		t.Fatal("polls continued while suspended")
	}
	if fired.Load() != 0 {
		t.Fatal("callback fired while suspended")
	}

	// the change made during suspension is picked up on resume
	p.Resume()
	if !waitFor(t, func() bool { return fired.Load() == 1 }) {
		t.Fatal("missed change not recovered after resume")
	}
}

func TestPoller_ServerErrorsAreRetried(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	srv := &statusServer{}
	inner := srv.handler()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		inner(w, r)
	}))
	t.Cleanup(ts.Close)

	p, err := New(Options{BaseURL: ts.URL, Interval: 10 * time.Millisecond, Logger: log.Nop()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var fired atomic.Int64
	p.Register("homepage", 0, func(string, int64) { fired.Add(1) })
	startPoller(t, p)

	srv.set("homepage", 1000)
	time.Sleep(50 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatal("callback fired through failing server")
	}

	// once the server recovers the change is detected
	failing.Store(false)
	if !waitFor(t, func() bool { return fired.Load() == 1 }) {
		t.Fatal("change not detected after recovery")
	}
}

func TestPoller_StopBeforeRunIsSafe(t *testing.T) {
	ts := httptest.NewServer((&statusServer{}).handler())
	t.Cleanup(ts.Close)

	p, err := New(Options{BaseURL: ts.URL, Interval: 10 * time.Millisecond, Logger: log.Nop()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.Stop()
	p.Stop()

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	p.Stop()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}
