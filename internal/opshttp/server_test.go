package opshttp

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rgeddes/contentd/internal/health"
	"github.com/rgeddes/contentd/internal/log"
)

func TestRequireNonPublicNetwork(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("admin"))
	})
	h := requireNonPublicNetwork(log.Nop(), inner)

	tests := []struct {
		name       string
		remoteAddr string
		wantCode   int
	}{
		{"loopback v4", "127.0.0.1:5000", http.StatusOK},
		{"loopback v6", "[::1]:5000", http.StatusOK},
		{"rfc1918 10/8", "10.2.3.4:5000", http.StatusOK},
		{"rfc1918 172.16/12", "172.16.0.9:5000", http.StatusOK},
		{"rfc1918 192.168/16", "192.168.1.50:5000", http.StatusOK},
		{"link-local", "169.254.10.10:5000", http.StatusOK},
		{"mapped private v6", "[::ffff:10.0.0.1]:5000", http.StatusOK},
		{"public v4", "203.0.113.7:5000", http.StatusForbidden},
		{"public v6", "[2001:db8::1]:5000", http.StatusForbidden},
		{"no port", "10.0.0.1", http.StatusForbidden},
		{"garbage", "not-an-address", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			req.RemoteAddr = tt.remoteAddr
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Fatalf("peer %s: status = %d, want %d", tt.remoteAddr, rec.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusOK && rec.Body.String() != "admin" {
				t.Fatalf("body = %q", rec.Body.String())
			}
		})
	}
}

func startOps(t *testing.T, opts *Options) (base string, stop func(context.Context) error) {
	t.Helper()
	ctx := context.Background()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	opts.Port = ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	stop, err = Start(ctx, log.Nop(), opts)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { stop(context.Background()) })

	base = fmt.Sprintf("http://127.0.0.1:%d", opts.Port)
	for i := 0; i < 50; i++ {
		if _, err := http.Get(base + "/healthz"); err == nil {
			return base, stop
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("ops server never came up")
	return "", nil
}

func fetch(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestStart_HealthAndReadiness(t *testing.T) {
	var gate health.ShutdownGate
	base, _ := startOps(t, &Options{
		Health:    health.Fixed(true, ""),
		Readiness: gate.Probe(),
	})

	if code, body := fetch(t, base+"/healthz"); code != http.StatusOK || body != "ok\n" {
		t.Fatalf("/healthz = %d %q", code, body)
	}
	if code, _ := fetch(t, base+"/readyz"); code != http.StatusOK {
		t.Fatalf("/readyz before drain = %d", code)
	}

	gate.Set("draining")
	code, body := fetch(t, base+"/readyz")
	if code != http.StatusServiceUnavailable {
		t.Fatalf("/readyz during drain = %d", code)
	}
	if !strings.Contains(body, "draining") {
		t.Fatalf("/readyz body = %q", body)
	}
	// liveness is unaffected by the drain gate
	if code, _ := fetch(t, base+"/healthz"); code != http.StatusOK {
		t.Fatalf("/healthz during drain = %d", code)
	}
}

func TestStart_MetricsMounted(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("content_writes_total 3\n"))
	})
	base, _ := startOps(t, &Options{Metrics: metrics})

	code, body := fetch(t, base+"/metrics")
	if code != http.StatusOK || !strings.Contains(body, "content_writes_total") {
		t.Fatalf("/metrics = %d %q", code, body)
	}
}

func TestStart_MetricsAbsentWhenNil(t *testing.T) {
	base, _ := startOps(t, &Options{})
	if code, _ := fetch(t, base+"/metrics"); code != http.StatusNotFound {
		t.Fatalf("/metrics without a handler = %d, want 404", code)
	}
}

func TestStart_PprofToggle(t *testing.T) {
	base, _ := startOps(t, &Options{EnablePprof: true})
	if code, body := fetch(t, base+"/debug/pprof/"); code != http.StatusOK || !strings.Contains(body, "profile") {
		t.Fatalf("pprof index = %d", code)
	}

	base, _ = startOps(t, &Options{EnablePprof: false})
	if code, _ := fetch(t, base+"/debug/pprof/"); code != http.StatusNotFound {
		t.Fatalf("disabled pprof index = %d, want 404", code)
	}
	if code, _ := fetch(t, base+"/debug/pprof/heap"); code != http.StatusNotFound {
		t.Fatalf("disabled pprof heap = %d, want 404", code)
	}
}

func TestStart_StopIsIdempotent(t *testing.T) {
	base, stop := startOps(t, &Options{})

	if err := stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if _, err := http.Get(base + "/healthz"); err == nil {
		t.Fatal("ops server still serving after stop")
	}
}

func TestStart_PortInUse(t *testing.T) {
	first := &Options{}
	_, _ = startOps(t, first)

	if _, err := Start(context.Background(), log.Nop(), &Options{Port: first.Port}); err == nil {
		t.Fatal("second Start on the same port succeeded")
	}
}
