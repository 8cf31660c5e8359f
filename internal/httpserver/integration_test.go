package httpserver_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/rgeddes/contentd/internal/auth"
	"github.com/rgeddes/contentd/internal/content"
	"github.com/rgeddes/contentd/internal/contenthttp"
	"github.com/rgeddes/contentd/internal/httpserver"
	"github.com/rgeddes/contentd/internal/log"
	"github.com/rgeddes/contentd/internal/sitehandler"
)

// newStack wires NewHandler with a real content service backed by a temp
// dir, the auth gate, the content API, and a site handler over an in-memory
// site. This is the same assembly main performs, minus the listeners.
func newStack(t *testing.T) http.Handler {
	t.Helper()

	reg := content.DefaultRegistry()
	store, err := content.NewFileStore(t.TempDir(), reg)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	backups, err := content.NewBackupManager(filepath.Join(t.TempDir(), "backups"), store, nil, log.Nop())
	if err != nil {
		t.Fatalf("NewBackupManager: %v", err)
	}
	svc, err := content.NewService(content.ServiceOptions{
		Store:    store,
		Backups:  backups,
		Registry: reg,
		Logger:   log.Nop(),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	users, err := auth.LoadUserStore(filepath.Join(t.TempDir(), "users.json"))
	if err != nil {
		t.Fatalf("LoadUserStore: %v", err)
	}
	if err := users.Seed("admin", "hunter22", 4); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	gate, err := auth.NewGate(auth.GateOptions{
		Users:      users,
		Secret:     []byte("integration-test-secret"),
		BcryptCost: 4,
	})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}

	api := contenthttp.New(svc, gate, reg, log.Nop())

	siteFS := fstest.MapFS{
		"index.html":       {Data: []byte("<html><body>Hello World</body></html>")},
		"about/index.html": {Data: []byte("<html><body>About</body></html>")},
		"style.css":        {Data: []byte("body { color: red; }")},
		"404.html":         {Data: []byte("<html><body>Not Found</body></html>")},
	}
	fallbackFS := fstest.MapFS{
		"maintenance.html": {Data: []byte("<html><body>Maintenance</body></html>")},
		"404.html":         {Data: []byte("<html><body>Fallback 404</body></html>")},
	}
	siteH, err := sitehandler.New(sitehandler.Options{
		Logger:     log.Nop(),
		Site:       sitehandler.StaticSite{FS: siteFS, OK: true},
		FallbackFS: fallbackFS,
	})
	if err != nil {
		t.Fatalf("sitehandler.New: %v", err)
	}

	return httpserver.NewHandler(&httpserver.Options{
		Logger:      log.Nop(),
		APIRoutes:   api.RegisterRoutes,
		SiteHandler: siteH,
	})
}

func TestIntegration_SiteServing(t *testing.T) {
	t.Parallel()
	handler := newStack(t)

	securityHeaders := []string{
		"Strict-Transport-Security",
		"Content-Security-Policy",
		"X-Content-Type-Options",
		"X-Frame-Options",
		"Referrer-Policy",
		"Cross-Origin-Embedder-Policy",
		"Cross-Origin-Opener-Policy",
		"Cross-Origin-Resource-Policy",
		"Permissions-Policy",
	}

	t.Run("serves index.html with security headers", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		body, _ := io.ReadAll(rec.Body)
		if !strings.Contains(string(body), "Hello World") {
			t.Fatalf("body = %q, want content containing 'Hello World'", body)
		}
		for _, hdr := range securityHeaders {
			if rec.Header().Get(hdr) == "" {
				t.Errorf("missing security header: %s", hdr)
			}
		}
		if rec.Header().Get("X-Request-Id") == "" {
			t.Error("X-Request-Id not set")
		}
	})

	t.Run("serves sub-path content", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/about/", http.NoBody))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		body, _ := io.ReadAll(rec.Body)
		if !strings.Contains(string(body), "About") {
			t.Fatalf("body = %q, want content containing 'About'", body)
		}
	})

	t.Run("serves static assets", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/style.css", http.NoBody))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if rec.Header().Get("Strict-Transport-Security") == "" {
			t.Fatal("HSTS missing on static asset response")
		}
	})

	t.Run("404 for missing path keeps security headers", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/does-not-exist", http.NoBody))

		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		if rec.Header().Get("Strict-Transport-Security") == "" {
			t.Fatal("HSTS missing on 404 response")
		}
	})

	t.Run("rejects POST to site paths with 405", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", http.NoBody))

		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("status = %d, want 405", rec.Code)
		}
	})

	t.Run("HEAD returns same status as GET", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/", http.NoBody))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	})
}

// TestIntegration_ContentAPI drives the admin workflow end-to-end through
// the full middleware chain: login, authenticated write, public read.
func TestIntegration_ContentAPI(t *testing.T) {
	t.Parallel()
	handler := newStack(t)

	do := func(method, path, token string, body any) *httptest.ResponseRecorder {
		t.Helper()
		var rd io.Reader = http.NoBody
		if body != nil {
			raw, err := json.Marshal(body)
			if err != nil {
				t.Fatalf("marshal body: %v", err)
			}
			rd = bytes.NewReader(raw)
		}
		req := httptest.NewRequest(method, path, rd)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	decode := func(rec *httptest.ResponseRecorder) map[string]any {
		t.Helper()
		var env map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope: %v (body %q)", err, rec.Body.String())
		}
		return env
	}

	contactBody := map[string]any{
		"contact": map[string]any{
			"title":        "Contact Us",
			"organization": "Ridgeview Arts Council",
			"address":      "12 Main St",
			"phone":        "555-0100",
			"email":        "info@example.org",
		},
	}

	// unauthenticated write is rejected
	rec := do(http.MethodPost, "/api/json/contact.json", "", contactBody)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated write status = %d, want 401", rec.Code)
	}

	// login
	rec = do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "admin",
		"password": "hunter22",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	data, _ := decode(rec)["data"].(map[string]any)
	token, _ := data["token"].(string)
	if token == "" {
		t.Fatal("login response has no token")
	}

	// authenticated write
	rec = do(http.MethodPost, "/api/json/contact.json", token, contactBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("write status = %d, body %s", rec.Code, rec.Body.String())
	}

	// public read sees the write
	rec = do(http.MethodGet, "/api/content/contact", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("read status = %d, body %s", rec.Code, rec.Body.String())
	}
	env := decode(rec)
	if ok, _ := env["success"].(bool); !ok {
		t.Fatalf("read envelope success = false: %s", rec.Body.String())
	}
	if rec.Header().Get("ETag") == "" {
		t.Error("content read has no ETag")
	}

	// conditional re-read with the returned ETag
	req := httptest.NewRequest(http.MethodGet, "/api/content/contact", http.NoBody)
	req.Header.Set("If-None-Match", rec.Header().Get("ETag"))
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusNotModified {
		t.Fatalf("conditional read status = %d, want 304", rec2.Code)
	}
}
