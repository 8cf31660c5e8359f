package sitehandler

import (
	"io/fs"
	"net/http"
)

type Handler struct {
	opts Options
}

func New(opts Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Handler{opts: opts}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// hardening: only allow GET/HEAD, writes go through the content API
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	siteFS, ok := h.opts.Site.Site()

	// serve maintenance page until the site is deployed
	if !ok {
		h.serveMaintenance(w, r)
		return
	}

	// resolve request -> file
	file, redirectTo, found := resolvePath(r.URL.Path, siteFS)
	if redirectTo != "" {
		// 308 keeps the method even though only GET/HEAD get this far
		http.Redirect(w, r, redirectTo, http.StatusPermanentRedirect)
		return
	}
	if !found {
		h.serveNotFound(w, r, siteFS)
		return
	}

	// cache-control policy by file extension
	if cc := cacheControlForFile(file, &h.opts); cc != "" {
		w.Header().Set("Cache-Control", cc)
	}

	http.ServeFileFS(w, r, siteFS, file)
}

func (h *Handler) serveMaintenance(w http.ResponseWriter, r *http.Request) {
	// Maintenance should never be cached.
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Retry-After", "60")

	serveFileWithStatus(w, r, http.StatusServiceUnavailable, h.opts.FallbackFS, h.opts.MaintenanceFile)
}

func (h *Handler) serveNotFound(w http.ResponseWriter, r *http.Request, siteFS fs.FS) {
	// avoid caching 404 responses
	w.Header().Set("Cache-Control", "no-store")

	// site's own 404 page first, embedded fallback second
	candidates := []struct {
		fsys fs.FS
		name string
	}{
		{siteFS, h.opts.Site404File},
		{h.opts.FallbackFS, h.opts.Fallback404File},
	}
	for _, c := range candidates {
		if existsFile(c.fsys, c.name) {
			serveFileWithStatus(w, r, http.StatusNotFound, c.fsys, c.name)
			return
		}
	}

	// last resort: plain text
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("404 page not found"))
}

// forcedStatusWriter replaces the first WriteHeader call with a fixed
// status. http.ServeFileFS writes 200 on its own, so serving an error
// page through it for 404/503 needs the override.
type forcedStatusWriter struct {
	http.ResponseWriter
	status int
	forced bool
}

func (w *forcedStatusWriter) WriteHeader(code int) {
	if !w.forced {
		w.forced = true
		code = w.status
	}
	w.ResponseWriter.WriteHeader(code)
}

func serveFileWithStatus(w http.ResponseWriter, r *http.Request, status int, fsys fs.FS, name string) {
	http.ServeFileFS(&forcedStatusWriter{ResponseWriter: w, status: status}, r, fsys, name)
}
