// Package contenthttp exposes the content core over HTTP. Every response,
// success or failure, uses the same envelope so UI code can always render a
// message: {success, message, data?, error?, details?, timestamp}.
package contenthttp

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/rgeddes/contentd/internal/auth"
	"github.com/rgeddes/contentd/internal/content"
	"github.com/rgeddes/contentd/internal/cryptoutil"
	"github.com/rgeddes/contentd/internal/log"
)

// API wires the content service and auth gate into chi routes.
type API struct {
	svc    *content.Service
	gate   *auth.Gate
	reg    *content.Registry
	logger log.Logger
}

// New returns an API. All dependencies are required except the logger.
func New(svc *content.Service, gate *auth.Gate, reg *content.Registry, logger log.Logger) *API {
	if logger == nil {
		logger = log.Nop()
	}
	return &API{svc: svc, gate: gate, reg: reg, logger: logger}
}

// RegisterRoutes attaches all API endpoints. Mutating routes sit behind the
// bearer-token middleware.
func (api *API) RegisterRoutes(r chi.Router) {
	r.Get("/api/content/update-status/{type}", api.handleUpdateStatus)
	r.Get("/api/content/{type}", api.handleGetContent)
	r.Get("/api/content/{type}/{section}", api.handleGetSection)
	r.Get("/api/json", api.handleListDocuments)
	r.Get("/api/backups", api.handleListBackups)
	r.Get("/api/backups/{filename}", api.handleListBackups)
	r.Post("/api/auth/login", api.handleLogin)
	r.Post("/api/auth/change-password", api.handleChangePassword)

	r.Group(func(pr chi.Router) {
		pr.Use(api.requireAuth)
		pr.Post("/api/json/{filename}", api.handleUpdateDocument)
		pr.Delete("/api/json/{filename}", api.handleDeleteDocument)
		pr.Post("/api/backups/{id}/restore", api.handleRestore)
	})
}

func (api *API) handleGetContent(w http.ResponseWriter, r *http.Request) {
	typ := chi.URLParam(r, "type")
	doc, err := api.svc.Get(r.Context(), typ)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	if etag, ok := api.documentETag(doc); ok {
		if match := r.Header.Get("If-None-Match"); match != "" && etagMatches(match, etag) {
			w.Header().Set("ETag", etag)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
	}
	api.writeSuccess(w, r, "content retrieved", map[string]any{
		"type":         typ,
		"body":         doc.Body,
		"lastModified": doc.LastModified,
	}, "")
}

// documentETag derives a strong ETag from the document body plus its
// modification stamp, so a restore that reproduces old bytes still changes
// the tag.
func (api *API) documentETag(doc content.Doc) (string, bool) {
	raw, err := json.Marshal(doc.Body)
	if err != nil {
		return "", false
	}
	sum := cryptoutil.SHA256Hex(append(raw, []byte(strconv.FormatInt(doc.LastModified, 10))...))
	return `"` + sum + `"`, true
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		if cryptoutil.HashEqual(candidate, etag) {
			return true
		}
	}
	return false
}

func (api *API) handleGetSection(w http.ResponseWriter, r *http.Request) {
	typ := chi.URLParam(r, "type")
	section := chi.URLParam(r, "section")
	doc, err := api.svc.GetSection(r.Context(), typ, section)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	api.writeSuccess(w, r, "section retrieved", map[string]any{
		"type":         typ,
		"section":      section,
		"body":         doc.Body,
		"lastModified": doc.LastModified,
	}, "")
}

func (api *API) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	typ := chi.URLParam(r, "type")
	var since int64
	if raw := r.URL.Query().Get("lastUpdate"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			api.writeFailure(w, r, http.StatusBadRequest, "invalid lastUpdate", "lastUpdate must be epoch milliseconds", nil)
			return
		}
		since = parsed
	}
	notice, err := api.svc.HasUpdate(r.Context(), typ, since)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	api.writeSuccess(w, r, "update status", notice, "")
}

func (api *API) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := api.svc.List(r.Context())
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	api.writeSuccess(w, r, "documents listed", docs, "")
}

func (api *API) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	typ, ok := api.resolveType(chi.URLParam(r, "filename"))
	if !ok {
		api.writeFailure(w, r, http.StatusNotFound, "unknown content type", "no such document", nil)
		return
	}

	var body any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		api.writeFailure(w, r, http.StatusBadRequest, "invalid JSON body", err.Error(), nil)
		return
	}

	ts, warn, err := api.svc.Update(r.Context(), typ, body)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	api.writeSuccess(w, r, "content updated", map[string]any{
		"filename":     api.reg.FileName(typ),
		"type":         typ,
		"lastModified": ts,
	}, warnText(warn))
}

func (api *API) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	typ, ok := api.resolveType(chi.URLParam(r, "filename"))
	if !ok {
		api.writeFailure(w, r, http.StatusNotFound, "unknown content type", "no such document", nil)
		return
	}
	warn, err := api.svc.Delete(r.Context(), typ)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	api.writeSuccess(w, r, "content deleted", map[string]any{"type": typ}, warnText(warn))
}

func (api *API) handleListBackups(w http.ResponseWriter, r *http.Request) {
	typ := ""
	if f := chi.URLParam(r, "filename"); f != "" {
		resolved, ok := api.resolveType(f)
		if !ok {
			api.writeFailure(w, r, http.StatusNotFound, "unknown content type", "no such document", nil)
			return
		}
		typ = resolved
	}
	backups, err := api.svc.ListBackups(typ)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	if backups == nil {
		backups = []content.BackupInfo{}
	}
	api.writeSuccess(w, r, "backups listed", backups, "")
}

func (api *API) handleRestore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	typ, ts, warn, err := api.svc.Restore(r.Context(), id)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	api.writeSuccess(w, r, "backup restored", map[string]any{
		"type":         typ,
		"backupId":     id,
		"lastModified": ts,
	}, warnText(warn))
}

func (api *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeFailure(w, r, http.StatusBadRequest, "invalid JSON body", err.Error(), nil)
		return
	}
	user, token, err := api.gate.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		api.writeFailure(w, r, http.StatusUnauthorized, "login failed", "invalid credentials", nil)
		return
	}
	api.writeSuccess(w, r, "login successful", map[string]any{
		"user":  user,
		"token": token,
	}, "")
}

func (api *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username    string `json:"username"`
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeFailure(w, r, http.StatusBadRequest, "invalid JSON body", err.Error(), nil)
		return
	}
	err := api.gate.ChangePassword(r.Context(), req.Username, req.OldPassword, req.NewPassword)
	switch {
	case errors.Is(err, auth.ErrPasswordTooShort):
		api.writeFailure(w, r, http.StatusBadRequest, "password change rejected",
			"new password must be at least 6 characters", nil)
	case errors.Is(err, auth.ErrInvalidCredentials):
		api.writeFailure(w, r, http.StatusUnauthorized, "password change rejected", "invalid credentials", nil)
	case err != nil:
		api.writeError(w, r, err)
	default:
		api.writeSuccess(w, r, "password changed", nil, "")
	}
}

// resolveType accepts either a bare content type ("contact") or a document
// file name ("contact.json") and maps it to the registered type.
func (api *API) resolveType(name string) (string, bool) {
	if _, ok := api.reg.Lookup(name); ok {
		return name, true
	}
	if typ, ok := api.reg.TypeForFile(name); ok {
		return typ, true
	}
	trimmed := strings.TrimSuffix(name, ".json")
	if _, ok := api.reg.Lookup(trimmed); ok {
		return trimmed, true
	}
	return "", false
}

func warnText(warn *content.SnapshotWarning) string {
	if warn == nil {
		return ""
	}
	return warn.Error()
}
