// Package httpapi exposes the badge service over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/leonardcser/retro-badge/internal/artifact"
	"github.com/leonardcser/retro-badge/internal/badge"
	"github.com/leonardcser/retro-badge/internal/logger"
	"go.uber.org/zap"
)

// Badges is the part of *badge.Service the handlers need.
type Badges interface {
	Serve(ctx context.Context, username string, cond artifact.Conditional) (badge.Result, error)
	Invalidate(username string) ([]string, error)
	InvalidateAll() (int, error)
	Stats() badge.Stats
	ArtifactTTL() time.Duration
}

type handler struct {
	badges Badges
	now    func() time.Time
	log    *zap.SugaredLogger
}

// Register mounts every route on mux.
func Register(mux *http.ServeMux, badges Badges) {
	h := &handler{badges: badges, now: time.Now, log: logger.With("http")}

	mux.HandleFunc("GET /users/{file}", h.handleBadge)
	mux.HandleFunc("GET /invalidate/{username}", h.handleInvalidate)
	mux.HandleFunc("POST /invalidate/{username}", h.handleInvalidate)
	mux.HandleFunc("GET /invalidate_all", h.handleInvalidateAll)
	mux.HandleFunc("POST /invalidate_all", h.handleInvalidateAll)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /stats", h.handleStats)
}

// NewHandler returns the full route table wrapped in the access log.
func NewHandler(badges Badges) http.Handler {
	mux := http.NewServeMux()
	Register(mux, badges)
	return AccessLog(mux)
}

func (h *handler) handleBadge(w http.ResponseWriter, r *http.Request) {
	username, ok := strings.CutSuffix(r.PathValue("file"), ".png")
	if !ok || username == "" {
		http.NotFound(w, r)
		return
	}

	res, err := h.badges.Serve(r.Context(), username, artifact.FromRequest(r))
	if err != nil {
		// The client went away; nobody is left to read a response.
		h.log.Debugw("badge request abandoned", "username", username, "error", err)
		return
	}

	switch res.Outcome {
	case badge.NotModified:
		h.writeValidators(w, res.Entry)
		w.WriteHeader(http.StatusNotModified)
	case badge.Cached, badge.Fresh:
		h.writeValidators(w, res.Entry)
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(res.Entry.Body)))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_, _ = w.Write(res.Entry.Body)
		}
	default:
		http.NotFound(w, r)
	}
}

func (h *handler) writeValidators(w http.ResponseWriter, e artifact.Entry) {
	maxAge := int(h.badges.ArtifactTTL().Seconds())
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(maxAge))
	w.Header().Set("ETag", e.ETag())
	w.Header().Set("Last-Modified", e.LastModified.UTC().Format(http.TimeFormat))
}

type invalidateResponse struct {
	Username string   `json:"username"`
	Deleted  []string `json:"deleted"`
}

func (h *handler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	deleted, err := h.badges.Invalidate(username)
	if err != nil {
		h.log.Errorw("invalidate failed", "username", username, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	status := http.StatusOK
	if len(deleted) == 0 {
		status = http.StatusNotFound
	}
	writeJSON(w, status, invalidateResponse{Username: username, Deleted: deleted})
}

func (h *handler) handleInvalidateAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.badges.InvalidateAll()
	if err != nil {
		h.log.Errorw("invalidate all failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	status := http.StatusOK
	if n == 0 {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]int{"deleted": n})
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

func (h *handler) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.badges.Stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
