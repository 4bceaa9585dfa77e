package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lychee-technology/viewplane"
)

// apiHandler serves the request/response half of the API. Screens and
// forms are also delivered over the websocket push channel; these routes
// exist for polling clients and diagnostics.
type apiHandler struct {
	engine viewplane.ViewEngine
}

// clientContextFrom builds the per-request client descriptor from
// headers and query parameters.
func clientContextFrom(r *http.Request) viewplane.ClientContext {
	q := r.URL.Query()
	platform := viewplane.Platform(q.Get("platform"))
	if platform == "" {
		platform = viewplane.PlatformDesktop
	}
	return viewplane.ClientContext{
		UserID:        r.Header.Get("X-User-ID"),
		NodeID:        r.Header.Get("X-Node-ID"),
		Platform:      platform,
		Locale:        q.Get("locale"),
		IsFirstNode:   q.Get("firstNode") == "true",
		IsUserTrusted: r.Header.Get("X-User-Trusted") == "true",
		IsMobile:      platform == viewplane.PlatformMobile,
		IsCloud:       q.Get("cloud") == "true",
	}
}

func (h *apiHandler) getScreen(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid screen id", http.StatusBadRequest)
		return
	}
	screen, err := h.engine.GenerateScreen(r.Context(), id, clientContextFrom(r))
	h.writeResult(w, screen, err, screen == nil)
}

func (h *apiHandler) getLiveScreen(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid screen id", http.StatusBadRequest)
		return
	}
	screen, err := h.engine.GenerateLiveScreen(r.Context(), id, clientContextFrom(r))
	h.writeResult(w, screen, err, screen == nil)
}

func (h *apiHandler) getForm(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid form id", http.StatusBadRequest)
		return
	}
	form, err := h.engine.MaterializeForm(r.Context(), id, clientContextFrom(r))
	h.writeResult(w, form, err, form == nil)
}

func (h *apiHandler) getDynamicPanels(w http.ResponseWriter, r *http.Request) {
	panels := h.engine.AssembleDynamicScreens(r.Context(), clientContextFrom(r))
	h.writeResult(w, panels, nil, false)
}

// writeResult maps engine results onto HTTP. Missing and denied both
// produce a bare 404; the engine deliberately does not distinguish them
// to callers.
func (h *apiHandler) writeResult(w http.ResponseWriter, payload any, err error, missing bool) {
	if err != nil {
		zap.S().Errorw("request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if missing {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.S().Warnw("response encode failed", "error", err)
	}
}
