package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"panehub/internal/coordinator"
)

// apiHandler is the coordinator-backed REST surface appserver.Server wraps:
// pane listing/lifecycle and a read-only handoff document endpoint. It is
// built in cmd/panehubd rather than inside internal/appserver so the HTTP
// transport package stays free of a direct dependency on the coordinator.
type apiHandler struct {
	coord   *coordinator.Coordinator
	handoff *handoffManager
}

func newAPIHandler(coord *coordinator.Coordinator, hm *handoffManager) *apiHandler {
	return &apiHandler{coord: coord, handoff: hm}
}

func (a *apiHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/panes" && r.Method == http.MethodGet:
		a.listPanes(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/panes/") && r.Method == http.MethodGet:
		a.getPane(w, r)
	case r.URL.Path == "/api/handoff" && r.Method == http.MethodGet:
		a.getHandoff(w, r)
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{
			"ok": false, "error": map[string]any{"code": "NOT_FOUND", "message": "no such route"},
		})
	}
}

func (a *apiHandler) listPanes(w http.ResponseWriter, r *http.Request) {
	panes := a.coord.Panes()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": panes})
}

func (a *apiHandler) getPane(w http.ResponseWriter, r *http.Request) {
	paneID := strings.TrimPrefix(r.URL.Path, "/api/panes/")
	pane, ok := a.coord.Pane(paneID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"ok": false, "error": map[string]any{"code": "PANE_NOT_FOUND", "message": "pane not tracked"},
		})
		return
	}
	programID := ""
	if det, ok := a.coord.DetectProgram(paneID); ok {
		programID = det.ProgramID()
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": map[string]any{
		"pane": pane, "detectedProgram": programID,
	}})
}

func (a *apiHandler) getHandoff(w http.ResponseWriter, r *http.Request) {
	if a.handoff == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ok": false, "error": map[string]any{"code": "HANDOFF_UNAVAILABLE", "message": "handoff manager not configured"},
		})
		return
	}
	doc, err := a.handoff.Current()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"ok": false, "error": map[string]any{"code": "HANDOFF_ERROR", "message": err.Error()},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": map[string]any{"markdown": doc.Content}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
