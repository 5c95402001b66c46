package appserver

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Deps wires the HTTP surface together. API is the coordinator's REST
// handler (pane listing, single-pane reads, handoff reads); it is built
// and owned by cmd/panehubd, not by this package, so appserver stays free of
// a direct dependency on the coordinator.
type Deps struct {
	API http.Handler
}

type Server struct {
	api  http.Handler
	edge *EdgeWSHub
}

func NewServer(deps Deps) (*Server, error) {
	api := deps.API
	if api == nil {
		api = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"ok":    false,
				"error": map[string]any{"code": "NOT_CONFIGURED", "message": "api handler not configured"},
			})
		})
	}
	return &Server{
		api:  api,
		edge: NewEdgeWSHub(),
	}, nil
}

func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serveHTTP)
}

// BroadcastPaneEvent forwards a lifecycle or injection-outcome event to every
// renderer websocket attached to paneID.
func (s *Server) BroadcastPaneEvent(paneID, topic string, payload map[string]any) {
	if s == nil || s.edge == nil {
		return
	}
	s.edge.BroadcastPaneEvent(paneID, topic, payload)
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Path
	switch {
	case strings.HasPrefix(p, "/ws/pane/") || strings.HasPrefix(p, "/ws/render/"):
		s.edge.ServeHTTP(w, r)
		return
	case p == "/healthz":
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": map[string]any{"status": "ok"}})
		return
	default:
		s.api.ServeHTTP(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
