package appserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"panehub/internal/protocol"
)

const edgeWSReadLimitBytes int64 = 1 << 20 // 1 MiB

// peerConn serializes writes to a single websocket connection; coder/websocket
// permits only one writer at a time.
type peerConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// edgePaneSession is the fan-in/fan-out point for one pane: a single owning
// producer connection (the PTY-facing side, usually the coordinator itself
// re-exporting raw bytes) and any number of renderer observers multiplexed
// over one logical path via a conn_id envelope.
type edgePaneSession struct {
	producer       *peerConn
	renderers      map[string]*peerConn
	connByRenderer map[*peerConn]string
	nextConnSeq    uint64
}

// EdgeWSHub is the websocket ingress/egress surface named in the external
// interfaces: producers push raw frames in, renderers receive broadcast
// frames out, scoped per pane ID.
type EdgeWSHub struct {
	mu       sync.Mutex
	sessions map[string]*edgePaneSession
}

func NewEdgeWSHub() *EdgeWSHub {
	return &EdgeWSHub{sessions: map[string]*edgePaneSession{}}
}

func (h *EdgeWSHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	role, paneID, ok := parseEdgePath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(edgeWSReadLimitBytes)
	peer := &peerConn{conn: conn}
	h.attach(paneID, role, peer)
	defer h.detach(paneID, role, peer)

	for {
		msgType, data, err := conn.Read(r.Context())
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				return
			}
			return
		}
		if role == "render" {
			target, outbound, ok := h.wrapRendererInbound(paneID, peer, data)
			if !ok {
				continue
			}
			h.writePeer(target, msgType, outbound)
			continue
		}

		targets, outbound := h.routeProducerOutbound(paneID, data)
		for _, target := range targets {
			h.writePeer(target, msgType, outbound)
		}
	}
}

func parseEdgePath(path string) (role, paneID string, ok bool) {
	if strings.HasPrefix(path, "/ws/pane/") {
		id := strings.TrimPrefix(path, "/ws/pane/")
		if id != "" && !strings.Contains(id, "/") {
			return "pane", id, true
		}
	}
	if strings.HasPrefix(path, "/ws/render/") {
		id := strings.TrimPrefix(path, "/ws/render/")
		if id != "" && !strings.Contains(id, "/") {
			return "render", id, true
		}
	}
	return "", "", false
}

func (h *EdgeWSHub) attach(paneID, role string, conn *peerConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.sessions[paneID]
	if s == nil {
		s = &edgePaneSession{
			renderers:      map[string]*peerConn{},
			connByRenderer: map[*peerConn]string{},
		}
		h.sessions[paneID] = s
	}
	if role == "pane" {
		s.producer = conn
	} else {
		s.nextConnSeq++
		connID := fmt.Sprintf("conn_%d", s.nextConnSeq)
		s.renderers[connID] = conn
		s.connByRenderer[conn] = connID
	}
}

func (h *EdgeWSHub) detach(paneID, role string, conn *peerConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.sessions[paneID]
	if s == nil {
		return
	}
	if role == "pane" && s.producer == conn {
		s.producer = nil
	}
	if role == "render" {
		connID := s.connByRenderer[conn]
		delete(s.connByRenderer, conn)
		if connID != "" {
			delete(s.renderers, connID)
		}
	}
	if s.producer == nil && len(s.renderers) == 0 {
		delete(h.sessions, paneID)
	}
}

func (h *EdgeWSHub) wrapRendererInbound(paneID string, conn *peerConn, data []byte) (*peerConn, []byte, bool) {
	h.mu.Lock()
	s := h.sessions[paneID]
	if s == nil || s.producer == nil {
		h.mu.Unlock()
		return nil, nil, false
	}
	connID := s.connByRenderer[conn]
	producer := s.producer
	h.mu.Unlock()

	if connID == "" {
		return nil, nil, false
	}
	outbound, err := protocol.WrapMuxEnvelope(connID, data)
	if err != nil {
		return nil, nil, false
	}
	return producer, outbound, true
}

func (h *EdgeWSHub) routeProducerOutbound(paneID string, data []byte) ([]*peerConn, []byte) {
	connID, inner, err := protocol.UnwrapMuxEnvelope(data)
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.sessions[paneID]
	if s == nil || len(s.renderers) == 0 {
		return nil, nil
	}

	if err != nil {
		targets := make([]*peerConn, 0, len(s.renderers))
		for _, c := range s.renderers {
			targets = append(targets, c)
		}
		return targets, data
	}

	target := s.renderers[connID]
	if target == nil {
		return nil, nil
	}
	return []*peerConn{target}, inner
}

func (h *EdgeWSHub) writePeer(target *peerConn, msgType websocket.MessageType, data []byte) {
	if target == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	target.writeMu.Lock()
	_ = target.conn.Write(ctx, msgType, data)
	target.writeMu.Unlock()
	cancel()
}

// BroadcastPaneEvent pushes an out-of-band event (e.g. lifecycle or
// injection-outcome notifications) to every renderer currently attached to
// a pane, independent of the producer's own frame stream.
func (h *EdgeWSHub) BroadcastPaneEvent(paneID, topic string, payload map[string]any) {
	if h == nil {
		return
	}
	paneID = strings.TrimSpace(paneID)
	topic = strings.TrimSpace(topic)
	if paneID == "" || topic == "" {
		return
	}
	raw, err := json.Marshal(protocol.Message{
		ID:      fmt.Sprintf("evt_%d", time.Now().UTC().UnixNano()),
		Type:    "event",
		Op:      topic,
		Payload: protocol.MustRaw(payload),
	})
	if err != nil {
		return
	}

	h.mu.Lock()
	s := h.sessions[paneID]
	if s == nil || len(s.renderers) == 0 {
		h.mu.Unlock()
		return
	}
	targets := make([]*peerConn, 0, len(s.renderers))
	for _, c := range s.renderers {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, target := range targets {
		h.writePeer(target, websocket.MessageText, raw)
	}
}
