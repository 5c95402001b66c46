package appserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"panehub/internal/protocol"
)

func fakeAPIHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/panes", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": map[string]any{"panes": []string{}}})
	})
	return mux
}

func makeDeps() Deps {
	return Deps{API: fakeAPIHandler()}
}

func TestServer_HealthzRoute(t *testing.T) {
	srv, err := NewServer(makeDeps())
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", resp.StatusCode)
	}
}

func TestServer_APIRoute(t *testing.T) {
	srv, err := NewServer(makeDeps())
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/panes")
	if err != nil {
		t.Fatalf("GET api failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from api route, got %d", resp.StatusCode)
	}
}

func TestServer_EdgeWSBridge_RendererReceivesProducerFrame(t *testing.T) {
	srv, err := NewServer(makeDeps())
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	baseWS := "ws" + strings.TrimPrefix(ts.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	producer, _, err := websocket.Dial(ctx, baseWS+"/ws/pane/p1", nil)
	if err != nil {
		t.Fatalf("dial pane failed: %v", err)
	}
	producer.SetReadLimit(-1)
	defer func() { _ = producer.Close(websocket.StatusNormalClosure, "") }()

	renderer, _, err := websocket.Dial(ctx, baseWS+"/ws/render/p1", nil)
	if err != nil {
		t.Fatalf("dial renderer failed: %v", err)
	}
	renderer.SetReadLimit(-1)
	defer func() { _ = renderer.Close(websocket.StatusNormalClosure, "") }()

	reqRaw := []byte(`{"id":"req_1","type":"req","op":"pane.inject","payload":{"text":"hello"}}`)
	if err := renderer.Write(ctx, websocket.MessageText, reqRaw); err != nil {
		t.Fatalf("renderer write failed: %v", err)
	}
	_, msg, err := producer.Read(ctx)
	if err != nil {
		t.Fatalf("producer read failed: %v", err)
	}
	connID, inner, err := protocol.UnwrapMuxEnvelope(msg)
	if err != nil {
		t.Fatalf("producer unwrap failed: %v", err)
	}
	if string(inner) != string(reqRaw) {
		t.Fatalf("expected wrapped renderer payload, got %s", string(inner))
	}

	resRaw := []byte(`{"id":"req_1","type":"res","op":"pane.inject","payload":{"status":"delivered"}}`)
	out, err := protocol.WrapMuxEnvelope(connID, resRaw)
	if err != nil {
		t.Fatalf("producer wrap failed: %v", err)
	}
	if err := producer.Write(ctx, websocket.MessageText, out); err != nil {
		t.Fatalf("producer write failed: %v", err)
	}
	_, msg, err = renderer.Read(ctx)
	if err != nil {
		t.Fatalf("renderer read failed: %v", err)
	}
	if string(msg) != string(resRaw) {
		t.Fatalf("expected forwarded producer msg, got %s", string(msg))
	}
}

func TestServer_EdgeWSBridge_AllowsLargeProducerFrame(t *testing.T) {
	srv, err := NewServer(makeDeps())
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	baseWS := "ws" + strings.TrimPrefix(ts.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	producer, _, err := websocket.Dial(ctx, baseWS+"/ws/pane/p1", nil)
	if err != nil {
		t.Fatalf("dial pane failed: %v", err)
	}
	producer.SetReadLimit(-1)
	defer func() { _ = producer.Close(websocket.StatusNormalClosure, "") }()

	renderer, _, err := websocket.Dial(ctx, baseWS+"/ws/render/p1", nil)
	if err != nil {
		t.Fatalf("dial renderer failed: %v", err)
	}
	renderer.SetReadLimit(-1)
	defer func() { _ = renderer.Close(websocket.StatusNormalClosure, "") }()

	msg := map[string]any{
		"id":   "evt_status_big",
		"type": "event",
		"op":   "pane.output",
		"payload": map[string]any{
			"mode": "append",
			"data": strings.Repeat("x", 40000),
		},
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal big status msg failed: %v", err)
	}

	if err := producer.Write(ctx, websocket.MessageText, raw); err != nil {
		t.Fatalf("producer write failed: %v", err)
	}

	readCtx, readCancel := context.WithTimeout(ctx, 2*time.Second)
	defer readCancel()
	_, got, err := renderer.Read(readCtx)
	if err != nil {
		t.Fatalf("renderer read failed for big producer msg: %v", err)
	}
	if string(got) != string(raw) {
		t.Fatalf("expected forwarded big producer msg, got len=%d want=%d", len(got), len(raw))
	}
}

func TestEdgeWSHub_MultiRendererRoutesByConnID(t *testing.T) {
	srv, err := NewServer(makeDeps())
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	baseWS := "ws" + strings.TrimPrefix(ts.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	producer, _, err := websocket.Dial(ctx, baseWS+"/ws/pane/p1", nil)
	if err != nil {
		t.Fatalf("dial pane failed: %v", err)
	}
	defer func() { _ = producer.Close(websocket.StatusNormalClosure, "") }()

	renderer1, _, err := websocket.Dial(ctx, baseWS+"/ws/render/p1", nil)
	if err != nil {
		t.Fatalf("dial renderer1 failed: %v", err)
	}
	defer func() { _ = renderer1.Close(websocket.StatusNormalClosure, "") }()

	renderer2, _, err := websocket.Dial(ctx, baseWS+"/ws/render/p1", nil)
	if err != nil {
		t.Fatalf("dial renderer2 failed: %v", err)
	}
	defer func() { _ = renderer2.Close(websocket.StatusNormalClosure, "") }()

	reqRaw := []byte(`{"id":"1","type":"req","op":"pane.inject","payload":{"text":"hi"}}`)
	if err := renderer1.Write(ctx, websocket.MessageText, reqRaw); err != nil {
		t.Fatalf("renderer1 write failed: %v", err)
	}

	_, producerIn, err := producer.Read(ctx)
	if err != nil {
		t.Fatalf("producer read failed: %v", err)
	}
	connID, inner, err := protocol.UnwrapMuxEnvelope(producerIn)
	if err != nil {
		t.Fatalf("unwrap mux envelope failed: %v", err)
	}
	if string(inner) != string(reqRaw) {
		t.Fatalf("unexpected inner payload: %s", string(inner))
	}

	resRaw := []byte(`{"id":"1","type":"res","op":"pane.inject","payload":{"status":"delivered"}}`)
	toRenderer1, err := protocol.WrapMuxEnvelope(connID, resRaw)
	if err != nil {
		t.Fatalf("wrap mux envelope failed: %v", err)
	}
	if err := producer.Write(ctx, websocket.MessageText, toRenderer1); err != nil {
		t.Fatalf("producer write failed: %v", err)
	}

	readCtx1, cancel1 := context.WithTimeout(ctx, time.Second)
	defer cancel1()
	_, got1, err := renderer1.Read(readCtx1)
	if err != nil {
		t.Fatalf("renderer1 read failed: %v", err)
	}
	if string(got1) != string(resRaw) {
		t.Fatalf("renderer1 got unexpected payload: %s", string(got1))
	}

	readCtx2, cancel2 := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel2()
	if _, _, err := renderer2.Read(readCtx2); err == nil {
		t.Fatal("renderer2 should not receive response routed to renderer1 conn_id")
	}
}

func TestServer_BroadcastPaneEvent_DeliversToRenderers(t *testing.T) {
	srv, err := NewServer(makeDeps())
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	baseWS := "ws" + strings.TrimPrefix(ts.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	renderer, _, err := websocket.Dial(ctx, baseWS+"/ws/render/p1", nil)
	if err != nil {
		t.Fatalf("dial renderer failed: %v", err)
	}
	renderer.SetReadLimit(-1)
	defer func() { _ = renderer.Close(websocket.StatusNormalClosure, "") }()

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			srv.BroadcastPaneEvent("p1", "lifecycle.state_changed", map[string]any{"state": "attached"})
			select {
			case <-done:
				return
			case <-ticker.C:
			}
		}
	}()

	var msg protocol.Message
	for {
		_, raw, err := renderer.Read(ctx)
		if err != nil {
			t.Fatalf("renderer read failed: %v", err)
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("unmarshal renderer event failed: %v", err)
		}
		if msg.Type == "event" && msg.Op == "lifecycle.state_changed" {
			break
		}
	}
	var payload map[string]any
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload failed: %v", err)
	}
	if toString(payload["state"]) != "attached" {
		t.Fatalf("expected payload.state=attached, got %#v", payload["state"])
	}
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}
