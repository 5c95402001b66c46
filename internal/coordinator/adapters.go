package coordinator

import (
	"time"

	"panehub/internal/bus"
	"panehub/internal/capability"
	"panehub/internal/inject"
	"panehub/internal/progdetector"
	"panehub/internal/ptyio"
	"panehub/internal/throttle"
)

// IsAlive satisfies inject.Terminal: a pane counts as alive as long as the
// Coordinator still tracks it (a torn-down or never-attached pane never
// gets to this point in the pipeline).
func (c *Coordinator) IsAlive(paneID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.panes[paneID]
	return ok
}

// Focus satisfies inject.Terminal and recovery's focus-before-write need;
// it is a no-op for transports (like raw PTY) that have no concept of
// bringing a pane to the foreground.
func (c *Coordinator) Focus(paneID string) error {
	type focuser interface {
		Focus(paneID string) error
	}
	if f, ok := c.transport.(focuser); ok {
		return f.Focus(paneID)
	}
	return nil
}

// Write satisfies both inject.Terminal and recovery.Terminal.
func (c *Coordinator) Write(paneID string, data []byte) error {
	_, err := c.transport.Write(paneID, data, ptyio.WriteMeta{})
	return err
}

// ColumnWidth satisfies inject.Terminal; the injection pipeline uses it as
// the chunk size when a pane's capability asks for chunked writes.
func (c *Coordinator) ColumnWidth(paneID string) int {
	type widther interface {
		ColumnWidth(paneID string) int
	}
	if w, ok := c.transport.(widther); ok {
		return w.ColumnWidth(paneID)
	}
	return 80
}

// SendEnter satisfies inject.Terminal: a trusted Enter goes through the
// transport's dedicated trusted-key primitive, while a pty-method Enter is
// a literal carriage return write.
func (c *Coordinator) SendEnter(paneID string, method capability.EnterMethod, delay time.Duration) error {
	send := func() error {
		switch method {
		case capability.EnterTrusted:
			_, err := c.transport.SendTrustedEnter(paneID)
			return err
		case capability.EnterPTY:
			_, err := c.transport.Write(paneID, []byte("\r"), ptyio.WriteMeta{})
			return err
		default:
			return nil
		}
	}
	if delay <= 0 {
		return send()
	}
	time.Sleep(delay)
	return send()
}

// AwaitAcceptance is a best-effort, no-retry heuristic: any output observed
// within the acceptance window counts as acceptance evidence; a pane that
// stays silent reports unverified rather than blocking the pipeline further.
func (c *Coordinator) AwaitAcceptance(paneID string, maxAttempts int) bool {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	seen := make(chan struct{}, maxAttempts)
	dispose := c.transport.OnData(paneID, func(_ string, _ []byte) {
		select {
		case seen <- struct{}{}:
		default:
		}
	})
	defer dispose()

	select {
	case <-seen:
		return true
	case <-time.After(acceptanceWindow):
		return false
	}
}

// SendUnstickKeys satisfies recovery.Terminal: a plain Ctrl-C followed by
// Enter, the same unstick sequence every runtime profile recognizes.
func (c *Coordinator) SendUnstickKeys(paneID string) error {
	if _, err := c.transport.Write(paneID, []byte{0x03}, ptyio.WriteMeta{}); err != nil {
		return err
	}
	_, err := c.transport.SendTrustedEnter(paneID)
	return err
}

// RestartPane satisfies recovery.Terminal: kill and recreate the pane in
// its last known role/cwd.
func (c *Coordinator) RestartPane(paneID string) error {
	c.mu.Lock()
	st, ok := c.panes[paneID]
	var role, cwd string
	if ok {
		role, cwd = st.pane.Role, st.pane.CWD
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}
	if err := c.Teardown(paneID); err != nil {
		return err
	}
	_, err := c.Spawn(paneID, role, cwd)
	return err
}

// Invoke satisfies inject.CodexBridge, delegating to the transport's
// out-of-band codex-exec bridge where one exists.
func (c *Coordinator) Invoke(paneID, message string) error {
	_, err := c.transport.CodexExec(paneID, message, ptyio.WriteMeta{})
	return err
}

// State satisfies inject.CompactionGate.
func (c *Coordinator) State(paneID string) string {
	return string(c.compaction.Get(paneID).Snapshot().State)
}

// Emit satisfies inject.Emitter, forwarding straight to the bus.
func (c *Coordinator) Emit(eventType, paneID string, payload map[string]any) {
	c.bus.Emit(eventType, bus.EmitInput{PaneID: paneID, Payload: payload})
}

// CurrentCommand satisfies inject.RuntimeHint, resolving a pane's
// configured launch command so the capability resolver can tell runtimes
// apart.
func (c *Coordinator) CurrentCommand(paneID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.panes[paneID]; ok && st.pane.RuntimeCommand != "" {
		return st.pane.RuntimeCommand
	}
	return c.paneCommands[paneID]
}

// PaneRole satisfies inject.RuntimeHint, resolving a pane's configured role
// (e.g. "agent", "human", "reviewer") for the codex-exec identity header.
func (c *Coordinator) PaneRole(paneID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.panes[paneID]; ok {
		return st.pane.Role
	}
	return ""
}

// DetectProgram looks up the registered progdetector.Detector whose
// MatchCurrentCommand recognizes this pane's launch command, if any. It is
// separate from capability.Resolver's runtime profile: this answers "which
// concrete program is this" for diagnostics and prompt-step construction,
// while the capability profile answers "how do we submit input to it".
func (c *Coordinator) DetectProgram(paneID string) (progdetector.Detector, bool) {
	return progdetector.ProgramDetectorRegistry.DetectByCurrentCommand(c.CurrentCommand(paneID))
}

// SendToPane satisfies throttle.Injector, adapting inject.Controller's
// SendOptions-based callback onto throttle's InjectResult shape. While SDK
// pairing mode is active, the Coordinator does not own the pane's input
// stream, so injection is a no-op rather than racing the paired SDK
// session for the pane.
func (c *Coordinator) SendToPane(paneID, message string, onComplete func(throttle.InjectResult)) {
	c.mu.Lock()
	sdkMode := c.sdkMode
	c.mu.Unlock()
	if sdkMode {
		if onComplete != nil {
			onComplete(throttle.InjectResult{Success: false, Reason: "missing_injection_controller"})
		}
		return
	}
	c.inject.SendToPane(paneID, message, injectOptionsFor(onComplete))
}

func injectOptionsFor(onComplete func(throttle.InjectResult)) inject.SendOptions {
	return inject.SendOptions{
		OnComplete: func(r inject.Result) {
			if onComplete == nil {
				return
			}
			onComplete(throttle.InjectResult{Success: r.Success, Verified: r.Verified, Reason: r.Reason})
		},
	}
}

// EmitDeliveryAck satisfies throttle.OutcomeEmitter.
func (c *Coordinator) EmitDeliveryAck(paneID, deliveryID string) {
	c.bus.Emit("delivery.ack", bus.EmitInput{PaneID: paneID, Payload: map[string]any{"deliveryId": deliveryID}})
}

// EmitDeliveryOutcome satisfies throttle.OutcomeEmitter.
func (c *Coordinator) EmitDeliveryOutcome(paneID, deliveryID string, accepted, verified bool, status string) {
	c.bus.Emit("delivery.outcome", bus.EmitInput{PaneID: paneID, Payload: map[string]any{
		"deliveryId": deliveryID,
		"accepted":   accepted,
		"verified":   verified,
		"status":     status,
	}})
}

// rendererAdapter satisfies termwriter.Renderer on the Coordinator's
// behalf; it can't be a method directly on Coordinator since Renderer's
// Write(paneID, data, onFlushed) collides with inject/recovery's
// Write(paneID, data) error signature.
type rendererAdapter struct{ c *Coordinator }

// Write hands flushed bytes off as a bus event; an appserver-level edge
// hub subscribes to "pane.output" to fan it out to websocket clients.
func (r *rendererAdapter) Write(paneID string, data []byte, onFlushed func()) {
	r.c.bus.Emit("pane.output", bus.EmitInput{PaneID: paneID, Payload: map[string]any{"data": string(data)}})
	if onFlushed != nil {
		onFlushed()
	}
}
