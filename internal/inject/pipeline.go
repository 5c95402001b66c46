package inject

import (
	"strings"
	"time"

	"panehub/internal/capability"
)

// pipelineState threads through every named step; runPipeline stops at the
// first step that marks it done. Nothing outside the pipeline cancels a run
// that is already in progress.
type pipelineState struct {
	paneID  string
	message string
	opts    SendOptions
	cap     capability.Record

	lockAcquired bool
	sanitized    string
	verified     bool
	result       Result
	done         bool
}

// runPipeline resolves the pane's capability record and drives it through
// the 8-step pipeline, invoking complete exactly once.
func (c *Controller) runPipeline(paneID string, item queuedItem) {
	cap := capability.Record{}
	if c.resolver != nil {
		currentCommand := ""
		if c.hint != nil {
			currentCommand = c.hint.CurrentCommand(paneID)
		}
		runtimeHint := c.resolver.DetectRuntime(currentCommand)
		cap = c.resolver.Resolve(paneID, runtimeHint, c.overrides)
	}

	if cap.ApplyCompactionGate && cap.DeferSubmitWhilePaneActive && c.gate != nil {
		gateState := c.gate.State(paneID)
		if gateState == "confirmed" || gateState == "suspected" {
			now := c.nowFunc()
			waitSince := c.markCompactionWaitStart(paneID, now)
			if now.Sub(waitSince) < CompactionGraceMs*time.Millisecond {
				// Hold the submission (nothing is written yet) and retry once
				// the gate drops or the grace window above elapses.
				c.afterFunc(QueueRetryMs*time.Millisecond, func() { c.runPipeline(paneID, item) })
				return
			}
			c.clearCompactionWait(paneID)
			st := &pipelineState{paneID: paneID, message: item.message, opts: item.opts, cap: cap}
			st.result = Result{Success: false, Reason: "compaction_deferred_timeout"}
			c.outcome(st)
			c.complete(paneID, item, st.result)
			return
		}
		c.clearCompactionWait(paneID)
	}

	st := &pipelineState{paneID: paneID, message: item.message, opts: item.opts, cap: cap}

	if !cap.BypassGlobalLock {
		if !c.acquireGlobalLock(paneID) {
			c.afterFunc(QueueRetryMs*time.Millisecond, func() { c.runPipeline(paneID, item) })
			return
		}
		st.lockAcquired = true
		defer c.releaseGlobalLockIfHeld(st)
	}

	for _, step := range []func(*pipelineState){
		c.preCheck,
		c.arbitrateFocus,
		c.sanitize,
		c.submitCodexExec,
		c.writeTerminal,
		c.submitEnter,
		c.verify,
	} {
		if st.done {
			break
		}
		step(st)
	}
	c.outcome(st)

	c.complete(paneID, item, st.result)
}

func (c *Controller) preCheck(st *pipelineState) {
	if c.terminal == nil || !c.terminal.IsAlive(st.paneID) {
		st.result = Result{Success: false, Reason: "pane_gone"}
		st.done = true
		return
	}
}

func (c *Controller) arbitrateFocus(st *pipelineState) {
	if !st.cap.RequiresFocusForEnter {
		return
	}
	ok := c.focusWithRetry(st.paneID, 3)
	if !ok {
		st.result = Result{Success: false, Reason: "focus_failed"}
		st.done = true
	}
}

func (c *Controller) focusWithRetry(paneID string, maxRetries int) bool {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if c.terminal != nil && c.terminal.Focus(paneID) == nil {
			return true
		}
	}
	return false
}

func (c *Controller) sanitize(st *pipelineState) {
	switch st.cap.SanitizeTransform {
	case capability.SanitizeGemini:
		st.sanitized = geminiSanitize(st.message)
	case capability.SanitizeMultilineEscaped:
		st.sanitized = sanitizeMultiline(st.message)
	default:
		st.sanitized = st.message
	}
}

func geminiSanitize(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.Join(strings.Fields(s), " ")
}

func sanitizeMultiline(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, "\r")
	}
	return strings.Join(lines, "\\n")
}

func (c *Controller) submitCodexExec(st *pipelineState) {
	if st.cap.Mode != capability.ModeCodexExec {
		return
	}
	payload := st.sanitized
	idleSt := func() *paneIdleState {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.idleStateLocked(st.paneID)
	}()
	if !idleSt.identityHeaderSent {
		role := "agent"
		if c.hint != nil {
			if r := c.hint.PaneRole(st.paneID); r != "" {
				role = r
			}
		}
		payload = identityHeader(role, c.nowFunc()) + "\n" + payload
		idleSt.identityHeaderSent = true
	}
	if c.codex != nil {
		if err := c.codex.Invoke(st.paneID, payload); err != nil {
			st.result = Result{Success: false, Reason: "enter_failed"}
			st.done = true
			return
		}
	}
	st.result = Result{Success: true, Verified: true}
	st.done = true
}

func identityHeader(role string, now time.Time) string {
	return "# HIVEMIND SESSION: " + role + " - Started " + now.UTC().Format("2006-01-02")
}

func (c *Controller) writeTerminal(st *pipelineState) {
	if c.terminal == nil {
		st.result = Result{Success: false, Reason: "pane_gone"}
		st.done = true
		return
	}
	if st.cap.ClearLineBeforeWrite {
		c.terminal.Write(st.paneID, []byte{0x15})
	}
	if st.cap.HomeResetBeforeWrite {
		c.terminal.Write(st.paneID, []byte{0x01})
	}

	text := st.sanitized
	if st.cap.UseChunkedWrite {
		width := c.terminal.ColumnWidth(st.paneID)
		if width <= 0 {
			width = 80
		}
		for len(text) > 0 {
			n := width
			if n > len(text) {
				n = len(text)
			}
			c.terminal.Write(st.paneID, []byte(text[:n]))
			text = text[n:]
		}
	} else {
		c.terminal.Write(st.paneID, []byte(text))
	}
}

func (c *Controller) submitEnter(st *pipelineState) {
	switch st.cap.EnterMethod {
	case capability.EnterNone:
		return
	case capability.EnterTrusted, capability.EnterPTY:
		if c.terminal == nil {
			st.result = Result{Success: false, Reason: "pty_enter_failed"}
			st.done = true
			return
		}
		if err := c.terminal.SendEnter(st.paneID, st.cap.EnterMethod, st.cap.EnterDelayMs); err != nil {
			reason := "enter_failed"
			if st.cap.EnterMethod == capability.EnterPTY {
				reason = "pty_enter_failed"
			}
			st.result = Result{Success: false, Reason: reason}
			st.done = true
			return
		}
	}
	c.emit("inject.submit.sent", st.paneID, map[string]any{"traceContext": st.opts.TraceContext})
}

func (c *Controller) verify(st *pipelineState) {
	if !st.cap.VerifySubmitAccepted {
		st.result = Result{Success: true, Verified: false}
		return
	}
	if c.terminal != nil && c.terminal.AwaitAcceptance(st.paneID, SubmitAcceptMaxAttempts) {
		st.result = Result{Success: true, Verified: true}
		return
	}
	st.result = Result{Success: true, Verified: false, Reason: "submit_not_accepted"}
}

func (c *Controller) outcome(st *pipelineState) {
	c.emit("inject.applied", st.paneID, map[string]any{
		"success":  st.result.Success,
		"verified": st.result.Verified,
		"reason":   st.result.Reason,
	})
}
