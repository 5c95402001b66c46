// Package inject implements the injection controller (C6): a global
// stale-lock-aware mutex, per-pane idle queues, and the pipeline that
// turns a producer message into bytes written into a pane's terminal.
package inject

import (
	"log/slog"
	"sync"
	"time"

	"panehub/internal/capability"
)

const (
	InjectionLockTimeoutMs = 2000
	IdleThresholdMs        = 2000
	QueueRetryMs           = 250
	FocusRetryDelayMs      = 100
	TypingGuardMs          = 2000
	SubmitAcceptMaxAttempts = 5
	CompactionGraceMs      = 2000
)

// Result is delivered to a caller's onComplete exactly once per item.
type Result struct {
	Success  bool
	Verified bool
	Reason   string
}

// Terminal is the pane-facing surface the pipeline writes into; concrete
// implementations live behind internal/ptyio's Transport.
type Terminal interface {
	IsAlive(paneID string) bool
	Focus(paneID string) error
	Write(paneID string, data []byte) error
	ColumnWidth(paneID string) int
	SendEnter(paneID string, method capability.EnterMethod, delay time.Duration) error
	AwaitAcceptance(paneID string, maxAttempts int) bool
}

// CodexBridge invokes the codex-exec path (§4.6 step 4).
type CodexBridge interface {
	Invoke(paneID, message string) error
}

// CompactionGate reports a pane's current compaction state.
type CompactionGate interface {
	State(paneID string) string
}

// Emitter publishes bus events correlated to producer trace contexts.
type Emitter interface {
	Emit(eventType, paneID string, payload map[string]any)
}

// RuntimeHint resolves pane-identifying hints from the owning coordinator:
// the current-command string the capability resolver uses to tell apart
// claude/codex/gemini/generic panes, and the pane's configured role used
// in the codex-exec identity header. Nil falls back to
// capability.RuntimeGeneric and the literal role "agent" respectively.
type RuntimeHint interface {
	CurrentCommand(paneID string) string
	PaneRole(paneID string) string
}

// SendOptions parameterizes one SendToPane call.
type SendOptions struct {
	Priority       bool
	Immediate      bool
	OnComplete     func(Result)
	TraceContext   map[string]string
	HmSendFastEnter bool
}

type queuedItem struct {
	paneID  string
	message string
	opts    SendOptions
}

type paneIdleState struct {
	items          []queuedItem
	lastOutputTime time.Time
	lastTypedTime  time.Time
	processing     bool
	identityHeaderSent bool
	compactionWaitSince time.Time
}

// Controller is one per Coordinator, wiring capability resolution,
// terminal transport, the compaction gate, and the codex bridge together.
type Controller struct {
	mu sync.Mutex

	lockHeld     bool
	lockHolder   string
	lockAcquired time.Time

	panes map[string]*paneIdleState

	resolver *capability.Resolver
	overrides capability.Overrides
	terminal  Terminal
	codex     CodexBridge
	gate      CompactionGate
	emitter   Emitter
	hint      RuntimeHint

	nowFunc   func() time.Time
	afterFunc func(time.Duration, func())
	log       *slog.Logger
}

func New(resolver *capability.Resolver, terminal Terminal, codex CodexBridge, gate CompactionGate, emitter Emitter, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		panes:     map[string]*paneIdleState{},
		resolver:  resolver,
		terminal:  terminal,
		codex:     codex,
		gate:      gate,
		emitter:   emitter,
		nowFunc:   time.Now,
		afterFunc: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		log:       log,
	}
}

func (c *Controller) SetNowFunc(f func() time.Time)               { c.nowFunc = f }
func (c *Controller) SetAfterFunc(f func(time.Duration, func())) { c.afterFunc = f }
func (c *Controller) SetOverrides(o capability.Overrides)        { c.overrides = o }
func (c *Controller) SetRuntimeHint(h RuntimeHint)                { c.hint = h }

// NoteOutput records pane output activity, clearing idle-gating timers.
func (c *Controller) NoteOutput(paneID string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idleStateLocked(paneID).lastOutputTime = now
}

// NoteTyping records a user keypress, arming the typing guard.
func (c *Controller) NoteTyping(paneID string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idleStateLocked(paneID).lastTypedTime = now
}

func (c *Controller) idleStateLocked(paneID string) *paneIdleState {
	s := c.panes[paneID]
	if s == nil {
		s = &paneIdleState{}
		c.panes[paneID] = s
	}
	return s
}

// SendToPane enqueues message on paneID's idle queue and (re)triggers
// processing.
func (c *Controller) SendToPane(paneID, message string, opts SendOptions) {
	c.mu.Lock()
	st := c.idleStateLocked(paneID)
	item := queuedItem{paneID: paneID, message: message, opts: opts}
	if opts.Priority {
		st.items = append([]queuedItem{item}, st.items...)
	} else {
		st.items = append(st.items, item)
	}
	shouldStart := !st.processing
	if shouldStart {
		st.processing = true
	}
	c.mu.Unlock()

	if shouldStart {
		c.processIdleQueue(paneID)
	}
}

// Broadcast is sendToPane("1", message, {priority:true, immediate:true}).
func (c *Controller) Broadcast(message string) {
	c.SendToPane("1", message, SendOptions{Priority: true, Immediate: true})
}

func (c *Controller) complete(paneID string, item queuedItem, result Result) {
	if item.opts.OnComplete != nil {
		item.opts.OnComplete(result)
	}

	c.mu.Lock()
	st := c.idleStateLocked(paneID)
	hasMore := len(st.items) > 0
	if !hasMore {
		st.processing = false
	}
	c.mu.Unlock()

	if hasMore {
		c.processIdleQueue(paneID)
	}
}

// processIdleQueue pops the head item (if idle enough, or immediate) and
// runs it through the pipeline; otherwise reschedules.
func (c *Controller) processIdleQueue(paneID string) {
	c.mu.Lock()
	st := c.idleStateLocked(paneID)
	if len(st.items) == 0 {
		st.processing = false
		c.mu.Unlock()
		return
	}
	item := st.items[0]
	now := c.nowFunc()

	if !item.opts.Immediate && !c.isIdleEnoughLocked(st, now) {
		c.mu.Unlock()
		c.afterFunc(QueueRetryMs*time.Millisecond, func() { c.processIdleQueue(paneID) })
		return
	}
	st.items = st.items[1:]
	c.mu.Unlock()

	c.runPipeline(paneID, item)
}

func (c *Controller) isIdleEnoughLocked(st *paneIdleState, now time.Time) bool {
	if !st.lastOutputTime.IsZero() && now.Sub(st.lastOutputTime) < IdleThresholdMs*time.Millisecond {
		return false
	}
	if !st.lastTypedTime.IsZero() && now.Sub(st.lastTypedTime) < TypingGuardMs*time.Millisecond {
		return false
	}
	return true
}

// markCompactionWaitStart records the first moment paneID's submission was
// held for an active compaction gate, returning that moment unchanged on
// every subsequent call until clearCompactionWait resets it — the grace
// window in runPipeline is measured from this fixed start, not from "now".
func (c *Controller) markCompactionWaitStart(paneID string, now time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.idleStateLocked(paneID)
	if st.compactionWaitSince.IsZero() {
		st.compactionWaitSince = now
	}
	return st.compactionWaitSince
}

func (c *Controller) clearCompactionWait(paneID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idleStateLocked(paneID).compactionWaitSince = time.Time{}
}

func (c *Controller) emit(eventType, paneID string, payload map[string]any) {
	if c.emitter != nil {
		c.emitter.Emit(eventType, paneID, payload)
	}
}

// acquireGlobalLock is a single injectionInFlight flag: compare-and-set,
// with one stale-lock force-release retry if the current holder has held
// it past InjectionLockTimeoutMs.
func (c *Controller) acquireGlobalLock(paneID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lockHeld {
		c.lockHeld = true
		c.lockHolder = paneID
		c.lockAcquired = c.nowFunc()
		return true
	}

	if c.nowFunc().Sub(c.lockAcquired) >= InjectionLockTimeoutMs*time.Millisecond {
		c.log.Warn("inject.lock.stale_force_release", "previousHolder", c.lockHolder, "newHolder", paneID)
		c.lockHeld = true
		c.lockHolder = paneID
		c.lockAcquired = c.nowFunc()
		return true
	}

	return false
}

func (c *Controller) releaseGlobalLockIfHeld(st *pipelineState) {
	if !st.lockAcquired {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lockHolder == st.paneID {
		c.lockHeld = false
		c.lockHolder = ""
	}
}

// ReleasePaneLock force-releases the global lock if held by paneID, used by
// pane teardown.
func (c *Controller) ReleasePaneLock(paneID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lockHolder == paneID {
		c.lockHeld = false
		c.lockHolder = ""
	}
}

// TeardownPane cancels every queued item for paneID with pane_gone and
// releases the global lock if this pane held it.
func (c *Controller) TeardownPane(paneID string) {
	c.mu.Lock()
	st := c.panes[paneID]
	var pending []queuedItem
	if st != nil {
		pending = st.items
		st.items = nil
		st.processing = false
	}
	c.mu.Unlock()

	c.ReleasePaneLock(paneID)

	for _, item := range pending {
		if item.opts.OnComplete != nil {
			item.opts.OnComplete(Result{Success: false, Reason: "pane_gone"})
		}
	}
}
