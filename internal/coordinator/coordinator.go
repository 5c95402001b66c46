package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"panehub/internal/bus"
	"panehub/internal/capability"
	"panehub/internal/compaction"
	"panehub/internal/inject"
	"panehub/internal/journal"
	"panehub/internal/paneregistry"
	"panehub/internal/ptyio"
	"panehub/internal/recovery"
	"panehub/internal/termwriter"
	"panehub/internal/throttle"
)

// acceptanceWindow bounds how long AwaitAcceptance waits for output
// evidence before giving up; verification stays best-effort and does not
// retry on a submit-verify timeout.
const acceptanceWindow = 2 * time.Second

// Coordinator owns the pane map and every per-process component (bus,
// termwriter, compaction, capability, throttle, inject, recovery) wired
// around one ptyio.Transport. It is a plain value, constructor-injected
// into cmd/panehubd rather than reached through package-level globals.
type Coordinator struct {
	mu    sync.Mutex
	panes map[string]*paneState

	transport ptyio.Transport
	registry  *paneregistry.Store
	journal   *journal.Store

	bus        *bus.Bus
	writer     *termwriter.Writer
	compaction *compaction.Registry
	resolver   *capability.Resolver
	overrides  capability.Overrides
	inject     *inject.Controller
	recovery   *recovery.Controller
	throttle   *throttle.Queue

	autoSpawn      bool
	autonomyOK     bool
	sdkMode        bool
	paneCommands   map[string]string
	paneCWDs       map[string]string

	nowFunc func() time.Time
	log     *slog.Logger
}

// paneState is the Coordinator's internal bookkeeping for one pane,
// distinct from the Pane value handed back to callers.
type paneState struct {
	pane        Pane
	status      statusState
	dispose     []ptyio.Disposer
	lastInputAt time.Time
	stop        chan struct{}
}

// New wires every per-process component together. overrides/autoSpawn/
// autonomyOK are expected to come from a loaded settings.Settings.
func New(transport ptyio.Transport, registry *paneregistry.Store, journalStore *journal.Store, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	c := &Coordinator{
		panes:        map[string]*paneState{},
		transport:    transport,
		registry:     registry,
		journal:      journalStore,
		bus:          bus.New(2000),
		compaction:   compaction.NewRegistry(),
		resolver:     capability.NewResolver(),
		autoSpawn:    true,
		paneCommands: map[string]string{},
		paneCWDs:     map[string]string{},
		nowFunc:      time.Now,
		log:          log,
	}
	c.writer = termwriter.New(&rendererAdapter{c: c}, transport, log)
	c.inject = inject.New(c.resolver, c, c, c, c, log)
	c.inject.SetRuntimeHint(c)
	c.recovery = recovery.New(c, c, journalStore, log)
	c.throttle = throttle.New(c, c.recovery, c, log)
	return c
}

func (c *Coordinator) SetNowFunc(f func() time.Time) {
	c.nowFunc = f
	c.inject.SetNowFunc(f)
	c.recovery.SetNowFunc(f)
	c.throttle.SetNowFunc(f)
}

func (c *Coordinator) SetOverrides(o capability.Overrides) {
	c.mu.Lock()
	c.overrides = o
	c.mu.Unlock()
	c.inject.SetOverrides(o)
}

func (c *Coordinator) SetAutoSpawn(enabled bool)    { c.mu.Lock(); c.autoSpawn = enabled; c.mu.Unlock() }
func (c *Coordinator) SetAutonomyConsent(ok bool)   { c.mu.Lock(); c.autonomyOK = ok; c.mu.Unlock() }
func (c *Coordinator) SetPaneCommand(paneID, cmd string) {
	c.mu.Lock()
	c.paneCommands[paneID] = cmd
	c.mu.Unlock()
}

// SetSDKMode toggles the process-wide SDK pairing mode; while active,
// injection is a no-op (missing_injection_controller) rather than writing
// into a pane a paired SDK session owns.
func (c *Coordinator) SetSDKMode(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sdkMode = enabled
	for _, st := range c.panes {
		st.pane.SDKMode = enabled
	}
}

// Spawn creates a new pane for role/cwd, suppressing the spawn entirely
// when autospawn is disabled or autonomy consent has not been granted.
func (c *Coordinator) Spawn(paneID, role, cwd string) (Pane, error) {
	c.mu.Lock()
	if !c.autoSpawn || !c.autonomyOK {
		c.mu.Unlock()
		return Pane{}, fmt.Errorf("coordinator: spawn suppressed (autoSpawn=%v autonomyOK=%v)", c.autoSpawn, c.autonomyOK)
	}
	if c.sdkMode {
		c.mu.Unlock()
		return Pane{}, fmt.Errorf("coordinator: spawn blocked while SDK pairing mode is active")
	}
	if _, exists := c.panes[paneID]; exists {
		c.mu.Unlock()
		return Pane{}, fmt.Errorf("coordinator: pane %s already exists", paneID)
	}
	cmd := c.paneCommands[paneID]
	c.paneCWDs[paneID] = cwd
	c.mu.Unlock()

	res, err := c.transport.Create(paneID, cwd)
	if err != nil {
		return Pane{}, err
	}
	if !res.Success {
		return Pane{}, fmt.Errorf("coordinator: create failed: %s", res.Reason)
	}

	pane := Pane{
		ID:             paneID,
		Role:           role,
		CWD:            cwd,
		RuntimeCommand: cmd,
		Status:         StatusUnknown,
		SDKMode:        c.sdkMode,
	}
	c.attachPane(pane)
	c.persist(pane)
	c.bus.Emit("pane.spawned", bus.EmitInput{PaneID: paneID, Payload: map[string]any{"role": role, "cwd": cwd}})
	return pane, nil
}

// Reattach restores a pane the Coordinator already knows about from a
// prior process lifetime, trimming restored scrollback to the renderer's
// cap and reclassifying whether it still hosts a live CLI.
func (c *Coordinator) Reattach(paneID string) (Pane, bool, error) {
	snap, ok, err := c.registry.Get(paneID)
	if err != nil {
		return Pane{}, false, err
	}
	if !ok {
		return Pane{}, false, nil
	}

	c.mu.Lock()
	cwd := c.paneCWDs[snap.PaneID]
	c.mu.Unlock()

	// Create is idempotent for a still-live tmux pane (it only verifies
	// and restarts the poll loop); for a raw-PTY transport the original
	// child died with the previous process, so this always recreates a
	// fresh shell in its place rather than truly reattaching.
	res, createErr := c.transport.Create(snap.PaneID, cwd)
	exists := createErr == nil && res.Success

	pane := Pane{
		ID:             snap.PaneID,
		Role:           snap.Role,
		CWD:            cwd,
		RuntimeCommand: c.paneCommands[snap.PaneID],
		Status:         Status(snap.Status),
		ScrollbackTail: trimScrollback(snap.ScrollbackTail),
		LastActivity:   snap.LastActivity,
	}

	if !classifyPane(exists, snap.LastActivity, c.nowFunc(), snap.ScrollbackTail) {
		return pane, false, nil
	}

	c.attachPane(pane)
	return pane, true, nil
}

func (c *Coordinator) attachPane(pane Pane) {
	st := &paneState{pane: pane, stop: make(chan struct{})}
	c.mu.Lock()
	c.panes[pane.ID] = st
	c.mu.Unlock()

	disposeData := c.transport.OnData(pane.ID, c.onData)
	disposeExit := c.transport.OnExit(pane.ID, c.onExit)
	st.dispose = append(st.dispose, disposeData, disposeExit)
	go c.statusTickLoop(pane.ID, st)
}

// statusTickLoop samples a pane's scrollback hash on a fixed cadence
// independent of data arrival, the only way advancePaneStatus's
// equal-hash-means-idle path can ever observe a pane go quiet.
func (c *Coordinator) statusTickLoop(paneID string, st *paneState) {
	ticker := time.NewTicker(statusTransitionDelay / 2)
	defer ticker.Stop()
	for {
		select {
		case <-st.stop:
			return
		case <-ticker.C:
			c.tickStatus(paneID)
		}
	}
}

func (c *Coordinator) tickStatus(paneID string) {
	now := c.nowFunc()
	c.mu.Lock()
	st, ok := c.panes[paneID]
	var changed bool
	var newStatus Status
	if ok {
		prevEmitted := st.status.emitted
		st.status = advancePaneStatus(st.status, scrollbackHash(st.pane.ScrollbackTail), now, st.lastInputAt)
		st.pane.Status = normalizeStatus(st.status.emitted)
		changed = st.status.emitted != prevEmitted
		newStatus = st.pane.Status
	}
	c.mu.Unlock()
	if ok && changed {
		c.bus.Emit("pane.status", bus.EmitInput{PaneID: paneID, Payload: map[string]any{"status": string(newStatus)}})
		c.persist(st.pane)
	}
}

func (c *Coordinator) onData(paneID string, data []byte) {
	now := c.nowFunc()
	c.mu.Lock()
	st, ok := c.panes[paneID]
	if ok {
		st.pane.LastActivity = now
		st.pane.ScrollbackTail = trimScrollback(st.pane.ScrollbackTail + string(data))
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	c.writer.Write(paneID, data)
	if tr := c.compaction.Get(paneID).Step(string(data), now); tr != nil {
		for _, evt := range tr.Events {
			c.bus.Emit(evt, bus.EmitInput{PaneID: paneID, Payload: map[string]any{"from": tr.From, "to": tr.To, "reason": tr.Reason}})
		}
	}
	c.mu.Lock()
	snapshot := st.pane
	c.mu.Unlock()
	c.persist(snapshot)
}

func (c *Coordinator) onExit(paneID string, exitCode int) {
	c.bus.Emit("pane.exited", bus.EmitInput{PaneID: paneID, Payload: map[string]any{"exitCode": exitCode}})
}

func (c *Coordinator) persist(pane Pane) {
	if c.registry == nil {
		return
	}
	_ = c.registry.Save(paneregistry.Snapshot{
		PaneID:         pane.ID,
		Role:           pane.Role,
		RuntimeKind:    pane.RuntimeCommand,
		Status:         string(pane.Status),
		ScrollbackTail: pane.ScrollbackTail,
		LastActivity:   pane.LastActivity,
	})
}

// scrollbackHash is a cheap, stable fingerprint of the tail content status
// debouncing keys off of; identity (not cryptographic strength) is all
// that matters here.
func scrollbackHash(s string) string {
	if len(s) > 256 {
		s = s[len(s)-256:]
	}
	return s
}

// Teardown kills a pane's transport session and forgets it.
func (c *Coordinator) Teardown(paneID string) error {
	c.mu.Lock()
	st, ok := c.panes[paneID]
	delete(c.panes, paneID)
	c.mu.Unlock()
	if ok {
		close(st.stop)
		for _, d := range st.dispose {
			d()
		}
	}
	c.compaction.Clear(paneID)
	if c.registry != nil {
		_ = c.registry.Delete(paneID)
	}
	return c.transport.Kill(paneID)
}

// KillAll tears down every known pane.
func (c *Coordinator) KillAll() error {
	c.mu.Lock()
	ids := make([]string, 0, len(c.panes))
	for id := range c.panes {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	var firstErr error
	for _, id := range ids {
		if err := c.Teardown(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// FreshStartAll kills every pane and respawns it from its last known
// role/cwd, satisfying recovery.FreshStarter for escalation level 5+.
func (c *Coordinator) FreshStartAll(ctx context.Context) error {
	c.mu.Lock()
	snapshot := make([]Pane, 0, len(c.panes))
	for _, st := range c.panes {
		snapshot = append(snapshot, st.pane)
	}
	c.mu.Unlock()

	for _, pane := range snapshot {
		if err := c.Teardown(pane.ID); err != nil {
			c.log.Warn("fresh start teardown failed", "pane", pane.ID, "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, err := c.Spawn(pane.ID, pane.Role, pane.CWD); err != nil {
			c.log.Warn("fresh start respawn failed", "pane", pane.ID, "err", err)
		}
	}
	return nil
}

// HandleResize forwards a resize to the transport.
func (c *Coordinator) HandleResize(paneID string, cols, rows int) error {
	return c.transport.Resize(paneID, cols, rows)
}

// FocusPane brings paneID to the front; meaningful only for transports
// that track a concept of focus (tmux's select-pane).
func (c *Coordinator) FocusPane(paneID string) error {
	return c.Focus(paneID)
}

// Enqueue routes a producer message through the throttle queue, the public
// entrypoint for everything upstream of injection.
func (c *Coordinator) Enqueue(paneID, message, deliveryID string, traceContext map[string]string) {
	c.throttle.Enqueue(paneID, message, deliveryID, traceContext)
}

// Bus exposes the Coordinator's event bus so an outer HTTP/websocket layer
// can subscribe without the Coordinator depending on that layer.
func (c *Coordinator) Bus() *bus.Bus { return c.bus }

// Panes returns a snapshot of every pane currently tracked in memory.
func (c *Coordinator) Panes() []Pane {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Pane, 0, len(c.panes))
	for _, st := range c.panes {
		out = append(out, st.pane)
	}
	return out
}

// Pane returns the single pane identified by paneID, if tracked.
func (c *Coordinator) Pane(paneID string) (Pane, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.panes[paneID]
	if !ok {
		return Pane{}, false
	}
	return st.pane, true
}
