package ptyio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"panehub/internal/streamdiff"
	"panehub/internal/tmux"
)

// tmuxPollInterval matches the capture cadence the upstream tmux bridge uses
// for its stream pump.
const tmuxPollInterval = 200 * time.Millisecond

// TmuxAdapter is the subset of *tmux.Adapter the tmux-backed Transport
// depends on, kept narrow so fakes are cheap to write in tests.
type TmuxAdapter interface {
	PaneExists(target string) (bool, error)
	SelectPane(target string) error
	SendInput(target, text string) error
	SendEnter(target string) error
	Resize(target string, cols, rows int) error
	KillPane(target string) error
	CapturePane(target string) (string, error)
	PaneWidth(target string) (int, error)
	CreateRootPaneInDir(cwd string) (string, error)
	SetPaneOption(target, key, value string) error
}

var _ TmuxAdapter = (*tmux.Adapter)(nil)

const panehubIDOption = "@panehub_id"

type tmuxPaneState struct {
	mu            sync.Mutex
	target        string
	paused        bool
	lastSnapshot  string
	dataHandlers  map[int]DataHandler
	exitHandlers  map[int]ExitHandler
	nextHandlerID int
	exited        bool
	stop          chan struct{}
}

// TmuxTransport implements Transport by driving tmux panes through a
// TmuxAdapter, polling capture-pane output on a fixed interval since tmux has
// no native push-based output stream.
type TmuxTransport struct {
	adapter TmuxAdapter
	log     *slog.Logger

	mu    sync.Mutex
	panes map[string]*tmuxPaneState
}

func NewTmuxTransport(adapter TmuxAdapter) *TmuxTransport {
	return &TmuxTransport{adapter: adapter, panes: map[string]*tmuxPaneState{}, log: slog.New(slog.DiscardHandler)}
}

// SetLogger wires a logger for poll-loop diagnostics; nil is ignored.
func (t *TmuxTransport) SetLogger(log *slog.Logger) {
	if log != nil {
		t.log = log
	}
}

func (t *TmuxTransport) stateFor(paneID string) *tmuxPaneState {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.panes[paneID]
	if !ok {
		st = &tmuxPaneState{
			target:       paneID,
			dataHandlers: map[int]DataHandler{},
			exitHandlers: map[int]ExitHandler{},
			stop:         make(chan struct{}),
		}
		t.panes[paneID] = st
	}
	return st
}

// targetFor returns the real tmux target a logical paneID currently maps
// to. For a pane reattached against an operator-provisioned target they are
// the same string; for a pane this transport created itself, target is the
// session:window.pane tmux minted, tagged back to paneID via @panehub_id.
func (t *TmuxTransport) targetFor(paneID string) string {
	st := t.stateFor(paneID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.target
}

// Create verifies paneID is already a live tmux target and, if not, spawns
// a brand-new tmux window in cwd to back it. A freshly spawned window gets
// a tmux-assigned target distinct from the caller's logical paneID, so it
// is tagged with @panehub_id and the mapping is kept in the pane's state
// for every later adapter call.
func (t *TmuxTransport) Create(paneID, cwd string) (Result, error) {
	exists, err := t.adapter.PaneExists(paneID)
	if err != nil {
		return Result{}, err
	}
	target := paneID
	if !exists {
		created, err := t.adapter.CreateRootPaneInDir(cwd)
		if err != nil {
			return Result{Success: false, Reason: "pane_create_failed"}, err
		}
		if err := t.adapter.SetPaneOption(created, panehubIDOption, paneID); err != nil {
			return Result{Success: false, Reason: "pane_tag_failed"}, err
		}
		target = created
	}
	st := t.stateFor(paneID)
	st.mu.Lock()
	st.target = target
	st.mu.Unlock()
	go t.pollLoop(paneID, st)
	return Result{Success: true}, nil
}

func (t *TmuxTransport) pollLoop(paneID string, st *tmuxPaneState) {
	ticker := time.NewTicker(tmuxPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-st.stop:
			return
		case <-ticker.C:
			t.pollOnce(paneID, st)
		}
	}
}

func (t *TmuxTransport) pollOnce(paneID string, st *tmuxPaneState) {
	st.mu.Lock()
	paused := st.paused
	st.mu.Unlock()
	if paused {
		return
	}

	st.mu.Lock()
	target := st.target
	st.mu.Unlock()

	exists, err := t.adapter.PaneExists(target)
	if err != nil {
		return
	}
	if !exists {
		t.fireExit(paneID, st, 0)
		return
	}

	snapshot, err := t.adapter.CapturePane(target)
	if err != nil {
		return
	}

	st.mu.Lock()
	prev := st.lastSnapshot
	changed := snapshot != prev
	st.lastSnapshot = snapshot
	handlers := make([]DataHandler, 0, len(st.dataHandlers))
	for _, h := range st.dataHandlers {
		handlers = append(handlers, h)
	}
	st.mu.Unlock()

	if len(handlers) == 0 {
		return
	}
	delta := streamdiff.DecideDelta(prev, snapshot, changed)
	if delta.Reason == "ansi_repaint" {
		t.log.Debug("ptyio.pane.repaint", "paneID", paneID, "target", target)
	}
	if delta.Data == "" {
		return
	}
	for _, h := range handlers {
		h(paneID, []byte(delta.Data))
	}
}

func (t *TmuxTransport) fireExit(paneID string, st *tmuxPaneState, exitCode int) {
	st.mu.Lock()
	if st.exited {
		st.mu.Unlock()
		return
	}
	st.exited = true
	handlers := make([]ExitHandler, 0, len(st.exitHandlers))
	for _, h := range st.exitHandlers {
		handlers = append(handlers, h)
	}
	close(st.stop)
	st.mu.Unlock()
	for _, h := range handlers {
		h(paneID, exitCode)
	}
}

func (t *TmuxTransport) Write(paneID string, data []byte, meta WriteMeta) (Result, error) {
	if err := t.adapter.SendInput(t.targetFor(paneID), string(data)); err != nil {
		return Result{Success: false, Reason: err.Error()}, err
	}
	return Result{Success: true}, nil
}

func (t *TmuxTransport) Pause(paneID string) {
	st := t.stateFor(paneID)
	st.mu.Lock()
	st.paused = true
	st.mu.Unlock()
}

func (t *TmuxTransport) Resume(paneID string) {
	st := t.stateFor(paneID)
	st.mu.Lock()
	st.paused = false
	st.mu.Unlock()
}

func (t *TmuxTransport) Resize(paneID string, cols, rows int) error {
	return t.adapter.Resize(t.targetFor(paneID), cols, rows)
}

// Focus selects paneID so it is the one a human operator sees.
func (t *TmuxTransport) Focus(paneID string) error {
	return t.adapter.SelectPane(t.targetFor(paneID))
}

// ColumnWidth reports tmux's current pane width, falling back to 80 when the
// query fails (a detached or already-gone pane).
func (t *TmuxTransport) ColumnWidth(paneID string) int {
	width, err := t.adapter.PaneWidth(t.targetFor(paneID))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

func (t *TmuxTransport) Kill(paneID string) error {
	err := t.adapter.KillPane(t.targetFor(paneID))
	st := t.stateFor(paneID)
	t.fireExit(paneID, st, 0)
	return err
}

func (t *TmuxTransport) OnData(paneID string, cb DataHandler) Disposer {
	st := t.stateFor(paneID)
	st.mu.Lock()
	id := st.nextHandlerID
	st.nextHandlerID++
	st.dataHandlers[id] = cb
	st.mu.Unlock()
	return func() {
		st.mu.Lock()
		delete(st.dataHandlers, id)
		st.mu.Unlock()
	}
}

func (t *TmuxTransport) OnExit(paneID string, cb ExitHandler) Disposer {
	st := t.stateFor(paneID)
	st.mu.Lock()
	id := st.nextHandlerID
	st.nextHandlerID++
	st.exitHandlers[id] = cb
	st.mu.Unlock()
	return func() {
		st.mu.Lock()
		delete(st.exitHandlers, id)
		st.mu.Unlock()
	}
}

func (t *TmuxTransport) SendTrustedEnter(paneID string) (Result, error) {
	if err := t.adapter.SendEnter(t.targetFor(paneID)); err != nil {
		return Result{Success: false, Reason: err.Error()}, err
	}
	return Result{Success: true}, nil
}

// IsProcessRunning is meaningless for a tmux-backed pane identified by
// target string rather than PID; the tmux transport always reports true so
// callers fall back to PaneExists-driven liveness instead.
func (t *TmuxTransport) IsProcessRunning(pid int) bool {
	return true
}

func (t *TmuxTransport) CodexExec(paneID, text string, meta WriteMeta) (Result, error) {
	return Result{Success: false, Reason: "codex_exec_unsupported_on_tmux_transport"}, fmt.Errorf("tmux transport has no codex exec bridge")
}
