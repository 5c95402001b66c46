// Package ptyio implements the PTY transport capability surface: one
// real-PTY-backed implementation (github.com/creack/pty) and one
// tmux-backed implementation adapting internal/tmux.Adapter, behind a
// shared Transport interface the Coordinator depends on.
package ptyio

import "time"

// WriteMeta carries the kernel-style envelope that must be propagated
// end-to-end across every hop.
type WriteMeta struct {
	TraceID       string
	CorrelationID string
	DeliveryID    string
}

// Result is the shared outcome shape for transport operations.
type Result struct {
	Success bool
	Reason  string
}

// DataHandler receives raw output bytes for a pane.
type DataHandler func(paneID string, data []byte)

// ExitHandler fires when a pane's underlying process exits.
type ExitHandler func(paneID string, exitCode int)

// Disposer cancels a previously registered handler.
type Disposer func()

// Transport is the capability surface any PTY bridge implementation must
// provide: pane lifecycle, raw writes, flow control, and resize, regardless
// of whether the underlying pane is a tmux target or a direct PTY.
type Transport interface {
	Create(paneID, cwd string) (Result, error)
	Write(paneID string, data []byte, meta WriteMeta) (Result, error)
	Pause(paneID string)
	Resume(paneID string)
	Resize(paneID string, cols, rows int) error
	Kill(paneID string) error
	OnData(paneID string, cb DataHandler) Disposer
	OnExit(paneID string, cb ExitHandler) Disposer
	SendTrustedEnter(paneID string) (Result, error)
	IsProcessRunning(pid int) bool
	CodexExec(paneID, text string, meta WriteMeta) (Result, error)
}

// exitIgnoreWindow is the length of the exit-ignore window for a
// restartPane recovery step. No code in this package reads it, so exits
// during a restart are not suppressed.
const exitIgnoreWindow = 15 * time.Second
