package ptyio

import (
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// ptySession holds the live process state backing one pane.
type ptySession struct {
	mu            sync.Mutex
	cmd           *exec.Cmd
	ptmx          *os.File
	paused        bool
	exited        bool
	cols          int
	dataHandlers  map[int]DataHandler
	exitHandlers  map[int]ExitHandler
	nextHandlerID int
	identityOnce  bool
}

// PTYTransport implements Transport by spawning a real pseudo-terminal per
// pane via github.com/creack/pty, the same entrypoint the bubbled-up
// sandboxed runner uses.
type PTYTransport struct {
	shell string

	mu       sync.Mutex
	sessions map[string]*ptySession
}

func NewPTYTransport(shell string) *PTYTransport {
	if shell == "" {
		shell = defaultShell()
	}
	return &PTYTransport{shell: shell, sessions: map[string]*ptySession{}}
}

func defaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/bash"
}

func (t *PTYTransport) sessionFor(paneID string) (*ptySession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[paneID]
	return s, ok
}

func (t *PTYTransport) Create(paneID, cwd string) (Result, error) {
	cmd := exec.Command(t.shell)
	cmd.Env = os.Environ()
	if cwd != "" {
		cmd.Dir = cwd
	}
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 5 * time.Second

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: 80, Rows: 24})
	if err != nil {
		return Result{Success: false, Reason: err.Error()}, err
	}

	sess := &ptySession{
		cmd:          cmd,
		ptmx:         ptmx,
		cols:         80,
		dataHandlers: map[int]DataHandler{},
		exitHandlers: map[int]ExitHandler{},
	}
	t.mu.Lock()
	t.sessions[paneID] = sess
	t.mu.Unlock()

	go t.readLoop(paneID, sess)
	go t.waitLoop(paneID, sess)

	return Result{Success: true}, nil
}

func (t *PTYTransport) readLoop(paneID string, sess *ptySession) {
	buf := make([]byte, 4096)
	for {
		n, err := sess.ptmx.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			sess.mu.Lock()
			paused := sess.paused
			handlers := make([]DataHandler, 0, len(sess.dataHandlers))
			for _, h := range sess.dataHandlers {
				handlers = append(handlers, h)
			}
			sess.mu.Unlock()
			if !paused {
				for _, h := range handlers {
					h(paneID, data)
				}
			}
		}
		if err != nil {
			if err != io.EOF {
				return
			}
			return
		}
	}
}

func (t *PTYTransport) waitLoop(paneID string, sess *ptySession) {
	err := sess.cmd.Wait()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = 1
		}
	}
	sess.ptmx.Close()

	sess.mu.Lock()
	if sess.exited {
		sess.mu.Unlock()
		return
	}
	sess.exited = true
	handlers := make([]ExitHandler, 0, len(sess.exitHandlers))
	for _, h := range sess.exitHandlers {
		handlers = append(handlers, h)
	}
	sess.mu.Unlock()

	for _, h := range handlers {
		h(paneID, exitCode)
	}
}

func (t *PTYTransport) Write(paneID string, data []byte, meta WriteMeta) (Result, error) {
	sess, ok := t.sessionFor(paneID)
	if !ok {
		return Result{Success: false, Reason: "pane_gone"}, nil
	}
	if _, err := sess.ptmx.Write(data); err != nil {
		return Result{Success: false, Reason: err.Error()}, err
	}
	return Result{Success: true}, nil
}

func (t *PTYTransport) Pause(paneID string) {
	if sess, ok := t.sessionFor(paneID); ok {
		sess.mu.Lock()
		sess.paused = true
		sess.mu.Unlock()
	}
}

func (t *PTYTransport) Resume(paneID string) {
	if sess, ok := t.sessionFor(paneID); ok {
		sess.mu.Lock()
		sess.paused = false
		sess.mu.Unlock()
	}
}

func (t *PTYTransport) Resize(paneID string, cols, rows int) error {
	sess, ok := t.sessionFor(paneID)
	if !ok {
		return nil
	}
	sess.mu.Lock()
	sess.cols = cols
	sess.mu.Unlock()
	return pty.Setsize(sess.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// ColumnWidth reports the last-known terminal width for a pane, defaulting
// to the 80 columns a session is created with.
func (t *PTYTransport) ColumnWidth(paneID string) int {
	sess, ok := t.sessionFor(paneID)
	if !ok {
		return 80
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.cols
}

func (t *PTYTransport) Kill(paneID string) error {
	sess, ok := t.sessionFor(paneID)
	if !ok {
		return nil
	}
	if sess.cmd.Process == nil {
		return nil
	}
	return sess.cmd.Process.Signal(syscall.SIGTERM)
}

func (t *PTYTransport) OnData(paneID string, cb DataHandler) Disposer {
	sess, ok := t.sessionFor(paneID)
	if !ok {
		return func() {}
	}
	sess.mu.Lock()
	id := sess.nextHandlerID
	sess.nextHandlerID++
	sess.dataHandlers[id] = cb
	sess.mu.Unlock()
	return func() {
		sess.mu.Lock()
		delete(sess.dataHandlers, id)
		sess.mu.Unlock()
	}
}

func (t *PTYTransport) OnExit(paneID string, cb ExitHandler) Disposer {
	sess, ok := t.sessionFor(paneID)
	if !ok {
		return func() {}
	}
	sess.mu.Lock()
	id := sess.nextHandlerID
	sess.nextHandlerID++
	sess.exitHandlers[id] = cb
	sess.mu.Unlock()
	return func() {
		sess.mu.Lock()
		delete(sess.exitHandlers, id)
		sess.mu.Unlock()
	}
}

func (t *PTYTransport) SendTrustedEnter(paneID string) (Result, error) {
	return t.Write(paneID, []byte("\r"), WriteMeta{})
}

func (t *PTYTransport) IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// CodexExec has no dedicated out-of-band bridge over a raw PTY; it degrades
// to a normal write followed by a trusted enter.
func (t *PTYTransport) CodexExec(paneID, text string, meta WriteMeta) (Result, error) {
	if res, err := t.Write(paneID, []byte(text), meta); err != nil || !res.Success {
		return res, err
	}
	return t.SendTrustedEnter(paneID)
}
