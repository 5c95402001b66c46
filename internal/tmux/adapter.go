package tmux

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Adapter struct {
	exec       Exec
	tmuxSocket string
}

func NewAdapter(e Exec) *Adapter {
	return &Adapter{exec: e}
}

func NewAdapterWithSocket(e Exec, socket string) *Adapter {
	return &Adapter{exec: e, tmuxSocket: socket}
}

func (a *Adapter) SocketName() string {
	if a == nil {
		return ""
	}
	return strings.TrimSpace(a.tmuxSocket)
}

// ListSessions enumerates every live pane target across the tmux server;
// PaneExists is the only caller, since a direct server query is the one
// reliable way to know a target is still attached.
func (a *Adapter) ListSessions() ([]string, error) {
	out, err := a.exec.Output("tmux", a.withSocket("list-panes", "-a", "-F", "#{session_name}:#{window_index}.#{pane_index}")...)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(string(out))
	if text == "" {
		return []string{}, nil
	}
	return strings.Split(text, "\n"), nil
}

func (a *Adapter) PaneExists(target string) (bool, error) {
	needle := strings.TrimSpace(target)
	if needle == "" {
		return false, nil
	}
	panes, err := a.ListSessions()
	if err != nil {
		return false, err
	}
	for _, pane := range panes {
		if strings.TrimSpace(pane) == needle {
			return true, nil
		}
	}
	return false, nil
}

func (a *Adapter) SelectPane(target string) error {
	return a.exec.Run("tmux", a.withSocket("select-pane", "-t", target)...)
}

func (a *Adapter) SendInput(target, text string) error {
	return a.exec.Run("tmux", a.withSocket("send-keys", "-l", "-t", target, text)...)
}

func (a *Adapter) Resize(target string, cols, rows int) error {
	windowTarget := target
	if dot := strings.LastIndex(target, "."); dot > strings.LastIndex(target, ":") {
		windowTarget = target[:dot]
	}
	if err := a.exec.Run("tmux", a.withSocket("resize-window", "-t", windowTarget, "-x", strconv.Itoa(cols), "-y", strconv.Itoa(rows))...); err != nil {
		return err
	}
	if err := a.exec.Run("tmux", a.withSocket("resize-pane", "-t", target, "-x", strconv.Itoa(cols), "-y", strconv.Itoa(rows))...); err != nil {
		return err
	}

	// If the pane is still much shorter than requested rows, tmux layout is constraining it.
	// In this case, auto-zoom the selected pane so fullscreen apps (htop/top) get full height.
	paneHeight, zoomed, err := a.readPaneHeightAndZoomFlag(target)
	if err != nil {
		return nil
	}
	if !zoomed && paneHeight > 0 && paneHeight < rows-1 {
		if err := a.exec.Run("tmux", a.withSocket("resize-pane", "-Z", "-t", target)...); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) readPaneHeightAndZoomFlag(target string) (int, bool, error) {
	out, err := a.exec.Output("tmux", a.withSocket("display-message", "-p", "-t", target, "#{pane_height} #{window_zoomed_flag}")...)
	if err != nil {
		return 0, false, err
	}
	fields := strings.Fields(strings.TrimSpace(string(out)))
	if len(fields) < 2 {
		return 0, false, fmt.Errorf("unexpected tmux pane size output: %q", string(out))
	}
	height, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, false, err
	}
	return height, fields[1] == "1", nil
}

func (a *Adapter) CapturePane(target string) (string, error) {
	out, err := a.exec.Output("tmux", a.withSocket("capture-pane", "-p", "-e", "-N", "-t", target)...)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// SetPaneOption tags a tmux pane with a pane-scoped option. TmuxTransport
// uses it to stamp a freshly created pane with its caller-chosen logical
// pane ID (@panehub_id), so a target string minted by tmux itself can later
// be reconciled back to the ID the coordinator tracks it under.
func (a *Adapter) SetPaneOption(target, key, value string) error {
	return a.exec.Run("tmux", a.withSocket("set-option", "-p", "-t", target, key, value)...)
}

func (a *Adapter) KillPane(target string) error {
	return a.exec.Run("tmux", a.withSocket("kill-pane", "-t", target)...)
}

func (a *Adapter) SendEnter(target string) error {
	return a.exec.Run("tmux", a.withSocket("send-keys", "-t", target, "Enter")...)
}

func (a *Adapter) PaneWidth(target string) (int, error) {
	out, err := a.exec.Output("tmux", a.withSocket("display-message", "-p", "-t", target, "#{pane_width}")...)
	if err != nil {
		return 0, err
	}
	width, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, err
	}
	return width, nil
}

// CreateRootPaneInDir opens a brand-new tmux window (and its sole pane) in
// cwd, running a login shell that sources the caller's rc file so aliases
// and PATH additions are live before a runtime hint can match a command.
// It is the only pane-creation primitive the transport layer calls:
// panehub tracks one pane per logical session, never a split sibling or
// child, so the sibling/child variants a raw tmux adapter could offer have
// no caller here.
func (a *Adapter) CreateRootPaneInDir(cwd string) (string, error) {
	if strings.TrimSpace(cwd) == "" {
		return "", errors.New("pane cwd is required")
	}
	shellCmd, err := paneBootstrapShellCommand()
	if err != nil {
		return "", err
	}
	out, err := a.exec.Output("tmux", a.withSocket("new-window", "-c", cwd, "-P", "-F", "#{session_name}:#{window_index}.#{pane_index}", shellCmd)...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func paneBootstrapShellCommand() (string, error) {
	rcPath, err := ensurePaneBootstrapRCFile()
	if err != nil {
		return "", err
	}
	return "bash --rcfile " + shellSingleQuote(rcPath) + " -i", nil
}

func ensurePaneBootstrapRCFile() (string, error) {
	dir := filepath.Join(os.TempDir(), "panehub-bootstrap")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "bash-shell-ready.rc")
	if err := os.WriteFile(path, []byte(paneBootstrapRCContent), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func shellSingleQuote(input string) string {
	if input == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(input, "'", `'"'"'`) + "'"
}

const paneBootstrapRCContent = `
if [ -f "$HOME/.bashrc" ]; then
  . "$HOME/.bashrc"
fi

__panehub_ready_once() {
  tmux set-option -p -t "$TMUX_PANE" @panehub_ready 1 >/dev/null 2>&1 || true
  if [ -n "${PROMPT_COMMAND:-}" ]; then
    PROMPT_COMMAND="${PROMPT_COMMAND/__panehub_ready_once; /}"
    PROMPT_COMMAND="${PROMPT_COMMAND/__panehub_ready_once;/}"
    PROMPT_COMMAND="${PROMPT_COMMAND/__panehub_ready_once/}"
    PROMPT_COMMAND="${PROMPT_COMMAND#; }"
    PROMPT_COMMAND="${PROMPT_COMMAND#;}"
  fi
}

if [ -n "${PROMPT_COMMAND:-}" ]; then
  PROMPT_COMMAND="__panehub_ready_once; ${PROMPT_COMMAND}"
else
  PROMPT_COMMAND="__panehub_ready_once"
fi
`

func (a *Adapter) withSocket(args ...string) []string {
	if a.tmuxSocket == "" {
		return args
	}
	return append([]string{"-L", a.tmuxSocket}, args...)
}
