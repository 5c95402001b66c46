// Package codex recognizes a pane running the codex CLI. codex panes are
// normally driven through the injection pipeline's codex-exec bridge
// rather than raw keystrokes; this detector exists so diagnostics and
// out-of-band prompt delivery can still identify and address one.
package codex

import (
	"context"
	"os/exec"

	"panehub/internal/capability"
	"panehub/internal/progdetector"
)

const (
	programID       = "codex"
	enterTimeoutMs  = 15000
	submitTimeoutMs = 1000
)

type Detector struct{}

func New() Detector {
	return Detector{}
}

func (Detector) ProgramID() string {
	return programID
}

func (Detector) IsAvailable(context.Context) (bool, error) {
	if _, err := exec.LookPath(programID); err != nil {
		return false, nil
	}
	return true, nil
}

func (Detector) MatchCurrentCommand(currentCommand string) bool {
	return progdetector.MatchProgramInCommand(currentCommand, programID)
}

func (d Detector) HasExitedMode(_ context.Context, state progdetector.RuntimeState) (bool, error) {
	return !d.MatchCurrentCommand(state.CurrentCommand), nil
}

func (Detector) BuildInputPromptSteps(prompt string) ([]progdetector.PromptStep, error) {
	return progdetector.StandardSubmitSteps(prompt, "\r", capability.GenericEnterDelay, enterTimeoutMs, submitTimeoutMs)
}

func init() {
	progdetector.ProgramDetectorRegistry.MustRegister(New())
}
