// Package gemini recognizes a pane running the gemini CLI. Unlike
// claude/codex, gemini does not accept a trusted-Enter keystroke reliably
// after pasted text, so its submit step is a plain newline delayed by
// capability.GeminiEnterDelay, matching the pty-Enter path the injection
// pipeline uses for gemini panes.
package gemini

import (
	"context"
	"os/exec"

	"panehub/internal/capability"
	"panehub/internal/progdetector"
)

const (
	programID       = "gemini"
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
	return progdetector.StandardSubmitSteps(prompt, "\n", capability.GeminiEnterDelay, enterTimeoutMs, submitTimeoutMs)
}

func init() {
	progdetector.ProgramDetectorRegistry.MustRegister(New())
}
