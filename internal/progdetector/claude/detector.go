// Package claude recognizes a pane running the claude CLI and builds the
// raw input-prompt steps for delivering a prompt into it outside the
// normal inject pipeline (e.g. scripted onboarding, recovery nudges).
package claude

import (
	"context"
	"os/exec"

	"panehub/internal/capability"
	"panehub/internal/progdetector"
)

const (
	programID       = "claude"
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

// BuildInputPromptSteps submits with a carriage return after
// capability.ClaudeEnterDelay, the same settle delay the trusted-Enter
// injection path gives a claude pane before it sends Enter.
func (Detector) BuildInputPromptSteps(prompt string) ([]progdetector.PromptStep, error) {
	return progdetector.StandardSubmitSteps(prompt, "\r", capability.ClaudeEnterDelay, enterTimeoutMs, submitTimeoutMs)
}

func init() {
	progdetector.ProgramDetectorRegistry.MustRegister(New())
}
