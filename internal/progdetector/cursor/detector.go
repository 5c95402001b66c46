// Package cursor recognizes a pane running cursor-agent. It has no
// compaction-gate or focus concept in the capability resolver (it falls
// back to the generic profile there); this detector only lets diagnostics
// and out-of-band prompt delivery address it by name.
package cursor

import (
	"context"
	"os/exec"

	"panehub/internal/capability"
	"panehub/internal/progdetector"
)

const (
	executableName  = "cursor-agent"
	programID       = "cursor"
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
	if _, err := exec.LookPath(executableName); err != nil {
		return false, nil
	}
	return true, nil
}

func (Detector) MatchCurrentCommand(currentCommand string) bool {
	return progdetector.MatchProgramInCommand(currentCommand, executableName)
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
