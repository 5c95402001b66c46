package progdetector

import (
	"errors"
	"strings"
	"time"
)

// StandardSubmitSteps builds the two-step raw-input sequence shared by
// every line-submit program: the prompt text itself, followed by the
// program's submit keystroke after submitDelay has let the program buffer
// the pasted text. Detectors differ only in submitInput (carriage return
// vs newline) and submitDelay (how long the target program needs before
// it treats a following keystroke as "submit" rather than more paste).
func StandardSubmitSteps(prompt, submitInput string, submitDelay time.Duration, enterTimeoutMs, submitTimeoutMs int) ([]PromptStep, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.New("prompt is required")
	}
	return []PromptStep{
		{Input: prompt, TimeoutMs: enterTimeoutMs},
		{Input: submitInput, Delay: submitDelay, TimeoutMs: submitTimeoutMs},
	}, nil
}
