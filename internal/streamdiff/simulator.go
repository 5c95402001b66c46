package streamdiff

import "fmt"

// Scenario names a fixture sequence of pane snapshots used to exercise
// DecideDelta against the repaint patterns real runtimes actually produce.
type Scenario string

const (
	// ScenarioFullscreenRedraw mimics a claude-style pane repainting its
	// full-screen status box on every turn: same line count, changed
	// content, no cursor-only no-op frames between them.
	ScenarioFullscreenRedraw Scenario = "fullscreen_redraw"

	// ScenarioSpinnerTick mimics a codex-exec pane that appends one more
	// progress dot to its status line each poll, so every frame after the
	// first is a pure prefix-append delta, never a repaint.
	ScenarioSpinnerTick Scenario = "spinner_tick"
)

// Frame is one pane snapshot in a Scenario, keyed by the tmux target it
// was captured from.
type Frame struct {
	Target string
	Text   string
}

func BuildScenario(s Scenario) []Frame {
	switch s {
	case ScenarioFullscreenRedraw:
		steps := []string{"reading repo", "editing file", "running tests", "tests passed", "summarizing"}
		frames := make([]Frame, 0, len(steps)+1)
		for i, label := range steps {
			frames = append(frames, Frame{
				Target: "panehub:agent.0",
				Text:   fmt.Sprintf("claude . working\nTurn %d: %-16s\n", i+1, label),
			})
		}
		// Final frame flips only the status word, same line count and
		// width as the rest: a fullscreen repaint, not a prefix append.
		frames = append(frames, Frame{
			Target: "panehub:agent.0",
			Text:   fmt.Sprintf("claude . idle   \nTurn %d: %-16s\n", len(steps), steps[len(steps)-1]),
		})
		return frames
	case ScenarioSpinnerTick:
		frames := make([]Frame, 0, 4)
		base := "codex-exec running"
		for i := 1; i <= 4; i++ {
			frames = append(frames, Frame{Target: "panehub:agent.1", Text: base + repeatDot(i)})
		}
		return frames
	default:
		return nil
	}
}

func repeatDot(n int) string {
	dots := make([]byte, n)
	for i := range dots {
		dots[i] = '.'
	}
	return string(dots)
}
