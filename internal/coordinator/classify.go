package coordinator

import (
	"regexp"
	"strings"
	"time"
)

// CLIRecentActivityMs is the activity recency window within which a pane is
// still considered to host a live CLI even if the process can't be probed.
const CLIRecentActivityMs = 60000

// scrollbackCap is the renderer's scrollback cap in lines; Reattach trims
// restored scrollback down to this many trailing lines.
const scrollbackCap = 2000

// cliPromptTailPattern matches the terminal prompt patterns a CLI agent is
// expected to leave idle at, distinct from compaction's PROMPT_READY
// patterns — the two are allowed to diverge until a runtime-specific
// unification is justified.
var cliPromptTailPattern = regexp.MustCompile(`(?m)(\?\s*for\s*shortcuts|Human:\s*$|>\s*$)`)

const classifyTailMaxChars = 2000

// classifyPane decides whether an existing pane already hosts a CLI agent,
// combining three independent boolean signals by OR rather than cascading
// mutation: PTY liveness, recent activity, and a prompt-pattern match on the
// stripped scrollback tail. A shell-only prompt (no match) counts as empty.
func classifyPane(processAlive bool, lastActivity, now time.Time, scrollback string) bool {
	if processAlive {
		return true
	}
	if !lastActivity.IsZero() && now.Sub(lastActivity) < CLIRecentActivityMs*time.Millisecond {
		return true
	}
	tail := tailString(strings.TrimRight(scrollback, " \t\r\n"), classifyTailMaxChars)
	return cliPromptTailPattern.MatchString(tail)
}

func tailString(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	return s[len(s)-maxChars:]
}

// trimScrollback keeps only the tail of restored scrollback after the
// scrollbackCap-th newline from the end, so a Reattach never hands the
// renderer more than it is willing to hold.
func trimScrollback(scrollback string) string {
	return trimToTailLines(scrollback, scrollbackCap)
}

func trimToTailLines(s string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	newlines := 0
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != '\n' {
			continue
		}
		newlines++
		if newlines == maxLines {
			return s[i+1:]
		}
	}
	return s
}
