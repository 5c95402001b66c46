// Package capability implements the pane capability resolver (C4): maps a
// pane's runtime (claude/codex/gemini/generic) to an immutable injection
// capability record, merged with settings-sourced overrides.
package capability

import "time"

// EnterMethod is how the Enter keystroke is submitted for a pane.
type EnterMethod string

const (
	EnterTrusted EnterMethod = "trusted"
	EnterPTY     EnterMethod = "pty"
	EnterNone    EnterMethod = "none"
)

// SanitizeTransform names the input-sanitizing transform applied before
// write.
type SanitizeTransform string

const (
	SanitizeNone             SanitizeTransform = "none"
	SanitizeGemini           SanitizeTransform = "gemini-sanitize"
	SanitizeMultilineEscaped SanitizeTransform = "sanitize-multiline"
)

// Mode is the injection path for a pane.
type Mode string

const (
	ModePTY       Mode = "pty"
	ModeCodexExec Mode = "codex-exec"
)

// GeminiEnterDelay is the gemini profile's enterDelayMs, exported so
// callers outside this package can reuse the same timing constant.
const GeminiEnterDelay = 80 * time.Millisecond

// ClaudeEnterDelay and GenericEnterDelay are the claude and generic
// profiles' enterDelayMs, exported so program detectors building raw
// input-prompt step sequences for these runtimes reuse the same timing
// the injection pipeline itself applies.
const (
	ClaudeEnterDelay  = 50 * time.Millisecond
	GenericEnterDelay = 50 * time.Millisecond
)

// Record is the immutable per-resolution capability record (§3
// CapabilityRecord). It is a value type, not a pointer, so "immutable" is
// structural: every Resolve call returns a fresh Record.
type Record struct {
	Mode                       Mode
	BypassGlobalLock           bool
	ApplyCompactionGate        bool
	RequiresFocusForEnter      bool
	EnterMethod                EnterMethod
	EnterDelayMs               time.Duration
	SanitizeMultiline          bool
	ClearLineBeforeWrite       bool
	UseChunkedWrite            bool
	HomeResetBeforeWrite       bool
	VerifySubmitAccepted       bool
	DeferSubmitWhilePaneActive bool
	TypingGuardWhenBypassing   bool
	SanitizeTransform          SanitizeTransform
	SubmitMethod                string
	EnterFailureReason         string
}

// Runtime identifies one of the built-in profiles or "unknown".
type Runtime string

const (
	RuntimeClaude  Runtime = "claude"
	RuntimeCodex   Runtime = "codex"
	RuntimeGemini  Runtime = "gemini"
	RuntimeGeneric Runtime = "generic"
	RuntimeUnknown Runtime = "unknown"
)

var builtinProfiles = map[Runtime]Record{
	RuntimeClaude: {
		Mode:                       ModePTY,
		BypassGlobalLock:           false,
		ApplyCompactionGate:        true,
		RequiresFocusForEnter:      true,
		EnterMethod:                EnterTrusted,
		EnterDelayMs:               ClaudeEnterDelay,
		ClearLineBeforeWrite:       true,
		UseChunkedWrite:            true,
		HomeResetBeforeWrite:       true,
		VerifySubmitAccepted:       true,
		DeferSubmitWhilePaneActive: true,
		SanitizeTransform:          SanitizeNone,
	},
	RuntimeCodex: {
		Mode:                       ModeCodexExec,
		BypassGlobalLock:           true,
		ApplyCompactionGate:        false,
		RequiresFocusForEnter:      false,
		EnterMethod:                EnterNone,
		EnterDelayMs:               0,
		ClearLineBeforeWrite:       false,
		UseChunkedWrite:            false,
		HomeResetBeforeWrite:       false,
		VerifySubmitAccepted:       false,
		DeferSubmitWhilePaneActive: false,
		SanitizeTransform:          SanitizeNone,
	},
	RuntimeGemini: {
		Mode:                       ModePTY,
		BypassGlobalLock:           true,
		ApplyCompactionGate:        false,
		RequiresFocusForEnter:      false,
		EnterMethod:                EnterPTY,
		EnterDelayMs:               GeminiEnterDelay,
		ClearLineBeforeWrite:       true,
		UseChunkedWrite:            false,
		HomeResetBeforeWrite:       false,
		VerifySubmitAccepted:       false,
		DeferSubmitWhilePaneActive: false,
		SanitizeTransform:          SanitizeGemini,
	},
	RuntimeGeneric: {
		Mode:                       ModePTY,
		BypassGlobalLock:           true,
		ApplyCompactionGate:        false,
		RequiresFocusForEnter:      false,
		EnterMethod:                EnterPTY,
		EnterDelayMs:               GenericEnterDelay,
		ClearLineBeforeWrite:       true,
		UseChunkedWrite:            true,
		HomeResetBeforeWrite:       true,
		VerifySubmitAccepted:       true,
		DeferSubmitWhilePaneActive: true,
		SanitizeTransform:          SanitizeMultilineEscaped,
	},
}

func builtinRecord(rt Runtime) Record {
	if rec, ok := builtinProfiles[rt]; ok {
		return rec
	}
	return builtinProfiles[RuntimeGeneric]
}
