package capability

import (
	"testing"
	"time"
)

func TestBuiltinRecord_ClaudeProfile(t *testing.T) {
	rec := builtinRecord(RuntimeClaude)
	if rec.Mode != ModePTY {
		t.Fatalf("claude mode = %s, want pty", rec.Mode)
	}
	if rec.BypassGlobalLock {
		t.Fatal("claude must not bypass the global injection lock")
	}
	if !rec.ApplyCompactionGate {
		t.Fatal("claude must apply the compaction gate")
	}
	if !rec.RequiresFocusForEnter {
		t.Fatal("claude requires focus for enter")
	}
	if rec.EnterMethod != EnterTrusted {
		t.Fatalf("claude enter method = %s, want trusted", rec.EnterMethod)
	}
}

func TestBuiltinRecord_CodexProfile(t *testing.T) {
	rec := builtinRecord(RuntimeCodex)
	if rec.Mode != ModeCodexExec {
		t.Fatalf("codex mode = %s, want codex-exec", rec.Mode)
	}
	if !rec.BypassGlobalLock {
		t.Fatal("codex bypasses the global injection lock")
	}
	if rec.ApplyCompactionGate {
		t.Fatal("codex must not apply the compaction gate")
	}
	if rec.EnterMethod != EnterNone {
		t.Fatalf("codex enter method = %s, want none", rec.EnterMethod)
	}
}

func TestBuiltinRecord_GeminiProfile(t *testing.T) {
	rec := builtinRecord(RuntimeGemini)
	if rec.EnterMethod != EnterPTY {
		t.Fatalf("gemini enter method = %s, want pty", rec.EnterMethod)
	}
	if rec.EnterDelayMs != GeminiEnterDelay {
		t.Fatalf("gemini enter delay = %v, want %v", rec.EnterDelayMs, GeminiEnterDelay)
	}
	if rec.SanitizeTransform != SanitizeGemini {
		t.Fatalf("gemini sanitize transform = %s, want gemini-sanitize", rec.SanitizeTransform)
	}
}

func TestBuiltinRecord_UnknownRuntimeFallsBackToGeneric(t *testing.T) {
	rec := builtinRecord(RuntimeUnknown)
	want := builtinRecord(RuntimeGeneric)
	if rec != want {
		t.Fatalf("unknown runtime should resolve to the generic profile, got %#v", rec)
	}
}

func TestResolver_DetectRuntime(t *testing.T) {
	r := NewResolver()
	cases := map[string]Runtime{
		"claude --resume":        RuntimeClaude,
		"codex exec --json":      RuntimeCodex,
		"gemini":                 RuntimeGemini,
		"/usr/bin/bash -lc noop": RuntimeUnknown,
	}
	for cmd, want := range cases {
		if got := r.DetectRuntime(cmd); got != want {
			t.Errorf("DetectRuntime(%q) = %s, want %s", cmd, got, want)
		}
	}
}

func TestResolver_Resolve_NoOverridesMatchesBuiltin(t *testing.T) {
	r := NewResolver()
	got := r.Resolve("pane-1", RuntimeClaude, Overrides{})
	want := builtinRecord(RuntimeClaude)
	if got != want {
		t.Fatalf("Resolve with no overrides = %#v, want %#v", got, want)
	}
}

func TestResolver_Resolve_RuntimeOverrideAppliesBeforePaneOverride(t *testing.T) {
	r := NewResolver()
	overrides := Overrides{
		ByRuntime: map[string]map[string]any{
			"claude": {"bypassGlobalLock": true},
		},
		ByPane: map[string]map[string]any{
			"pane-1": {"enterMethod": "pty"},
		},
	}
	got := r.Resolve("pane-1", RuntimeClaude, overrides)
	if !got.BypassGlobalLock {
		t.Fatal("expected runtime override to flip bypassGlobalLock to true")
	}
	if got.EnterMethod != EnterPTY {
		t.Fatalf("expected pane override to set enter method to pty, got %s", got.EnterMethod)
	}
	if got.Mode != ModePTY {
		t.Fatalf("expected unrelated fields to remain at builtin values, mode=%s", got.Mode)
	}
}

func TestResolver_Resolve_PaneOverrideOnlyAffectsThatPane(t *testing.T) {
	r := NewResolver()
	overrides := Overrides{
		ByPane: map[string]map[string]any{
			"pane-1": {"applyCompactionGate": false},
		},
	}
	got1 := r.Resolve("pane-1", RuntimeClaude, overrides)
	got2 := r.Resolve("pane-2", RuntimeClaude, overrides)
	if got1.ApplyCompactionGate {
		t.Fatal("expected pane-1 override to disable the compaction gate")
	}
	if !got2.ApplyCompactionGate {
		t.Fatal("expected pane-2 to keep the builtin compaction gate value")
	}
}

func TestApplyFieldOverrides_IgnoresUnknownKeysAndWrongTypes(t *testing.T) {
	base := builtinRecord(RuntimeGeneric)
	got := applyFieldOverrides(base, map[string]any{
		"notARealField":    "whatever",
		"bypassGlobalLock": "not-a-bool",
	})
	if got != base {
		t.Fatalf("expected unrecognized or mistyped override entries to be no-ops, got %#v", got)
	}
}

func TestGeminiEnterDelay_IsEightyMilliseconds(t *testing.T) {
	if GeminiEnterDelay != 80*time.Millisecond {
		t.Fatalf("GeminiEnterDelay = %v, want 80ms", GeminiEnterDelay)
	}
}
