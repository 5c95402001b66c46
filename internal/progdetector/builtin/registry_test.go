package builtin_test

import (
	"testing"

	"panehub/internal/progdetector"
	_ "panehub/internal/progdetector/builtin"
)

func TestBuiltinDetectorsRegistered(t *testing.T) {
	for _, id := range []string{"codex", "cursor", "claude", "gemini"} {
		if _, ok := progdetector.ProgramDetectorRegistry.Get(id); !ok {
			t.Fatalf("expected builtin detector %q registered", id)
		}
	}
}
