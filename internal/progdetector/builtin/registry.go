// Package builtin blank-imports every first-party detector so a single
// import wires the whole capability-resolution registry.
package builtin

import (
	_ "panehub/internal/progdetector/claude"
	_ "panehub/internal/progdetector/codex"
	_ "panehub/internal/progdetector/cursor"
	_ "panehub/internal/progdetector/gemini"
)
