package handoff

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// WriteResult reports whether an atomic write happened and which paths it
// touched.
type WriteResult struct {
	Written bool
	Writes  []string
}

// WriteIfChanged computes doc's bytes against the existing file at path; if
// identical, it is a no-op. Otherwise it creates path's parent directory,
// writes the new content, and mirrors to legacyPath if distinct and
// mirrorLegacy is true.
func WriteIfChanged(path, legacyPath string, mirrorLegacy bool, doc Document, log *slog.Logger) (WriteResult, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	content := []byte(doc.Content)

	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, content) {
		return WriteResult{Written: false}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return WriteResult{}, fmt.Errorf("handoff: create parent dir: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return WriteResult{}, fmt.Errorf("handoff: write %s: %w", path, err)
	}
	writes := []string{path}

	if mirrorLegacy && legacyPath != "" && legacyPath != path {
		if err := os.MkdirAll(filepath.Dir(legacyPath), 0o755); err != nil {
			return WriteResult{}, fmt.Errorf("handoff: create legacy parent dir: %w", err)
		}
		if err := os.WriteFile(legacyPath, content, 0o644); err != nil {
			return WriteResult{}, fmt.Errorf("handoff: write legacy %s: %w", legacyPath, err)
		}
		writes = append(writes, legacyPath)
	}

	log.Info("handoff.written", "path", path, "writes", writes)
	return WriteResult{Written: true, Writes: writes}, nil
}

// RemoveLegacyPaneFiles deletes the legacy per-pane files ("1.md", "2.md",
// "5.md") from every directory in roots, ignoring missing files.
func RemoveLegacyPaneFiles(roots []string) {
	legacyNames := []string{"1.md", "2.md", "5.md"}
	for _, root := range roots {
		for _, name := range legacyNames {
			_ = os.Remove(filepath.Join(root, name))
		}
	}
}
