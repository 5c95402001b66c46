package handoff

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteIfChanged_FirstWriteCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "session.md")
	doc := Document{Content: "hello"}

	result, err := WriteIfChanged(path, "", false, doc, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Written || len(result.Writes) != 1 {
		t.Fatalf("expected first write to report written=true, got %#v", result)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q, want hello", got)
	}
}

func TestWriteIfChanged_IdenticalContentIsNoOp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.md")
	doc := Document{Content: "same content"}

	if _, err := WriteIfChanged(path, "", false, doc, nil); err != nil {
		t.Fatal(err)
	}
	result, err := WriteIfChanged(path, "", false, doc, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Written {
		t.Fatal("expected second identical write to be a no-op")
	}
}

func TestWriteIfChanged_ChangedContentRewrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.md")

	if _, err := WriteIfChanged(path, "", false, Document{Content: "v1"}, nil); err != nil {
		t.Fatal(err)
	}
	result, err := WriteIfChanged(path, "", false, Document{Content: "v2"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Written {
		t.Fatal("expected changed content to be rewritten")
	}
	got, _ := os.ReadFile(path)
	if string(got) != "v2" {
		t.Fatalf("got %q, want v2", got)
	}
}

func TestWriteIfChanged_MirrorsToLegacyPathWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.md")
	legacy := filepath.Join(dir, "legacy", "session.md")

	result, err := WriteIfChanged(path, legacy, true, Document{Content: "hello"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Writes) != 2 {
		t.Fatalf("expected writes to include both paths, got %v", result.Writes)
	}
	got, err := os.ReadFile(legacy)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("legacy mirror content = %q, want hello", got)
	}
}

func TestWriteIfChanged_DoesNotMirrorWhenDisabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.md")
	legacy := filepath.Join(dir, "legacy", "session.md")

	result, err := WriteIfChanged(path, legacy, false, Document{Content: "hello"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Writes) != 1 {
		t.Fatalf("expected only primary path written, got %v", result.Writes)
	}
	if _, err := os.Stat(legacy); !os.IsNotExist(err) {
		t.Fatal("expected legacy path not to be created")
	}
}

func TestRemoveLegacyPaneFiles_RemovesKnownNamesIgnoringMissing(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"1.md", "2.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	RemoveLegacyPaneFiles([]string{dir})
	for _, name := range []string{"1.md", "2.md", "5.md"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed", name)
		}
	}
}
