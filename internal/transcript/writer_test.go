package transcript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dictation-20260115-143005.txt")
	text := "Patient presents with a persistent dry cough.\nNo fever reported."

	if err := Write(path, text); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != text+"\n" {
		t.Errorf("round trip: got %q, want %q", got, text+"\n")
	}
}

func TestWriteKeepsExistingTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.txt")
	if err := Write(path, "already terminated\n"); err != nil {
		t.Fatal(err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != "already terminated\n" {
		t.Errorf("got %q, want single trailing newline", got)
	}
}

func TestWriteCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "note.txt")
	if err := Write(path, "hello"); err != nil {
		t.Fatalf("Write into missing directory: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("transcript not created: %v", err)
	}
}

func TestWriteOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")

	if err := Write(path, "first version"); err != nil {
		t.Fatal(err)
	}
	if err := Write(path, "second version"); err != nil {
		t.Fatal(err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "second version") {
		t.Errorf("overwrite lost: %q", got)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("leftover temp file: %s", e.Name())
		}
	}
}

func TestReadMissingFile(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Error("expected error for missing transcript")
	}
}
