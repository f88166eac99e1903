package transcribe

import (
	"bytes"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeAudioFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestBuildBodyDelimiters(t *testing.T) {
	path := writeAudioFile(t, "note.wav", []byte("RIFF-fake-audio"))
	boundary := NewBoundary()

	body, err := BuildBody(path, boundary)
	if err != nil {
		t.Fatalf("BuildBody: %v", err)
	}

	s := string(body)
	if !strings.HasPrefix(s, "--"+boundary+"\r\n") {
		t.Error("body does not begin with the boundary delimiter")
	}
	if !strings.HasSuffix(s, "--"+boundary+"--\r\n") {
		t.Error("body does not end with the closing boundary delimiter")
	}
	if got := strings.Count(s, "Content-Disposition:"); got != 1 {
		t.Errorf("want exactly 1 Content-Disposition, got %d", got)
	}
	if !strings.Contains(s, `name="file"`) {
		t.Error("field is not named \"file\"")
	}
	if !strings.Contains(s, `filename="note.wav"`) {
		t.Error("original filename missing")
	}
}

func TestBuildBodyParsesAsMultipart(t *testing.T) {
	content := []byte("binary\x00audio\xffdata")
	path := writeAudioFile(t, "note.m4a", content)
	boundary := NewBoundary()

	body, err := BuildBody(path, boundary)
	if err != nil {
		t.Fatalf("BuildBody: %v", err)
	}

	r := multipart.NewReader(bytes.NewReader(body), boundary)
	part, err := r.NextPart()
	if err != nil {
		t.Fatalf("NextPart: %v", err)
	}
	if part.FormName() != "file" {
		t.Errorf("form name: want file, got %q", part.FormName())
	}
	if part.FileName() != "note.m4a" {
		t.Errorf("filename: want note.m4a, got %q", part.FileName())
	}
	if got := part.Header.Get("Content-Type"); got != "audio/m4a" {
		t.Errorf("part content type: want audio/m4a, got %q", got)
	}
	data, err := io.ReadAll(part)
	if err != nil {
		t.Fatalf("read part: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("file bytes were altered by encoding")
	}
	if _, err := r.NextPart(); err != io.EOF {
		t.Errorf("expected exactly one part, got another (err=%v)", err)
	}
}

func TestBuildBodyDeterministic(t *testing.T) {
	path := writeAudioFile(t, "note.wav", []byte("same-bytes"))
	boundary := NewBoundary()

	first, err := BuildBody(path, boundary)
	if err != nil {
		t.Fatal(err)
	}
	second, err := BuildBody(path, boundary)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Error("BuildBody is not deterministic for a fixed boundary")
	}
}

func TestBuildBodyMissingFile(t *testing.T) {
	if _, err := BuildBody(filepath.Join(t.TempDir(), "gone.wav"), NewBoundary()); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestContentTypeTable(t *testing.T) {
	tests := []struct {
		file string
		want string
	}{
		{"a.wav", "audio/wav"},
		{"a.m4a", "audio/m4a"},
		{"a.mp3", "audio/mpeg"},
		{"a.mp4", "audio/mp4"},
		{"a.aac", "audio/aac"},
		{"a.ogg", "audio/ogg"},
		{"a.flac", "audio/flac"},
		{"a.WAV", "audio/wav"}, // extension match is case-insensitive
		{"a.opus", "application/octet-stream"},
		{"noext", "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			if got := ContentTypeFor(tt.file); got != tt.want {
				t.Errorf("ContentTypeFor(%q): want %q, got %q", tt.file, tt.want, got)
			}
		})
	}
}

func TestContentTypeEmbeddedInBody(t *testing.T) {
	for ext, want := range mimeByExt {
		path := writeAudioFile(t, "clip"+ext, []byte("x"))
		body, err := BuildBody(path, NewBoundary())
		if err != nil {
			t.Fatalf("BuildBody(%s): %v", ext, err)
		}
		if !strings.Contains(string(body), "Content-Type: "+want) {
			t.Errorf("%s: content type %q not embedded", ext, want)
		}
	}
}

func TestNewBoundaryFreshPerCall(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		b := NewBoundary()
		if seen[b] {
			t.Fatalf("boundary repeated: %s", b)
		}
		seen[b] = true
	}
}
