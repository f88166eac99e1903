package transcribe

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// mimeByExt maps supported audio extensions onto the content type declared
// for the uploaded part. Matches the set of formats the server accepts.
var mimeByExt = map[string]string{
	".wav":  "audio/wav",
	".m4a":  "audio/m4a",
	".mp3":  "audio/mpeg",
	".mp4":  "audio/mp4",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
}

const fallbackMIME = "application/octet-stream"

// ContentTypeFor returns the MIME type for an audio file path, or
// application/octet-stream for unknown extensions.
func ContentTypeFor(path string) string {
	if m, ok := mimeByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return m
	}
	return fallbackMIME
}

// NewBoundary returns a fresh multipart boundary token. A random 128-bit
// identifier keeps the delimiter from colliding with file content.
func NewBoundary() string {
	return "medasr-" + uuid.NewString()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// BuildBody encodes the file at path as a single-part multipart/form-data
// payload: one field named "file" carrying the file bytes, its original
// filename, and the extension-derived content type. Deterministic for a
// given boundary; callers must pass a fresh boundary per request.
func BuildBody(path, boundary string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(boundary); err != nil {
		return nil, fmt.Errorf("set boundary: %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`,
		quoteEscaper.Replace(filepath.Base(path))))
	header.Set("Content-Type", ContentTypeFor(path))

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write audio data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}
	return buf.Bytes(), nil
}
