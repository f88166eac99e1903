package fileutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DictationMetadata is the sidecar JSON written alongside each dictation.
// It records the session timings and the transcription outcome, so results
// can be audited after the audio itself has been deleted.
type DictationMetadata struct {
	Version    string      `json:"version"`
	SessionID  string      `json:"session_id"`
	StartedAt  time.Time   `json:"started_at"`
	StoppedAt  time.Time   `json:"stopped_at"`
	Duration   string      `json:"duration"`
	DurationMs int64       `json:"duration_ms"`
	AudioFile  string      `json:"audio_file"`
	AudioKept  bool        `json:"audio_kept"`
	Upload     *UploadMeta `json:"upload,omitempty"`
}

// UploadMeta captures the transcription exchange for the sidecar. The
// transcript text itself is never stored here; it lives in the paired
// transcript file, which the user controls.
type UploadMeta struct {
	Endpoint      string    `json:"endpoint"` // "standard" or "long"
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
	TranscribedAt time.Time `json:"transcribed_at,omitempty"`
	Chars         int       `json:"transcript_chars,omitempty"`
}

// WriteMetadata writes a <basepath>.meta.json sidecar file alongside the
// recording, atomically (temp file + rename).
func WriteMetadata(recordingPath string, meta *DictationMetadata) error {
	metaPath := MetadataPath(recordingPath)
	dir := filepath.Dir(metaPath)

	tmpFile, err := os.CreateTemp(dir, "meta-*.tmp")
	if err != nil {
		return fmt.Errorf("create metadata temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(meta); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync metadata: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close metadata temp: %w", err)
	}
	success = true

	if err := os.Rename(tmpPath, metaPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename metadata: %w", err)
	}
	return nil
}

// ReadMetadata loads the sidecar for a recording path.
func ReadMetadata(recordingPath string) (*DictationMetadata, error) {
	data, err := os.ReadFile(MetadataPath(recordingPath))
	if err != nil {
		return nil, err
	}
	var meta DictationMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return &meta, nil
}

// MetadataPath returns the sidecar path for a recording:
// dictation-X.wav -> dictation-X.meta.json.
func MetadataPath(recordingPath string) string {
	ext := filepath.Ext(recordingPath)
	return strings.TrimSuffix(recordingPath, ext) + ".meta.json"
}
