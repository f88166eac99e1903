// Package ipc is the file-based surface between the dictation daemon and
// whatever front end drives it. The daemon publishes status snapshots;
// front ends write commands.
package ipc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// SessionState mirrors the controller state for external consumers.
type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateRecording  SessionState = "recording"
	StateProcessing SessionState = "processing"
)

// StatusSnapshot is the complete externally visible state at a point in time.
type StatusSnapshot struct {
	State           SessionState `json:"state"`
	SessionID       string       `json:"session_id,omitempty"`
	DurationSeconds float64      `json:"duration_seconds"` // current recording length
	Level           float64      `json:"level"`            // normalized input level 0..1
	Uploading       bool         `json:"uploading"`        // transcription in flight
	LastError       string       `json:"last_error,omitempty"`
	TranscriptPath  string       `json:"transcript_path,omitempty"` // most recent saved transcript
	ServerHealthy   *bool        `json:"server_healthy,omitempty"`  // nil until first probe
	Timestamp       time.Time    `json:"timestamp"`
}

// CacheDir returns the runtime directory shared by daemon and front ends.
func CacheDir() string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "medasr")
}

// StatusPath returns the status snapshot location.
func StatusPath() string {
	return filepath.Join(CacheDir(), "status.json")
}

// WriteStatus persists the snapshot atomically so readers never observe a
// half-written file.
func WriteStatus(status *StatusSnapshot) error {
	if err := os.MkdirAll(CacheDir(), 0755); err != nil {
		return err
	}
	return atomicWriteJSON(StatusPath(), status)
}

// ReadStatus loads the latest snapshot.
func ReadStatus() (*StatusSnapshot, error) {
	data, err := os.ReadFile(StatusPath())
	if err != nil {
		return nil, err
	}
	var status StatusSnapshot
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// atomicWriteJSON writes data via temp file + rename.
func atomicWriteJSON(path string, data interface{}) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "status-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	tmpFile = nil // prevent defer cleanup

	return os.Rename(tmpPath, path)
}
