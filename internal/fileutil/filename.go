// Package fileutil provides recording file utilities.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RecordingPath returns a path for a new dictation inside dir, named by
// timestamp: dictation-20260115-143005.wav. When a recording already exists
// for that second (rapid start/stop cycles), a numeric suffix is appended.
// The directory is created if needed.
func RecordingPath(dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create recordings directory: %w", err)
	}

	base := "dictation-" + now.Format("20060102-150405")
	path := filepath.Join(dir, base+".wav")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, nil
	}

	for i := 2; i < 100; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s-%d.wav", base, i))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("too many recordings named %s", base)
}

// TranscriptPath returns the transcript file path paired with a recording:
// the same base name with a .txt extension.
func TranscriptPath(recordingPath string) string {
	ext := filepath.Ext(recordingPath)
	return recordingPath[:len(recordingPath)-len(ext)] + ".txt"
}
