package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zameerb1/medasr/internal/capture"
	"github.com/zameerb1/medasr/internal/fileutil"
	"github.com/zameerb1/medasr/internal/ipc"
)

// fakeRecorder is a scriptable Recorder that backs recordings with real
// temp files so transcript and sidecar writes exercise the filesystem.
type fakeRecorder struct {
	mu        sync.Mutex
	dir       string
	startErr  error
	stopErr   error
	stopNil   bool
	duration  time.Duration
	level     float64
	active    bool
	sessionID string
	lastPath  string
	cancels   int
}

func (r *fakeRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.active = true
	r.sessionID = "sess-1"
	return nil
}

func (r *fakeRecorder) Stop() (*capture.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	if r.stopErr != nil {
		return nil, r.stopErr
	}
	if r.stopNil {
		return nil, nil
	}
	path := filepath.Join(r.dir, "dictation-20260115-143005.wav")
	if err := os.WriteFile(path, []byte("wav-bytes"), 0644); err != nil {
		return nil, err
	}
	r.lastPath = path
	return &capture.Recording{
		SessionID: r.sessionID,
		Path:      path,
		StartedAt: time.Now().Add(-r.duration),
		Duration:  r.duration,
	}, nil
}

func (r *fakeRecorder) Cancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels++
	r.active = false
	return nil
}

func (r *fakeRecorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *fakeRecorder) SessionID() string { return r.sessionID }

func (r *fakeRecorder) Duration() time.Duration { return r.duration }

func (r *fakeRecorder) Level() float64 { return r.level }

// fakeTranscriber returns scripted text or errors and records the route.
type fakeTranscriber struct {
	mu       sync.Mutex
	text     string
	err      error
	block    bool
	busy     bool
	lastLong bool
	calls    int
}

func (t *fakeTranscriber) Transcribe(ctx context.Context, path string, useLong bool) (string, error) {
	t.mu.Lock()
	t.calls++
	t.lastLong = useLong
	block := t.block
	t.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if t.err != nil {
		return "", t.err
	}
	return t.text, nil
}

func (t *fakeTranscriber) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.busy
}

func (t *fakeTranscriber) LastError() string { return "" }

func newTestController(t *testing.T, rec *fakeRecorder, tc *fakeTranscriber) *Controller {
	t.Helper()
	if rec.dir == "" {
		rec.dir = t.TempDir()
	}
	if rec.duration == 0 {
		rec.duration = 3 * time.Second
	}
	return New(Config{
		Recorder:        rec,
		Transcriber:     tc,
		LongThreshold:   30 * time.Second,
		SaveTranscripts: true,
		Version:         "test",
	})
}

func waitResult(t *testing.T, c *Controller) Result {
	t.Helper()
	select {
	case res := <-c.Results():
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for dictation result")
		return Result{}
	}
}

func TestDictationLifecycle(t *testing.T) {
	rec := &fakeRecorder{}
	tc := &fakeTranscriber{text: "Patient reports mild headache."}
	c := newTestController(t, rec, tc)

	if c.State() != ipc.StateIdle {
		t.Fatalf("initial state: %s", c.State())
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if c.State() != ipc.StateRecording {
		t.Fatalf("state after start: %s", c.State())
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	res := waitResult(t, c)

	if res.Err != nil {
		t.Fatalf("result error: %v", res.Err)
	}
	if res.Text != "Patient reports mild headache." {
		t.Errorf("text: %q", res.Text)
	}
	if c.State() != ipc.StateIdle {
		t.Errorf("state after settle: %s", c.State())
	}

	// Transcript written next to the recording.
	data, err := os.ReadFile(res.TranscriptPath)
	if err != nil {
		t.Fatalf("transcript not written: %v", err)
	}
	if !strings.Contains(string(data), "mild headache") {
		t.Errorf("transcript content: %q", data)
	}

	// Audio deleted after processing.
	if _, err := os.Stat(rec.lastPath); !os.IsNotExist(err) {
		t.Error("audio file not deleted after processing")
	}

	// Sidecar records a successful upload on the standard route.
	meta, err := fileutil.ReadMetadata(rec.lastPath)
	if err != nil {
		t.Fatalf("sidecar: %v", err)
	}
	if meta.Upload == nil || !meta.Upload.Success || meta.Upload.Endpoint != "standard" {
		t.Errorf("sidecar upload: %+v", meta.Upload)
	}
	if meta.AudioKept {
		t.Error("sidecar claims audio kept")
	}
}

func TestStartRejectedOutsideIdle(t *testing.T) {
	rec := &fakeRecorder{}
	tc := &fakeTranscriber{block: true}
	c := newTestController(t, rec, tc)

	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	var serr *StateError
	if err := c.Start(); !errors.As(err, &serr) {
		t.Errorf("second start while recording: %v", err)
	}

	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	// Processing now: both start and stop are rejected.
	if err := c.Start(); !errors.As(err, &serr) {
		t.Errorf("start while processing: %v", err)
	}
	if err := c.Stop(); !errors.As(err, &serr) {
		t.Errorf("stop while processing: %v", err)
	}

	c.Cancel()
	waitResult(t, c)
}

func TestStartFailureStaysIdle(t *testing.T) {
	rec := &fakeRecorder{startErr: errors.New("audio input could not be activated")}
	c := newTestController(t, rec, &fakeTranscriber{})

	if err := c.Start(); err == nil {
		t.Fatal("expected start failure")
	}
	if c.State() != ipc.StateIdle {
		t.Errorf("state: %s", c.State())
	}
	if snap := c.Snapshot(); snap.LastError == "" {
		t.Error("snapshot missing error")
	}
}

func TestStopFromIdleIsNoOp(t *testing.T) {
	c := newTestController(t, &fakeRecorder{}, &fakeTranscriber{})
	if err := c.Stop(); err != nil {
		t.Errorf("stop from idle: %v", err)
	}
	if err := c.Cancel(); err != nil {
		t.Errorf("cancel from idle: %v", err)
	}
	if c.State() != ipc.StateIdle {
		t.Errorf("state: %s", c.State())
	}
}

func TestStopWithNoFileReturnsToIdle(t *testing.T) {
	rec := &fakeRecorder{stopNil: true}
	c := newTestController(t, rec, &fakeTranscriber{})

	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	err := c.Stop()
	if err == nil {
		t.Fatal("expected recording-failed error")
	}
	if c.State() != ipc.StateIdle {
		t.Errorf("state: %s", c.State())
	}
	if snap := c.Snapshot(); snap.LastError == "" {
		t.Error("snapshot missing recording-failed status")
	}
}

func TestTranscriptionFailure(t *testing.T) {
	rec := &fakeRecorder{}
	tc := &fakeTranscriber{err: errors.New("transcription server returned HTTP 500")}
	c := newTestController(t, rec, tc)

	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	res := waitResult(t, c)

	if res.Err == nil {
		t.Fatal("expected failure result")
	}
	if res.Text != "" || res.TranscriptPath != "" {
		t.Errorf("partial text leaked: %+v", res)
	}
	if c.State() != ipc.StateIdle {
		t.Errorf("state: %s", c.State())
	}
	// Audio still deleted exactly once, failure or not.
	if _, err := os.Stat(rec.lastPath); !os.IsNotExist(err) {
		t.Error("audio file not deleted after failure")
	}
	meta, err := fileutil.ReadMetadata(rec.lastPath)
	if err != nil {
		t.Fatalf("sidecar: %v", err)
	}
	if meta.Upload == nil || meta.Upload.Success || meta.Upload.Error == "" {
		t.Errorf("sidecar upload: %+v", meta.Upload)
	}
	if snap := c.Snapshot(); !strings.Contains(snap.LastError, "HTTP 500") {
		t.Errorf("snapshot error: %q", snap.LastError)
	}
}

func TestKeepAudioPreservesRecording(t *testing.T) {
	rec := &fakeRecorder{dir: t.TempDir(), duration: time.Second}
	tc := &fakeTranscriber{text: "ok"}
	c := New(Config{
		Recorder:        rec,
		Transcriber:     tc,
		KeepAudio:       true,
		SaveTranscripts: true,
	})

	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	waitResult(t, c)

	if _, err := os.Stat(rec.lastPath); err != nil {
		t.Errorf("audio file missing despite keep_audio: %v", err)
	}
	meta, err := fileutil.ReadMetadata(rec.lastPath)
	if err != nil {
		t.Fatal(err)
	}
	if !meta.AudioKept {
		t.Error("sidecar should record audio_kept")
	}
}

func TestLongRecordingsUseLongRoute(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		wantLong bool
	}{
		{"short recording", 5 * time.Second, false},
		{"at threshold", 30 * time.Second, false},
		{"over threshold", 31 * time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecorder{duration: tt.duration}
			tc := &fakeTranscriber{text: "ok"}
			c := newTestController(t, rec, tc)

			if err := c.Start(); err != nil {
				t.Fatal(err)
			}
			if err := c.Stop(); err != nil {
				t.Fatal(err)
			}
			waitResult(t, c)

			if tc.lastLong != tt.wantLong {
				t.Errorf("long route: want %v, got %v", tt.wantLong, tc.lastLong)
			}
		})
	}
}

func TestCancelWhileRecording(t *testing.T) {
	rec := &fakeRecorder{}
	c := newTestController(t, rec, &fakeTranscriber{})

	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	if err := c.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if c.State() != ipc.StateIdle {
		t.Errorf("state: %s", c.State())
	}
	if rec.cancels != 1 {
		t.Errorf("recorder cancel calls: %d", rec.cancels)
	}
}

func TestCancelWhileProcessingAbortsUpload(t *testing.T) {
	rec := &fakeRecorder{}
	tc := &fakeTranscriber{block: true}
	c := newTestController(t, rec, tc)

	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	if c.State() != ipc.StateProcessing {
		t.Fatalf("state: %s", c.State())
	}

	if err := c.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	res := waitResult(t, c)

	if res.Err == nil {
		t.Error("cancelled upload should settle with an error")
	}
	if c.State() != ipc.StateIdle {
		t.Errorf("state after cancel: %s", c.State())
	}
	if _, err := os.Stat(rec.lastPath); !os.IsNotExist(err) {
		t.Error("audio file not deleted after cancelled upload")
	}
}

func TestSnapshotWhileRecording(t *testing.T) {
	rec := &fakeRecorder{duration: 7 * time.Second, level: 0.42}
	c := newTestController(t, rec, &fakeTranscriber{})

	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	snap := c.Snapshot()
	if snap.State != ipc.StateRecording {
		t.Errorf("state: %s", snap.State)
	}
	if snap.SessionID != "sess-1" {
		t.Errorf("session id: %q", snap.SessionID)
	}
	if snap.DurationSeconds != 7 {
		t.Errorf("duration: %v", snap.DurationSeconds)
	}
	if snap.Level != 0.42 {
		t.Errorf("level: %v", snap.Level)
	}

	c.Cancel()
	if snap := c.Snapshot(); snap.State != ipc.StateIdle || snap.DurationSeconds != 0 {
		t.Errorf("idle snapshot: %+v", snap)
	}
}
