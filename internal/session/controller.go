// Package session is the idle/recording/processing state machine that
// coordinates the capture engine and the transcription client. It is the
// only component with cross-cutting control flow: capture produces a file,
// the controller hands it to the transcription client, and the outcome is
// posted back for the daemon loop to observe.
package session

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/zameerb1/medasr/internal/capture"
	"github.com/zameerb1/medasr/internal/diaglog"
	"github.com/zameerb1/medasr/internal/fileutil"
	"github.com/zameerb1/medasr/internal/ipc"
	"github.com/zameerb1/medasr/internal/transcript"
)

// Recorder is the capture surface the controller drives.
// *capture.Engine satisfies it; tests substitute fakes.
type Recorder interface {
	Start() error
	Stop() (*capture.Recording, error)
	Cancel() error
	Recording() bool
	SessionID() string
	Duration() time.Duration
	Level() float64
}

// Transcriber is the upload surface the controller drives.
// *transcribe.Client satisfies it.
type Transcriber interface {
	Transcribe(ctx context.Context, path string, useLong bool) (string, error)
	Busy() bool
	LastError() string
}

// Config configures the controller.
type Config struct {
	Recorder    Recorder
	Transcriber Transcriber
	// LongThreshold selects the long-form server route for recordings
	// longer than this. Zero disables the long route.
	LongThreshold time.Duration
	// KeepAudio preserves the recording after transcription settles.
	// Default is to delete it: dictation audio is sensitive.
	KeepAudio bool
	// SaveTranscripts writes the returned text next to the recording.
	SaveTranscripts bool
	Version         string
	Logger          *diaglog.Logger
}

// Result is the settled outcome of one dictation, posted on Results()
// after the controller has returned to idle.
type Result struct {
	SessionID      string
	Text           string
	TranscriptPath string
	Err            error
}

// Controller is the 3-state session machine. Terminal state equals initial
// state (idle); the machine is re-entrant across many dictation lifecycles.
type Controller struct {
	cfg    Config
	logger *diaglog.Logger

	mu             sync.Mutex
	state          ipc.SessionState
	lastError      string
	transcriptPath string
	procID         string
	procCancel     context.CancelFunc

	results chan Result
}

// New creates a controller in the idle state.
func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = diaglog.NewNoOp()
	}
	return &Controller{
		cfg:     cfg,
		logger:  logger,
		state:   ipc.StateIdle,
		results: make(chan Result, 1),
	}
}

// State returns the current machine state.
func (c *Controller) State() ipc.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Results delivers one Result per dictation that reached processing.
func (c *Controller) Results() <-chan Result {
	return c.results
}

// Start begins a new dictation. Rejected outside idle; a capture failure
// leaves the machine idle with the error surfaced.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != ipc.StateIdle {
		err := &StateError{Op: "start", State: c.state}
		c.logRejected("start", err)
		return err
	}

	if err := c.cfg.Recorder.Start(); err != nil {
		c.lastError = err.Error()
		return err
	}
	c.state = ipc.StateRecording
	c.lastError = ""
	c.transcriptPath = ""
	return nil
}

// Stop finishes the recording and moves to processing. The upload runs in
// its own goroutine and posts its outcome on Results(); the machine returns
// to idle when the outcome settles. When capture yields no file the machine
// goes straight back to idle with a recording-failed status.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == ipc.StateIdle {
		return nil
	}
	if c.state != ipc.StateRecording {
		err := &StateError{Op: "stop", State: c.state}
		c.logRejected("stop", err)
		return err
	}

	rec, err := c.cfg.Recorder.Stop()
	if err != nil {
		c.state = ipc.StateIdle
		c.lastError = err.Error()
		return err
	}
	if rec == nil {
		c.state = ipc.StateIdle
		c.lastError = "recording failed"
		return &StateError{Op: "stop", State: ipc.StateIdle, Reason: "recording produced no file"}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.state = ipc.StateProcessing
	c.procID = rec.SessionID
	c.procCancel = cancel

	go c.process(ctx, rec)
	return nil
}

// Cancel discards the current dictation from any state. While recording it
// deletes the output file; while processing it aborts the in-flight upload.
// A no-op when idle.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case ipc.StateRecording:
		err := c.cfg.Recorder.Cancel()
		c.state = ipc.StateIdle
		c.lastError = ""
		return err
	case ipc.StateProcessing:
		// The processing goroutine settles with a cancelled outcome and
		// commits the transition back to idle.
		if c.procCancel != nil {
			c.procCancel()
		}
		return nil
	default:
		return nil
	}
}

// process runs one upload to completion and commits the outcome.
func (c *Controller) process(ctx context.Context, rec *capture.Recording) {
	useLong := c.cfg.LongThreshold > 0 && rec.Duration > c.cfg.LongThreshold
	text, err := c.cfg.Transcriber.Transcribe(ctx, rec.Path, useLong)
	c.finish(rec, useLong, text, err)
}

// finish is the processing -> idle transition: persist the transcript and
// sidecar, delete the audio exactly once, then post the result.
func (c *Controller) finish(rec *capture.Recording, useLong bool, text string, err error) {
	res := Result{SessionID: rec.SessionID, Err: err}

	if err == nil && c.cfg.SaveTranscripts {
		path := fileutil.TranscriptPath(rec.Path)
		if werr := transcript.Write(path, text); werr != nil {
			c.logger.Log(diaglog.LogEntry{
				Component: diaglog.ComponentController,
				Event:     diaglog.EventRecordingError,
				SessionID: rec.SessionID,
				Reason:    werr.Error(),
			})
		} else {
			res.TranscriptPath = path
			c.logger.Log(diaglog.LogEntry{
				Component: diaglog.ComponentController,
				Event:     diaglog.EventTranscriptWritten,
				SessionID: rec.SessionID,
				Payload:   map[string]interface{}{"path": path, "chars": len(text)},
			})
		}
	}
	if err == nil {
		res.Text = text
	}

	c.writeSidecar(rec, useLong, text, err)

	if !c.cfg.KeepAudio {
		_ = os.Remove(rec.Path)
	}

	c.mu.Lock()
	c.state = ipc.StateIdle
	c.procID = ""
	c.procCancel = nil
	if err != nil {
		c.lastError = err.Error()
	} else {
		c.lastError = ""
		c.transcriptPath = res.TranscriptPath
	}
	c.mu.Unlock()

	c.results <- res
}

// writeSidecar records the dictation outcome next to the recording. The
// transcript text itself never goes into the sidecar.
func (c *Controller) writeSidecar(rec *capture.Recording, useLong bool, text string, err error) {
	endpoint := "standard"
	if useLong {
		endpoint = "long"
	}
	upload := &fileutil.UploadMeta{
		Endpoint: endpoint,
		Success:  err == nil,
	}
	if err != nil {
		upload.Error = err.Error()
	} else {
		upload.TranscribedAt = time.Now()
		upload.Chars = len(text)
	}

	stopped := rec.StartedAt.Add(rec.Duration)
	meta := &fileutil.DictationMetadata{
		Version:    c.cfg.Version,
		SessionID:  rec.SessionID,
		StartedAt:  rec.StartedAt,
		StoppedAt:  stopped,
		Duration:   rec.Duration.String(),
		DurationMs: rec.Duration.Milliseconds(),
		AudioFile:  rec.Path,
		AudioKept:  c.cfg.KeepAudio,
		Upload:     upload,
	}
	if werr := fileutil.WriteMetadata(rec.Path, meta); werr != nil {
		c.logger.Log(diaglog.LogEntry{
			Component: diaglog.ComponentController,
			Event:     diaglog.EventRecordingError,
			SessionID: rec.SessionID,
			Reason:    werr.Error(),
		})
	}
}

// Snapshot assembles the externally visible state. The daemon loop adds
// server health before publishing.
func (c *Controller) Snapshot() *ipc.StatusSnapshot {
	c.mu.Lock()
	state := c.state
	lastError := c.lastError
	transcriptPath := c.transcriptPath
	procID := c.procID
	c.mu.Unlock()

	snap := &ipc.StatusSnapshot{
		State:          state,
		LastError:      lastError,
		TranscriptPath: transcriptPath,
		Uploading:      c.cfg.Transcriber.Busy(),
		Timestamp:      time.Now(),
	}
	switch state {
	case ipc.StateRecording:
		snap.SessionID = c.cfg.Recorder.SessionID()
		snap.DurationSeconds = c.cfg.Recorder.Duration().Seconds()
		snap.Level = c.cfg.Recorder.Level()
	case ipc.StateProcessing:
		snap.SessionID = procID
	}
	return snap
}

// logRejected logs a command refused by the current state.
func (c *Controller) logRejected(op string, err error) {
	c.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentController,
		Event:     diaglog.EventCommandRejected,
		Reason:    err.Error(),
		Payload:   map[string]interface{}{"op": op},
	})
}
