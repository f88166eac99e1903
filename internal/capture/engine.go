// Package capture owns the microphone session and recording file lifecycle.
// It records mono 16-bit WAV from the default input device and meters
// duration and signal level while a session is active.
package capture

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"

	"github.com/zameerb1/medasr/internal/diaglog"
	"github.com/zameerb1/medasr/internal/fileutil"
)

// Sampler periods. Duration ticks at 10 Hz and the level meter at 20 Hz.
const (
	durationTick = 100 * time.Millisecond
	levelTick    = 50 * time.Millisecond
)

// Config configures the capture engine.
type Config struct {
	SampleRate    int
	RecordingsDir string
	// OpenSource opens the input device; defaults to OpenInputDevice.
	OpenSource SourceFactory
	Logger     *diaglog.Logger
}

// Recording is the outcome of a successfully stopped session.
type Recording struct {
	SessionID string
	Path      string
	StartedAt time.Time
	Duration  time.Duration
}

// Engine is the capture engine. At most one session is active at a time;
// the input device is exclusively owned while recording.
type Engine struct {
	cfg        Config
	openSource SourceFactory
	logger     *diaglog.Logger

	mu     sync.Mutex
	active *session
}

// session is the engine-internal state of one recording.
type session struct {
	id         string
	path       string
	startedAt  time.Time
	sampleRate int

	src  Source
	file *os.File
	enc  *wav.Encoder

	stop chan struct{} // closed once by teardown; halts loop and samplers
	done chan struct{} // closed when the capture loop exits

	mu        sync.Mutex
	duration  time.Duration
	level     float64
	amplitude float64 // latest RMS from the capture loop
	encodeErr error   // sticky; surfaced at the next Stop
}

// New creates an engine. The input device is not touched until Start.
func New(cfg Config) *Engine {
	open := cfg.OpenSource
	if open == nil {
		open = OpenInputDevice
	}
	logger := cfg.Logger
	if logger == nil {
		logger = diaglog.NewNoOp()
	}
	return &Engine{cfg: cfg, openSource: open, logger: logger}
}

// Start activates the input device, allocates a unique output path, and
// begins encoding and sampling. Fails with ErrSessionConfig when the device
// cannot be activated and ErrFileCreate when the output file cannot be made.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != nil {
		return newError(ErrSessionConfig, errors.New("a recording session is already active"))
	}

	src, err := e.openSource(e.cfg.SampleRate)
	if err != nil {
		return newError(ErrSessionConfig, err)
	}

	path, err := fileutil.RecordingPath(e.cfg.RecordingsDir, time.Now())
	if err != nil {
		_ = src.Close()
		return newError(ErrFileCreate, err)
	}
	f, err := os.Create(path)
	if err != nil {
		_ = src.Close()
		return newError(ErrFileCreate, err)
	}

	if err := src.Start(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		_ = src.Close()
		return newError(ErrSessionConfig, err)
	}

	s := &session{
		id:         uuid.NewString(),
		path:       path,
		startedAt:  time.Now(),
		sampleRate: e.cfg.SampleRate,
		src:        src,
		file:       f,
		enc:        wav.NewEncoder(f, e.cfg.SampleRate, 16, 1, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	e.active = s

	go s.captureLoop()
	go s.sampleLoop()

	e.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentCapture,
		Event:     diaglog.EventRecordingStart,
		SessionID: s.id,
		Payload:   map[string]interface{}{"path": path, "sample_rate": e.cfg.SampleRate},
	})
	return nil
}

// Stop halts the session and returns the finished recording. Calling Stop
// with no active session is a no-op returning (nil, nil). When the encoder
// failed mid-recording the sticky error is returned instead and the partial
// file is removed.
func (e *Engine) Stop() (*Recording, error) {
	e.mu.Lock()
	s := e.active
	e.active = nil
	e.mu.Unlock()

	if s == nil {
		return nil, nil
	}

	encodeErr := e.teardown(s)
	if encodeErr != nil {
		_ = os.Remove(s.path)
		e.logger.Log(diaglog.LogEntry{
			Component: diaglog.ComponentCapture,
			Event:     diaglog.EventRecordingError,
			SessionID: s.id,
			Reason:    encodeErr.Error(),
		})
		return nil, encodeErr
	}

	s.mu.Lock()
	duration := s.duration
	s.mu.Unlock()

	e.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentCapture,
		Event:     diaglog.EventRecordingStop,
		SessionID: s.id,
		Payload:   map[string]interface{}{"duration_ms": duration.Milliseconds()},
	})
	return &Recording{
		SessionID: s.id,
		Path:      s.path,
		StartedAt: s.startedAt,
		Duration:  duration,
	}, nil
}

// Cancel performs the same teardown as Stop but always deletes the output
// file. Safe to call from any state; a no-op when idle.
func (e *Engine) Cancel() error {
	e.mu.Lock()
	s := e.active
	e.active = nil
	e.mu.Unlock()

	if s == nil {
		return nil
	}

	_ = e.teardown(s)
	err := os.Remove(s.path)

	e.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentCapture,
		Event:     diaglog.EventRecordingCancel,
		SessionID: s.id,
	})
	return err
}

// teardown stops sampling, drains the capture loop, releases the device,
// and flushes the encoder. The file is fully written when it returns.
func (e *Engine) teardown(s *session) error {
	close(s.stop)
	<-s.done

	_ = s.src.Stop()
	_ = s.src.Close()

	s.mu.Lock()
	s.duration = time.Since(s.startedAt)
	encodeErr := s.encodeErr
	s.mu.Unlock()

	if err := s.enc.Close(); err != nil && encodeErr == nil {
		encodeErr = newError(ErrEncode, err)
	}
	_ = s.file.Sync()
	if err := s.file.Close(); err != nil && encodeErr == nil {
		encodeErr = newError(ErrEncode, err)
	}
	return encodeErr
}

// Recording reports whether a session is active.
func (e *Engine) Recording() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active != nil
}

// SessionID returns the active session's identifier, or "" when idle.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return ""
	}
	return e.active.id
}

// Duration returns the latest sampled recording length; zero when idle.
func (e *Engine) Duration() time.Duration {
	e.mu.Lock()
	s := e.active
	e.mu.Unlock()
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// Level returns the latest sampled input level in [0,1]; zero when idle.
func (e *Engine) Level() float64 {
	e.mu.Lock()
	s := e.active
	e.mu.Unlock()
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// captureLoop reads PCM buffers from the device and feeds the encoder until
// stopped or an encode error occurs. Errors are sticky: they end the loop
// and surface at the next Stop.
func (s *session) captureLoop() {
	defer close(s.done)

	frame := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: s.sampleRate},
		SourceBitDepth: 16,
	}
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		samples, err := s.src.Read()
		if err != nil {
			s.fail(newError(ErrEncode, err))
			return
		}

		s.mu.Lock()
		s.amplitude = rms(samples)
		s.mu.Unlock()

		if cap(frame.Data) < len(samples) {
			frame.Data = make([]int, len(samples))
		}
		frame.Data = frame.Data[:len(samples)]
		for i, v := range samples {
			frame.Data[i] = int(v)
		}
		if err := s.enc.Write(frame); err != nil {
			s.fail(newError(ErrEncode, err))
			return
		}
	}
}

// sampleLoop runs the duration and level samplers. Both halt together when
// the session stops or the capture loop dies.
func (s *session) sampleLoop() {
	dur := time.NewTicker(durationTick)
	defer dur.Stop()
	lvl := time.NewTicker(levelTick)
	defer lvl.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-s.done:
			return
		case <-dur.C:
			s.mu.Lock()
			s.duration = time.Since(s.startedAt)
			s.mu.Unlock()
		case <-lvl.C:
			s.mu.Lock()
			s.level = meterLevel(s.amplitude)
			s.mu.Unlock()
		}
	}
}

func (s *session) fail(err *Error) {
	s.mu.Lock()
	if s.encodeErr == nil {
		s.encodeErr = err
	}
	s.mu.Unlock()
}
