package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zameerb1/medasr/internal/capture"
	"github.com/zameerb1/medasr/internal/config"
	"github.com/zameerb1/medasr/internal/diaglog"
	"github.com/zameerb1/medasr/internal/ipc"
	"github.com/zameerb1/medasr/internal/pidfile"
	"github.com/zameerb1/medasr/internal/session"
	"github.com/zameerb1/medasr/internal/transcribe"
)

const (
	logPrefix      = "[medasr-core]"
	statusInterval = 250 * time.Millisecond
	healthInterval = 30 * time.Second
)

var (
	// Version is set at build time via -ldflags "-X main.Version=..."
	Version = "dev"

	outLog *log.Logger
	errLog *log.Logger
)

func main() {
	// --export-diag subcommand: read log, write bundle, exit.
	if len(os.Args) > 1 && os.Args[1] == "--export-diag" {
		logPath := debugLogPath()
		diaglog.Version = Version
		path, n, err := diaglog.Export(logPath, ".")
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			if os.IsNotExist(err) {
				fmt.Fprintln(os.Stderr, "hint: run with MEDASR_DEBUG=true to enable logging")
				os.Exit(1)
			}
			os.Exit(2)
		}
		fmt.Printf("Wrote: %s (%d lines)\n", path, n)
		os.Exit(0)
	}
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Println("medasr-core " + Version)
		os.Exit(0)
	}

	// Recover from any panics and log them
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC in medasr-core: %v\n", r)
			if errLog != nil {
				errLog.Printf("PANIC: %v", r)
			}
			os.Exit(1)
		}
	}()

	if err := initLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	outLog.Println("===========================================")
	outLog.Println("Starting MedASR Core v" + Version + "...")
	outLog.Printf("PID: %d", os.Getpid())
	outLog.Println("===========================================")

	// Check for duplicate instances
	pidFilePath := pidfile.Path("medasr-core")
	pf, err := pidfile.Acquire(pidFilePath)
	if err != nil {
		errLog.Printf("Failed to create PID file: %v", err)
		errLog.Println("Another instance of medasr-core may already be running.")
		errLog.Printf("If you're sure no other instance is running, remove: %s", pidFilePath)
		os.Exit(1)
	}
	defer func() {
		if err := pf.Remove(); err != nil {
			errLog.Printf("Warning: failed to remove PID file: %v", err)
		}
	}()
	outLog.Printf("PID file created: %s (PID %d)", pidFilePath, os.Getpid())

	outLog.Println("[STARTUP] Loading configuration...")
	cfg, err := config.Load()
	if err != nil {
		errLog.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}
	outLog.Printf("[STARTUP] Config: server=%s, sample_rate=%d, recordings=%s",
		cfg.ServerURL, cfg.SampleRate, cfg.RecordingsDir)

	diagLogger, diagErr := diaglog.New(debugLogPath())
	if diagErr != nil {
		errLog.Printf("[STARTUP] WARNING: could not open diagnostic log: %v (continuing)", diagErr)
		diagLogger = diaglog.NewNoOp()
	}
	defer func() { _ = diagLogger.Close() }()
	diaglog.Version = Version

	engine := capture.New(capture.Config{
		SampleRate:    cfg.SampleRate,
		RecordingsDir: cfg.RecordingsDir,
		Logger:        diagLogger,
	})

	// Microphone probe: warn early rather than failing the first dictation.
	outLog.Println("[STARTUP] Probing audio input device...")
	probeCtx, probeCancel := context.WithTimeout(context.Background(), 3*time.Second)
	if engine.RequestPermission(probeCtx) {
		outLog.Println("[STARTUP] Audio input available")
	} else {
		errLog.Println("[STARTUP] WARNING: audio input unavailable; dictation will fail until granted")
	}
	probeCancel()

	client := transcribe.NewClient(transcribe.Config{
		ServerURL:      cfg.ServerURL,
		RequestTimeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		HealthTimeout:  time.Duration(cfg.HealthTimeoutSeconds) * time.Second,
		Logger:         diagLogger,
	})

	ctrl := session.New(session.Config{
		Recorder:        engine,
		Transcriber:     client,
		LongThreshold:   time.Duration(cfg.LongThresholdSeconds) * time.Second,
		KeepAudio:       cfg.KeepAudio,
		SaveTranscripts: cfg.SaveTranscripts,
		Version:         Version,
		Logger:          diagLogger,
	})

	// First health probe before the loop so the initial status is honest.
	var serverHealthy *bool
	probe := func() {
		healthy := client.CheckHealth(context.Background())
		serverHealthy = &healthy
	}
	probe()
	outLog.Printf("[STARTUP] Transcription server healthy: %v", *serverHealthy)

	publish := func() {
		snap := ctrl.Snapshot()
		snap.ServerHealthy = serverHealthy
		if err := ipc.WriteStatus(snap); err != nil {
			errLog.Printf("Failed to write status: %v", err)
		}
	}
	publish()

	cmdCh := make(chan ipc.Command, 4)
	go watchCommands(cmdCh)

	statusTicker := time.NewTicker(statusInterval)
	defer statusTicker.Stop()
	healthTicker := time.NewTicker(healthInterval)
	defer healthTicker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	outLog.Println("[RUNNING] MedASR Core is running")

	for {
		select {
		case <-statusTicker.C:
			publish()

		case <-healthTicker.C:
			probe()
			publish()

		case cmd := <-cmdCh:
			if quit := handleCommand(cmd, ctrl, probe, diagLogger); quit {
				outLog.Println("[SHUTDOWN] Quit command received")
				shutdown(ctrl, publish)
				return
			}
			publish()

		case res := <-ctrl.Results():
			if res.Err != nil {
				errLog.Printf("Dictation %s failed: %v", res.SessionID, res.Err)
			} else {
				outLog.Printf("Dictation %s transcribed (%d chars)", res.SessionID, len(res.Text))
				if res.TranscriptPath != "" {
					outLog.Printf("Transcript written: %s", res.TranscriptPath)
				}
			}
			publish()

		case sig := <-sigChan:
			outLog.Printf("[SHUTDOWN] Received %s", sig)
			shutdown(ctrl, publish)
			return
		}
	}
}

// handleCommand processes one front-end command. Returns true on quit.
func handleCommand(cmd ipc.Command, ctrl *session.Controller, probe func(), logger *diaglog.Logger) bool {
	outLog.Printf("Received command: %s", cmd)
	logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentCore,
		Event:     diaglog.EventCommandReceived,
		Payload:   map[string]interface{}{"command": string(cmd)},
	})

	switch cmd {
	case ipc.CmdStart:
		if err := ctrl.Start(); err != nil {
			errLog.Printf("Start failed: %v", err)
		}
	case ipc.CmdStop:
		if err := ctrl.Stop(); err != nil {
			errLog.Printf("Stop failed: %v", err)
		}
	case ipc.CmdCancel:
		if err := ctrl.Cancel(); err != nil {
			errLog.Printf("Cancel failed: %v", err)
		}
	case ipc.CmdHealth:
		probe()
	case ipc.CmdQuit:
		return true
	default:
		errLog.Printf("Unknown command: %s", cmd)
	}
	return false
}

// shutdown discards any live dictation and publishes a final idle status.
// A recording interrupted by daemon shutdown is cancelled, not uploaded.
func shutdown(ctrl *session.Controller, publish func()) {
	if ctrl.State() != ipc.StateIdle {
		outLog.Println("[SHUTDOWN] Cancelling active dictation...")
		if err := ctrl.Cancel(); err != nil {
			errLog.Printf("Cancel during shutdown: %v", err)
		}
		// Give an in-flight upload a moment to settle.
		select {
		case <-ctrl.Results():
		case <-time.After(2 * time.Second):
		}
	}
	publish()
	outLog.Println("[SHUTDOWN] Shutting down gracefully")
}

// watchCommands monitors cmd.txt and posts commands to the main loop. Uses
// fsnotify with a polling fallback so a broken watcher never strands the
// front end.
func watchCommands(cmdCh chan<- ipc.Command) {
	cmdPath := ipc.CommandPath()
	cmdDir := filepath.Dir(cmdPath)
	_ = os.MkdirAll(cmdDir, 0755)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		errLog.Printf("fsnotify not available, falling back to polling: %v", err)
		watchCommandsWithPolling(cmdPath, cmdCh)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(cmdDir); err != nil {
		errLog.Printf("Failed to watch command directory, falling back to polling: %v", err)
		watchCommandsWithPolling(cmdPath, cmdCh)
		return
	}

	outLog.Println("Command watcher started (using fsnotify)")

	// Fallback polling ticker in case fsnotify drops events.
	pollTicker := time.NewTicker(time.Second)
	defer pollTicker.Stop()

	lastCheckTime := time.Now()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				outLog.Println("fsnotify watcher closed, switching to polling")
				watchCommandsWithPolling(cmdPath, cmdCh)
				return
			}
			if event.Name == cmdPath && (event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create) {
				// Small delay to ensure the write is complete.
				time.Sleep(50 * time.Millisecond)
				if cmd, err := ipc.ReadCommand(); err == nil && cmd != "" {
					cmdCh <- cmd
					lastCheckTime = time.Now()
				}
			}

		case <-pollTicker.C:
			if fileInfo, err := os.Stat(cmdPath); err == nil && fileInfo.ModTime().After(lastCheckTime) {
				time.Sleep(50 * time.Millisecond)
				if cmd, err := ipc.ReadCommand(); err == nil && cmd != "" {
					cmdCh <- cmd
				}
				lastCheckTime = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				outLog.Println("fsnotify error channel closed, switching to polling")
				watchCommandsWithPolling(cmdPath, cmdCh)
				return
			}
			errLog.Printf("File watcher error: %v", err)
		}
	}
}

// watchCommandsWithPolling is a pure polling fallback for command monitoring.
func watchCommandsWithPolling(cmdPath string, cmdCh chan<- ipc.Command) {
	outLog.Println("Command watcher started (using polling fallback, 1s interval)")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	lastCheckTime := time.Now()

	for range ticker.C {
		fileInfo, err := os.Stat(cmdPath)
		if err != nil {
			continue
		}
		if fileInfo.ModTime().After(lastCheckTime) {
			time.Sleep(50 * time.Millisecond)
			if cmd, err := ipc.ReadCommand(); err == nil && cmd != "" {
				cmdCh <- cmd
			}
			lastCheckTime = time.Now()
		}
	}
}

// debugLogPath returns the NDJSON diagnostic log location.
func debugLogPath() string {
	if p := os.Getenv("MEDASR_LOG_PATH"); p != "" {
		return p
	}
	return "/tmp/medasr-debug.log"
}

// initLogging sets up daemon log files with size-based rotation.
func initLogging() error {
	logDir := "/tmp"
	outLogPath := filepath.Join(logDir, "medasr-core.out.log")
	errLogPath := filepath.Join(logDir, "medasr-core.err.log")

	if err := rotateLogIfNeeded(outLogPath, 10*1024*1024); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to rotate out log: %v\n", err)
	}
	if err := rotateLogIfNeeded(errLogPath, 10*1024*1024); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to rotate err log: %v\n", err)
	}

	outFile, err := os.OpenFile(outLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	errFile, err := os.OpenFile(errLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	outLog = log.New(outFile, logPrefix+" ", log.LstdFlags)
	errLog = log.New(errFile, logPrefix+" ERROR: ", log.LstdFlags)
	return nil
}

// rotateLogIfNeeded rotates a log file if it exceeds maxSize bytes.
func rotateLogIfNeeded(logPath string, maxSize int64) error {
	info, err := os.Stat(logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < maxSize {
		return nil
	}

	oldPath := logPath + ".old"
	if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove old log: %w", err)
	}
	return os.Rename(logPath, oldPath)
}
