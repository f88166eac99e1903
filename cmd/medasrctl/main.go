// medasrctl is the command-line front end for the medasr-core daemon. It
// posts commands through the file IPC surface and renders the daemon's
// published status.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/zameerb1/medasr/internal/config"
	"github.com/zameerb1/medasr/internal/ipc"
)

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "start":
		err = ipc.WriteCommand(ipc.CmdStart)
	case "stop":
		err = ipc.WriteCommand(ipc.CmdStop)
	case "cancel":
		err = ipc.WriteCommand(ipc.CmdCancel)
	case "health":
		err = ipc.WriteCommand(ipc.CmdHealth)
	case "quit":
		err = ipc.WriteCommand(ipc.CmdQuit)
	case "status":
		err = printStatus(len(os.Args) > 2 && os.Args[2] == "--json")
	case "config":
		err = printConfig()
	case "set-server":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: medasrctl set-server <url>")
			os.Exit(2)
		}
		err = setServer(os.Args[2])
	case "version":
		fmt.Println("medasrctl " + Version)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: medasrctl <command>

commands:
  start              begin a new dictation
  stop               finish recording and transcribe
  cancel             discard the current dictation
  health             ask the daemon to re-probe the server
  quit               shut down the daemon
  status [--json]    show the daemon's published status
  config             show the effective configuration
  set-server <url>   change the transcription server address
  version            print the medasrctl version`)
}

// printStatus renders the daemon's latest snapshot. Stale snapshots get a
// warning: the daemon publishes several times a second while running.
func printStatus(asJSON bool) error {
	status, err := ipc.ReadStatus()
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no status found; is medasr-core running?")
		}
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	fmt.Printf("state:     %s\n", status.State)
	if status.SessionID != "" {
		fmt.Printf("session:   %s\n", status.SessionID)
	}
	if status.State == ipc.StateRecording {
		fmt.Printf("duration:  %.1fs\n", status.DurationSeconds)
		fmt.Printf("level:     %s\n", levelBar(status.Level))
	}
	if status.Uploading {
		fmt.Println("uploading: yes")
	}
	if status.LastError != "" {
		fmt.Printf("error:     %s\n", status.LastError)
	}
	if status.TranscriptPath != "" {
		fmt.Printf("last text: %s\n", status.TranscriptPath)
	}
	if status.ServerHealthy != nil {
		if *status.ServerHealthy {
			fmt.Println("server:    healthy")
		} else {
			fmt.Println("server:    unreachable")
		}
	}

	age := time.Since(status.Timestamp)
	if age > 5*time.Second {
		fmt.Printf("warning:   status is %s old; daemon may be stopped\n", age.Round(time.Second))
	}
	return nil
}

// levelBar renders a normalized 0..1 input level as a 20-cell meter.
func levelBar(level float64) string {
	const cells = 20
	filled := int(level * cells)
	if filled > cells {
		filled = cells
	}
	bar := make([]byte, cells)
	for i := range bar {
		if i < filled {
			bar[i] = '#'
		} else {
			bar[i] = '-'
		}
	}
	return fmt.Sprintf("[%s] %.0f%%", bar, level*100)
}

func printConfig() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	fmt.Printf("config file:      %s\n", config.Path())
	fmt.Printf("server_url:       %s\n", cfg.ServerURL)
	fmt.Printf("request_timeout:  %ds\n", cfg.RequestTimeoutSeconds)
	fmt.Printf("health_timeout:   %ds\n", cfg.HealthTimeoutSeconds)
	fmt.Printf("sample_rate:      %d\n", cfg.SampleRate)
	fmt.Printf("recordings_dir:   %s\n", cfg.RecordingsDir)
	fmt.Printf("long_threshold:   %ds\n", cfg.LongThresholdSeconds)
	fmt.Printf("keep_audio:       %v\n", cfg.KeepAudio)
	fmt.Printf("save_transcripts: %v\n", cfg.SaveTranscripts)
	return nil
}

// setServer validates and persists a new server address. The daemon picks
// it up on next start.
func setServer(url string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.ServerURL = url
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return err
	}
	fmt.Printf("server_url set to %s (restart medasr-core to apply)\n", url)
	return nil
}
