package ipc

import (
	"os"
	"path/filepath"
	"strings"
)

// Command represents user commands from a front end to the daemon.
type Command string

const (
	CmdStart  Command = "start"  // begin a new dictation
	CmdStop   Command = "stop"   // finish recording and transcribe
	CmdCancel Command = "cancel" // discard the current recording
	CmdHealth Command = "health" // probe the transcription server
	CmdQuit   Command = "quit"   // shut down the daemon
)

// CommandPath returns the command file location.
func CommandPath() string {
	return filepath.Join(CacheDir(), "cmd.txt")
}

// WriteCommand writes a command for the daemon to pick up.
func WriteCommand(cmd Command) error {
	if err := os.MkdirAll(CacheDir(), 0755); err != nil {
		return err
	}
	return os.WriteFile(CommandPath(), []byte(string(cmd)), 0644)
}

// ReadCommand reads and clears the pending command. Returns empty string
// when no command is pending; unknown commands are discarded.
func ReadCommand() (Command, error) {
	data, err := os.ReadFile(CommandPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	// Clear immediately to prevent re-execution.
	if err := os.WriteFile(CommandPath(), []byte(""), 0644); err != nil {
		return "", err
	}

	cmd := Command(strings.TrimSpace(string(data)))
	switch cmd {
	case CmdStart, CmdStop, CmdCancel, CmdHealth, CmdQuit:
		return cmd, nil
	default:
		return "", nil
	}
}
