// Package pidfile prevents duplicate daemon instances via a PID file with
// stale-process detection.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// PIDFile is a claimed PID file. Remove releases it.
type PIDFile struct {
	path string
	pid  int
}

// Acquire claims the PID file at path. It fails when another live process
// already holds it; a PID file left behind by a dead process is replaced.
func Acquire(path string) (*PIDFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create PID directory: %w", err)
	}

	if data, err := os.ReadFile(path); err == nil {
		if existing, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
			if processAlive(existing) {
				return nil, fmt.Errorf("another instance is already running (PID %d)", existing)
			}
			if err := os.Remove(path); err != nil {
				return nil, fmt.Errorf("remove stale PID file: %w", err)
			}
		}
	}

	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", pid)), 0644); err != nil {
		return nil, fmt.Errorf("write PID file: %w", err)
	}
	return &PIDFile{path: path, pid: pid}, nil
}

// Remove deletes the PID file, but only if it still contains our PID.
func (p *PIDFile) Remove() error {
	if p == nil {
		return nil
	}
	if data, err := os.ReadFile(p.path); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && pid == p.pid {
			return os.Remove(p.path)
		}
	}
	return nil
}

// Path returns the standard PID file path for a daemon name.
func Path(name string) string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "medasr", name+".pid")
}

// processAlive checks whether a process with the given PID exists. Signal 0
// performs the existence check without delivering anything.
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if err == syscall.ESRCH {
		return false
	}
	// EPERM means the process exists but belongs to another user.
	return err == syscall.EPERM
}
