// Package lock guards a file store directory against concurrent servers.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// FileName is the lock file kept inside a store directory.
const FileName = "mapsmith.lock"

// ErrHeld is returned by Acquire when another live process owns the lock.
var ErrHeld = errors.New("store is locked by another process")

// PathFor returns the lock file path for a store directory.
func PathFor(dir string) string {
	return filepath.Join(dir, FileName)
}

// Acquire writes the current PID to path. A lock left behind by a process
// that is no longer running is taken over.
func Acquire(path string) error {
	if held, pid, err := IsHeld(path); err != nil {
		return err
	} else if held && pid != os.Getpid() {
		return fmt.Errorf("%w (PID %d)", ErrHeld, pid)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// Release removes the lock file.
func Release(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// IsHeld reports whether the lock is held by a running process, and its PID.
func IsHeld(path string) (bool, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("reading lock: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, 0, nil
	}
	return isProcessRunning(pid), pid, nil
}

func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
