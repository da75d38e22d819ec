// Package sessionlock enforces single-writer access to a conversation
// session across processes using per-session lock files.
package sessionlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pilotcli/pilot/internal/config"
)

// ErrSessionBusy reports that a live process already drives the session.
var ErrSessionBusy = errors.New("session is in use by another process")

// Lock is an acquired session lock. Release must run on every exit path.
type Lock struct {
	// sessionID identifies the locked session.
	sessionID string
	// path is the lock file location.
	path string
	// file holds the OS-level exclusive lock while open.
	file *os.File
	// released guards against double release.
	released bool
}

// Path returns the lock file path for a session id.
func Path(sessionID string) (string, error) {
	dir, err := config.GlobalDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "locks", sessionID+".lock"), nil
}

// Acquire takes the exclusive lock for a session.
// A lock file left behind by a dead process is reclaimed silently; a live
// holder yields ErrSessionBusy. The lock is never stolen from a live process.
func Acquire(sessionID string) (*Lock, error) {
	if sessionID == "" {
		return nil, errors.New("session id required")
	}
	path, err := Path(sessionID)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := tryLockFile(file); err != nil {
		file.Close()
		holder := readLockOwner(path)
		if holder > 0 {
			return nil, fmt.Errorf("%w (pid %d)", ErrSessionBusy, holder)
		}
		return nil, ErrSessionBusy
	}

	// The OS lock is ours; any pid left in the file belongs to a dead holder.
	if err := file.Truncate(0); err != nil {
		file.Close()
		return nil, fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := file.Seek(0, 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("seek lock file: %w", err)
	}
	if _, err := file.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		file.Close()
		return nil, fmt.Errorf("write lock file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, fmt.Errorf("sync lock file: %w", err)
	}

	return &Lock{sessionID: sessionID, path: path, file: file}, nil
}

// IsLocked reports whether a live process holds the session.
// A missing file, an unparseable pid, or a dead holder all count as unlocked.
func IsLocked(sessionID string) bool {
	path, err := Path(sessionID)
	if err != nil {
		return false
	}
	pid := readLockOwner(path)
	if pid <= 0 {
		return false
	}
	running, _ := isProcessRunning(pid)
	return running
}

// Release drops the OS lock and removes the lock file. Idempotent.
func (l *Lock) Release() error {
	if l == nil || l.released {
		return nil
	}
	l.released = true

	var firstErr error
	if l.file != nil {
		if err := unlockFile(l.file); err != nil {
			firstErr = fmt.Errorf("unlock file: %w", err)
		}
		if err := l.file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close lock file: %w", err)
		}
		l.file = nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) && firstErr == nil {
		firstErr = fmt.Errorf("remove lock file: %w", err)
	}
	return firstErr
}

// SessionID returns the session this lock protects.
func (l *Lock) SessionID() string {
	return l.sessionID
}

// readLockOwner parses the pid stored in a lock file, or 0.
func readLockOwner(path string) int {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}
