//go:build !windows

package sessionlock

import (
	"errors"
	"os"
	"strings"
	"syscall"
)

// tryLockFile takes an exclusive, non-blocking flock on the file.
func tryLockFile(file *os.File) error {
	return syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
}

// unlockFile releases the flock held on the file.
func unlockFile(file *os.File) error {
	return syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
}

// isProcessRunning checks whether a pid is alive using signal 0.
func isProcessRunning(pid int) (bool, string) {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false, "process not found"
	}

	err = process.Signal(syscall.Signal(0))
	if err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return false, "process has finished"
		}
		// Permission errors mean the process exists but belongs to another user.
		if strings.Contains(err.Error(), "operation not permitted") {
			return true, ""
		}
		return false, "cannot signal process"
	}

	return true, ""
}
