//go:build windows

package sessionlock

import (
	"os"

	"golang.org/x/sys/windows"
)

// tryLockFile takes an exclusive lock on the first byte of the file without
// waiting. LOCKFILE_FAIL_IMMEDIATELY turns a held lock into an error instead
// of a block, matching the non-blocking flock behavior on unix.
func tryLockFile(file *os.File) error {
	var overlapped windows.Overlapped
	return windows.LockFileEx(windows.Handle(file.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, 1, 0, &overlapped)
}

// unlockFile releases the byte range locked by tryLockFile.
func unlockFile(file *os.File) error {
	var overlapped windows.Overlapped
	return windows.UnlockFileEx(windows.Handle(file.Fd()), 0, 1, 0, &overlapped)
}

// isProcessRunning checks whether a pid is alive by opening the process.
func isProcessRunning(pid int) (bool, string) {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false, "process not found"
	}
	windows.CloseHandle(handle)
	return true, ""
}
