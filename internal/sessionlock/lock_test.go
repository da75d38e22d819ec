package sessionlock

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/pilotcli/pilot/internal/testutil"
)

// deadPID is assumed to never belong to a live process during tests.
const deadPID = 999999

// TestAcquireRelease verifies the basic lock lifecycle.
func TestAcquireRelease(testingHandle *testing.T) {
	testingHandle.Setenv("HOME", testingHandle.TempDir())

	lock, err := Acquire("alpha")
	testutil.RequireNoError(testingHandle, err, "acquire lock")
	testutil.RequireEqual(testingHandle, lock.SessionID(), "alpha", "session id recorded")

	path, err := Path("alpha")
	testutil.RequireNoError(testingHandle, err, "lock path")
	raw, err := os.ReadFile(path)
	testutil.RequireNoError(testingHandle, err, "read lock file")
	testutil.RequireEqual(testingHandle, string(raw), strconv.Itoa(os.Getpid()), "lock file holds our pid")

	testutil.RequireTrue(testingHandle, IsLocked("alpha"), "session reported locked")

	testutil.RequireNoError(testingHandle, lock.Release(), "release lock")
	testutil.RequireFalse(testingHandle, IsLocked("alpha"), "session unlocked after release")

	_, statErr := os.Stat(path)
	testutil.RequireTrue(testingHandle, os.IsNotExist(statErr), "lock file removed on release")
}

// TestAcquireWhileHeldFails verifies a second acquire raises session busy.
func TestAcquireWhileHeldFails(testingHandle *testing.T) {
	testingHandle.Setenv("HOME", testingHandle.TempDir())

	lock, err := Acquire("beta")
	testutil.RequireNoError(testingHandle, err, "first acquire")
	defer lock.Release()

	_, err = Acquire("beta")
	testutil.RequireErrorIs(testingHandle, err, ErrSessionBusy, "second acquire refused")
}

// TestStaleLockIsReclaimed verifies a dead-pid lock file is treated as free.
func TestStaleLockIsReclaimed(testingHandle *testing.T) {
	testingHandle.Setenv("HOME", testingHandle.TempDir())

	path, err := Path("gamma")
	testutil.RequireNoError(testingHandle, err, "lock path")
	testutil.RequireNoError(testingHandle, os.MkdirAll(filepath.Dir(path), 0o755), "create lock dir")
	testutil.RequireNoError(testingHandle, os.WriteFile(path, []byte(strconv.Itoa(deadPID)), 0o644), "write stale lock")

	testutil.RequireFalse(testingHandle, IsLocked("gamma"), "stale lock reads as unlocked")

	lock, err := Acquire("gamma")
	testutil.RequireNoError(testingHandle, err, "stale lock reclaimed")
	testutil.RequireNoError(testingHandle, lock.Release(), "release reclaimed lock")
}

// TestIsLockedUnparseableFile verifies garbage content reads as unlocked.
func TestIsLockedUnparseableFile(testingHandle *testing.T) {
	testingHandle.Setenv("HOME", testingHandle.TempDir())

	path, err := Path("delta")
	testutil.RequireNoError(testingHandle, err, "lock path")
	testutil.RequireNoError(testingHandle, os.MkdirAll(filepath.Dir(path), 0o755), "create lock dir")
	testutil.RequireNoError(testingHandle, os.WriteFile(path, []byte("not-a-pid"), 0o644), "write garbage lock")

	testutil.RequireFalse(testingHandle, IsLocked("delta"), "garbage lock reads as unlocked")
}

// TestReleaseIsIdempotent verifies releasing twice is harmless.
func TestReleaseIsIdempotent(testingHandle *testing.T) {
	testingHandle.Setenv("HOME", testingHandle.TempDir())

	lock, err := Acquire("epsilon")
	testutil.RequireNoError(testingHandle, err, "acquire lock")

	testutil.RequireNoError(testingHandle, lock.Release(), "first release")
	testutil.RequireNoError(testingHandle, lock.Release(), "second release")
}

// TestReleaseToleratesMissingFile verifies release after external removal.
func TestReleaseToleratesMissingFile(testingHandle *testing.T) {
	testingHandle.Setenv("HOME", testingHandle.TempDir())

	lock, err := Acquire("zeta")
	testutil.RequireNoError(testingHandle, err, "acquire lock")

	path, err := Path("zeta")
	testutil.RequireNoError(testingHandle, err, "lock path")
	testutil.RequireNoError(testingHandle, os.Remove(path), "remove lock file externally")

	testutil.RequireNoError(testingHandle, lock.Release(), "release tolerates missing file")
}
