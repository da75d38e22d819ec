package main

import (
	"os"
	"testing"
	"time"

	"github.com/pilotcli/pilot/internal/llm"
	"github.com/pilotcli/pilot/internal/session"
	"github.com/pilotcli/pilot/internal/sessionlock"
	"github.com/pilotcli/pilot/internal/testutil"
)

// TestStaleSessionsSkipsLocked verifies gc candidates never include a
// session held by a live process.
func TestStaleSessionsSkipsLocked(testingHandle *testing.T) {
	testingHandle.Setenv("HOME", testingHandle.TempDir())
	store := session.NewStore(testingHandle.TempDir())

	for _, id := range []string{"held", "idle"} {
		testutil.RequireNoError(testingHandle,
			store.AppendMessage(id, llm.Message{Role: "user", Content: "x"}), "session should persist")
		old := time.Now().Add(-60 * 24 * time.Hour)
		testutil.RequireNoError(testingHandle,
			os.Chtimes(store.Path(id), old, old), "mtime should adjust")
	}

	lock, err := sessionlock.Acquire("held")
	testutil.RequireNoError(testingHandle, err, "acquire lock")
	defer lock.Release()

	stale, err := staleSessions(store, 30*24*time.Hour)
	testutil.RequireNoError(testingHandle, err, "stale listing")
	testutil.RequireEqual(testingHandle, stale, []string{"idle"}, "held session excluded")
}
