package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pilotcli/pilot/internal/testutil"
)

// TestFindRootPrefersGit verifies .git outranks marker files.
func TestFindRootPrefersGit(testingHandle *testing.T) {
	root := testingHandle.TempDir()
	nested := filepath.Join(root, "pkg", "deep")
	testutil.RequireNoError(testingHandle, os.MkdirAll(nested, 0o755), "create nested dirs")
	testutil.RequireNoError(testingHandle, os.Mkdir(filepath.Join(root, ".git"), 0o755), "create .git")
	testutil.RequireNoError(testingHandle, os.WriteFile(filepath.Join(root, "pkg", "go.mod"), []byte("module x\n"), 0o600), "write go.mod")

	testutil.RequireEqual(testingHandle, FindRoot(nested), root, ".git root wins over go.mod")
}

// TestFindRootUsesMarkerFiles verifies marker files are a fallback.
func TestFindRootUsesMarkerFiles(testingHandle *testing.T) {
	root := testingHandle.TempDir()
	nested := filepath.Join(root, "sub")
	testutil.RequireNoError(testingHandle, os.MkdirAll(nested, 0o755), "create nested dir")
	testutil.RequireNoError(testingHandle, os.WriteFile(filepath.Join(root, "package.json"), []byte("{}\n"), 0o600), "write marker")

	testutil.RequireEqual(testingHandle, FindRoot(nested), root, "marker file locates root")
}

// TestFindRootFallsBackToStart verifies the start path is returned unmarked.
func TestFindRootFallsBackToStart(testingHandle *testing.T) {
	dir := testingHandle.TempDir()
	testutil.RequireEqual(testingHandle, FindRoot(dir), filepath.Clean(dir), "unmarked dir is its own root")
}

// TestIDIsStable verifies repeated lookups return the same short id.
func TestIDIsStable(testingHandle *testing.T) {
	testingHandle.Setenv("HOME", testingHandle.TempDir())
	root := testingHandle.TempDir()

	first, err := ID(root)
	testutil.RequireNoError(testingHandle, err, "first id lookup")
	second, err := ID(root)
	testutil.RequireNoError(testingHandle, err, "second id lookup")

	testutil.RequireEqual(testingHandle, second, first, "id stable across lookups")
	testutil.RequireEqual(testingHandle, len(first), 6, "short id length")
}

// TestIDDiffersPerProject verifies distinct roots get distinct ids.
func TestIDDiffersPerProject(testingHandle *testing.T) {
	testingHandle.Setenv("HOME", testingHandle.TempDir())

	first, err := ID(testingHandle.TempDir())
	testutil.RequireNoError(testingHandle, err, "first project id")
	second, err := ID(testingHandle.TempDir())
	testutil.RequireNoError(testingHandle, err, "second project id")

	testutil.RequireTrue(testingHandle, first != second, "ids differ per project")
}
