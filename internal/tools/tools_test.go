package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pilotcli/pilot/internal/testutil"
)

// runTool executes a tool with JSON-encoded args rooted at dir.
func runTool(testingHandle *testing.T, tool Tool, dir string, args map[string]any) ToolResult {
	testingHandle.Helper()
	raw, err := json.Marshal(args)
	testutil.RequireNoError(testingHandle, err, "args should marshal")
	result, err := tool.Run(context.Background(), raw, ToolContext{CWD: dir})
	testutil.RequireNoError(testingHandle, err, "tool run should not fail outright")
	return result
}

func writeTestFile(testingHandle *testing.T, dir string, name string, content string) string {
	testingHandle.Helper()
	path := filepath.Join(dir, name)
	testutil.RequireNoError(testingHandle, os.MkdirAll(filepath.Dir(path), 0o755), "test dir should create")
	testutil.RequireNoError(testingHandle, os.WriteFile(path, []byte(content), 0o644), "test file should write")
	return path
}

func TestLsSortsAndMarksDirectories(testingHandle *testing.T) {
	dir := testingHandle.TempDir()
	writeTestFile(testingHandle, dir, "beta.txt", "b")
	writeTestFile(testingHandle, dir, "alpha.txt", "a")
	writeTestFile(testingHandle, dir, ".hidden", "h")
	testutil.RequireNoError(testingHandle, os.Mkdir(filepath.Join(dir, "sub"), 0o755), "subdir should create")

	result := runTool(testingHandle, &LsTool{}, dir, map[string]any{})
	testutil.RequireFalse(testingHandle, result.IsError, "listing should succeed")
	testutil.RequireEqual(testingHandle, result.Content, "alpha.txt\nbeta.txt\nsub/", "entries sort with directory markers")

	withHidden := runTool(testingHandle, &LsTool{}, dir, map[string]any{"show_hidden": true})
	testutil.RequireStringContains(testingHandle, withHidden.Content, ".hidden", "hidden entries appear on request")
}

func TestLsEmptyDirectory(testingHandle *testing.T) {
	result := runTool(testingHandle, &LsTool{}, testingHandle.TempDir(), map[string]any{})
	testutil.RequireEqual(testingHandle, result.Content, "No items found.", "empty listing has a sentinel message")
}

func TestCatReadsWindow(testingHandle *testing.T) {
	dir := testingHandle.TempDir()
	writeTestFile(testingHandle, dir, "f.txt", "one\ntwo\nthree\nfour\n")

	full := runTool(testingHandle, &CatTool{}, dir, map[string]any{"path": "f.txt"})
	testutil.RequireEqual(testingHandle, full.Content, "one\ntwo\nthree\nfour\n", "full read returns everything")

	window := runTool(testingHandle, &CatTool{}, dir, map[string]any{"path": "f.txt", "start_line": 2, "end_line": 3})
	testutil.RequireStringContains(testingHandle, window.Content, "two\nthree", "window includes requested lines")
	testutil.RequireStringContains(testingHandle, window.Content, "[Output truncated. Showing lines 2-3.", "window flags remaining content")
	testutil.RequireFalse(testingHandle, strings.Contains(window.Content, "four"), "window excludes later lines")
}

func TestCatEdgeCases(testingHandle *testing.T) {
	dir := testingHandle.TempDir()
	writeTestFile(testingHandle, dir, "short.txt", "only\n")
	writeTestFile(testingHandle, dir, "empty.txt", "")

	beyond := runTool(testingHandle, &CatTool{}, dir, map[string]any{"path": "short.txt", "start_line": 10})
	testutil.RequireEqual(testingHandle, beyond.Content, "Error: file has fewer than 10 lines.", "reads past EOF report line count")

	empty := runTool(testingHandle, &CatTool{}, dir, map[string]any{"path": "empty.txt"})
	testutil.RequireEqual(testingHandle, empty.Content, "(empty file)", "empty files have a sentinel message")

	missing := runTool(testingHandle, &CatTool{}, dir, map[string]any{"path": "nope.txt"})
	testutil.RequireStringContains(testingHandle, missing.Content, "is not a file", "missing files report an error")

	directory := runTool(testingHandle, &CatTool{}, dir, map[string]any{"path": "."})
	testutil.RequireStringContains(testingHandle, directory.Content, "is not a file", "directories are rejected")
}

func TestReadManyFiles(testingHandle *testing.T) {
	dir := testingHandle.TempDir()
	writeTestFile(testingHandle, dir, "a.txt", "alpha\n")
	writeTestFile(testingHandle, dir, "b.txt", "beta\n")

	result := runTool(testingHandle, &ReadManyFilesTool{}, dir, map[string]any{"paths": []string{"a.txt", "b.txt", "missing.txt"}})
	testutil.RequireStringContains(testingHandle, result.Content, "--- File: a.txt ---\nalpha", "each file gets a header")
	testutil.RequireStringContains(testingHandle, result.Content, "--- File: b.txt ---\nbeta", "all files are included")
	testutil.RequireStringContains(testingHandle, result.Content, "--- File: missing.txt ---\nError:", "per-file errors stay in-band")
}

func TestWriteFileCreatesParents(testingHandle *testing.T) {
	dir := testingHandle.TempDir()

	result := runTool(testingHandle, &WriteFileTool{}, dir, map[string]any{
		"path":    "nested/deep/out.txt",
		"content": "payload",
	})
	testutil.RequireFalse(testingHandle, result.IsError, "write should succeed")
	testutil.RequireEqual(testingHandle, result.Content, "Successfully wrote to nested/deep/out.txt", "write reports the given path")

	raw, err := os.ReadFile(filepath.Join(dir, "nested", "deep", "out.txt"))
	testutil.RequireNoError(testingHandle, err, "written file should exist")
	testutil.RequireEqual(testingHandle, string(raw), "payload", "content should round-trip")
}

func TestEditFileRequiresUniqueMatch(testingHandle *testing.T) {
	dir := testingHandle.TempDir()
	writeTestFile(testingHandle, dir, "code.go", "func a() {}\nfunc b() {}\nfunc a() {}\n")

	duplicate := runTool(testingHandle, &EditFileTool{}, dir, map[string]any{
		"path": "code.go", "search_text": "func a() {}", "replacement_text": "func c() {}",
	})
	testutil.RequireTrue(testingHandle, duplicate.IsError, "ambiguous matches are rejected")
	testutil.RequireStringContains(testingHandle, duplicate.Content, "found 2 times", "error reports the occurrence count")

	missing := runTool(testingHandle, &EditFileTool{}, dir, map[string]any{
		"path": "code.go", "search_text": "func zz() {}", "replacement_text": "x",
	})
	testutil.RequireTrue(testingHandle, missing.IsError, "absent matches are rejected")
	testutil.RequireStringContains(testingHandle, missing.Content, "not found", "error says the text was not found")

	raw, err := os.ReadFile(filepath.Join(dir, "code.go"))
	testutil.RequireNoError(testingHandle, err, "file should still read")
	testutil.RequireStringContains(testingHandle, string(raw), "func a() {}", "failed edits leave the file untouched")
}

func TestEditFileReportsLineDiff(testingHandle *testing.T) {
	dir := testingHandle.TempDir()
	writeTestFile(testingHandle, dir, "notes.txt", "keep\nold line\nkeep too\n")

	result := runTool(testingHandle, &EditFileTool{}, dir, map[string]any{
		"path":             "notes.txt",
		"search_text":      "old line",
		"replacement_text": "new line one\nnew line two",
	})
	testutil.RequireFalse(testingHandle, result.IsError, "unique edits succeed")
	testutil.RequireEqual(testingHandle, result.Content, "Successfully edited notes.txt (+2 -1)", "edit reports added and removed lines")

	raw, err := os.ReadFile(filepath.Join(dir, "notes.txt"))
	testutil.RequireNoError(testingHandle, err, "file should read back")
	testutil.RequireEqual(testingHandle, string(raw), "keep\nnew line one\nnew line two\nkeep too\n", "replacement should apply once")
}

func TestEditFileMissingFile(testingHandle *testing.T) {
	result := runTool(testingHandle, &EditFileTool{}, testingHandle.TempDir(), map[string]any{
		"path": "ghost.txt", "search_text": "a", "replacement_text": "b",
	})
	testutil.RequireTrue(testingHandle, result.IsError, "missing files are an error")
	testutil.RequireStringContains(testingHandle, result.Content, "File not found", "error names the problem")
}

func TestGrepFindsMatchesWithLineNumbers(testingHandle *testing.T) {
	dir := testingHandle.TempDir()
	writeTestFile(testingHandle, dir, "a.txt", "first\nneedle here\nlast\n")
	writeTestFile(testingHandle, dir, "sub/b.txt", "another needle\n")
	writeTestFile(testingHandle, dir, ".git/ignored.txt", "needle in noise\n")
	writeTestFile(testingHandle, dir, "node_modules/dep.js", "needle in deps\n")

	result := runTool(testingHandle, &GrepTool{}, dir, map[string]any{"pattern": "needle"})
	testutil.RequireFalse(testingHandle, result.IsError, "search should succeed")
	testutil.RequireStringContains(testingHandle, result.Content, ":2:needle here", "matches carry line numbers")
	testutil.RequireStringContains(testingHandle, result.Content, "b.txt:1:another needle", "recursion reaches subdirectories")
	testutil.RequireFalse(testingHandle, strings.Contains(result.Content, "noise"), "noise directories are excluded")
	testutil.RequireFalse(testingHandle, strings.Contains(result.Content, "deps"), "dependency directories are excluded")
}

func TestGrepNoMatches(testingHandle *testing.T) {
	dir := testingHandle.TempDir()
	writeTestFile(testingHandle, dir, "a.txt", "nothing to see\n")

	result := runTool(testingHandle, &GrepTool{}, dir, map[string]any{"pattern": "absent"})
	testutil.RequireEqual(testingHandle, result.Content, "No matches found.", "no matches has a sentinel message")
}

func TestGrepContextLines(testingHandle *testing.T) {
	dir := testingHandle.TempDir()
	writeTestFile(testingHandle, dir, "a.txt", "before\nmatch\nafter\nfar away\n")

	result := runTool(testingHandle, &GrepTool{}, dir, map[string]any{"pattern": "^match$", "context_lines": 1})
	testutil.RequireStringContains(testingHandle, result.Content, "-1-before", "leading context uses dash separators")
	testutil.RequireStringContains(testingHandle, result.Content, ":2:match", "the match keeps colon separators")
	testutil.RequireStringContains(testingHandle, result.Content, "-3-after", "trailing context uses dash separators")
	testutil.RequireFalse(testingHandle, strings.Contains(result.Content, "far away"), "unrelated lines stay out")
}

func TestGrepInvalidPattern(testingHandle *testing.T) {
	result := runTool(testingHandle, &GrepTool{}, testingHandle.TempDir(), map[string]any{"pattern": "(unclosed"})
	testutil.RequireTrue(testingHandle, result.IsError, "invalid patterns are an error")
	testutil.RequireStringContains(testingHandle, result.Content, "invalid pattern", "error names the cause")
}

func TestBashCombinesOutput(testingHandle *testing.T) {
	dir := testingHandle.TempDir()

	result := runTool(testingHandle, &BashTool{}, dir, map[string]any{"command": "echo out; echo err >&2"})
	testutil.RequireFalse(testingHandle, result.IsError, "command should succeed")
	testutil.RequireStringContains(testingHandle, result.Content, "out", "stdout is captured")
	testutil.RequireStringContains(testingHandle, result.Content, "--- STDERR ---\nerr", "stderr is labeled")
}

func TestBashNoOutput(testingHandle *testing.T) {
	result := runTool(testingHandle, &BashTool{}, testingHandle.TempDir(), map[string]any{"command": "true"})
	testutil.RequireEqual(testingHandle, result.Content, "Command executed successfully with no output.", "silent success has a sentinel message")
}

func TestBashFailureKeepsOutput(testingHandle *testing.T) {
	result := runTool(testingHandle, &BashTool{}, testingHandle.TempDir(), map[string]any{"command": "echo partial; exit 3"})
	testutil.RequireTrue(testingHandle, result.IsError, "non-zero exit is an error")
	testutil.RequireStringContains(testingHandle, result.Content, "Error executing command", "error names the failure")
	testutil.RequireStringContains(testingHandle, result.Content, "partial", "captured output is preserved")
}

func TestBashRunsInWorkingDirectory(testingHandle *testing.T) {
	dir := testingHandle.TempDir()
	writeTestFile(testingHandle, dir, "marker.txt", "x")

	result := runTool(testingHandle, &BashTool{}, dir, map[string]any{"command": "ls"})
	testutil.RequireStringContains(testingHandle, result.Content, "marker.txt", "commands run in the tool working directory")
}

func TestTruncateOutput(testingHandle *testing.T) {
	long := strings.Repeat("x", maxCommandOutput+500)
	truncated := truncateOutput(long)
	testutil.RequireStringContains(testingHandle, truncated, "[Output truncated from 10500 characters to 10000]", "truncation notes the original size")
	testutil.RequireTrue(testingHandle, len(truncated) < len(long), "output shrinks")
	testutil.RequireEqual(testingHandle, truncateOutput("short"), "short", "small output passes through")
}

func TestRunnerExecutesByName(testingHandle *testing.T) {
	runner := NewRunner(DefaultTools())
	dir := testingHandle.TempDir()
	writeTestFile(testingHandle, dir, "f.txt", "hello\n")

	result, err := runner.Run(context.Background(), "cat", json.RawMessage(`{"path":"f.txt"}`), ToolContext{CWD: dir})
	testutil.RequireNoError(testingHandle, err, "run should not fail outright")
	testutil.RequireEqual(testingHandle, result.Content, "hello\n", "runner dispatches to the named tool")

	unknown, err := runner.Run(context.Background(), "nope", json.RawMessage(`{}`), ToolContext{CWD: dir})
	testutil.RequireNoError(testingHandle, err, "unknown tools resolve in-band")
	testutil.RequireTrue(testingHandle, unknown.IsError, "unknown tools are an error")
	testutil.RequireStringContains(testingHandle, unknown.Content, "tool not found: nope", "error names the tool")
}

func TestRunnerSpecsAreOrdered(testingHandle *testing.T) {
	runner := NewRunner(DefaultTools())
	specs := runner.ToolSpecs()

	wantNames := []string{"ls", "cat", "read_many_files", "write_file", "edit_file", "grep", "bash"}
	testutil.RequireEqual(testingHandle, len(specs), len(wantNames), "every default tool gets a spec")
	for i, spec := range specs {
		testutil.RequireEqual(testingHandle, spec.Function.Name, wantNames[i], "specs keep registration order")
		testutil.RequireEqual(testingHandle, spec.Type, "function", "specs are function tools")
	}
}

func TestFilterAppliesAllowAndDeny(testingHandle *testing.T) {
	filtered := Filter(DefaultTools(), nil, []string{"bash"})
	names := NewRunner(filtered).ToolNames()
	for _, name := range names {
		testutil.RequireFalse(testingHandle, name == "bash", "denied tools are removed")
	}

	onlyRead := Filter(DefaultTools(), []string{"ls", "cat"}, nil)
	testutil.RequireEqual(testingHandle, NewRunner(onlyRead).ToolNames(), []string{"ls", "cat"}, "allow lists restrict the set")
}
