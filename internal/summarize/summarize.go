// Package summarize renders short human-readable descriptions of tool
// calls and their results for status lines and confirmation prompts.
package summarize

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// CallFunc renders a summary of what a tool is about to do.
type CallFunc func(args map[string]any) string

// ResultFunc renders a summary of what a tool achieved.
type ResultFunc func(args map[string]any, result string) string

// callFormatters maps tool names to call summary formatters.
var callFormatters = map[string]CallFunc{
	"cat":             catCall,
	"edit_file":       editFileCall,
	"write_file":      writeFileCall,
	"ls":              lsCall,
	"bash":            bashCall,
	"grep":            grepCall,
	"read_many_files": readManyFilesCall,
}

// resultFormatters maps tool names to result summary formatters.
var resultFormatters = map[string]ResultFunc{
	"cat":        catResult,
	"edit_file":  editFileResult,
	"write_file": writeFileResult,
	"ls":         lsResult,
	"bash":       bashResult,
	"grep":       grepResult,
}

// RegisterCall installs or replaces a call formatter for a tool.
func RegisterCall(toolName string, formatter CallFunc) {
	callFormatters[toolName] = formatter
}

// RegisterResult installs or replaces a result formatter for a tool.
func RegisterResult(toolName string, formatter ResultFunc) {
	resultFormatters[toolName] = formatter
}

// Call returns a one-line summary of what a tool is about to do.
func Call(toolName string, args map[string]any) string {
	if formatter, ok := callFormatters[toolName]; ok {
		return formatter(args)
	}
	return "Executing " + toolName
}

// Result returns a one-line summary of what a tool achieved.
func Result(toolName string, args map[string]any, result string) string {
	if formatter, ok := resultFormatters[toolName]; ok {
		return formatter(args, result)
	}
	return "Done"
}

// stringArg fetches a string argument with a fallback.
func stringArg(args map[string]any, key string, fallback string) string {
	if value, ok := args[key].(string); ok && value != "" {
		return value
	}
	return fallback
}

// intArg fetches a numeric argument, tolerating JSON float decoding.
func intArg(args map[string]any, key string) (int, bool) {
	switch value := args[key].(type) {
	case int:
		return value, true
	case float64:
		return int(value), true
	}
	return 0, false
}

// firstCommandLine returns the first line of a shell command, trimmed to
// a display width of 50 characters.
func firstCommandLine(args map[string]any) string {
	command := strings.TrimSpace(stringArg(args, "command", ""))
	if command == "" {
		return ""
	}
	line := strings.SplitN(command, "\n", 2)[0]
	if len(line) > 50 {
		line = line[:47] + "..."
	}
	return line
}

func catCall(args map[string]any) string {
	path := stringArg(args, "path", "unknown file")
	start, hasStart := intArg(args, "start_line")
	if !hasStart {
		start = 1
	}
	if end, ok := intArg(args, "end_line"); ok {
		return fmt.Sprintf("Reading %s (lines %d-%d)", filepath.Base(path), start, end)
	}
	return fmt.Sprintf("Reading %s (starting at line %d)", filepath.Base(path), start)
}

func editFileCall(args map[string]any) string {
	return "Editing " + filepath.Base(stringArg(args, "path", "unknown file"))
}

func writeFileCall(args map[string]any) string {
	return "Writing " + filepath.Base(stringArg(args, "path", "unknown file"))
}

func lsCall(args map[string]any) string {
	return "Listing " + stringArg(args, "directory", ".")
}

func bashCall(args map[string]any) string {
	return "Running bash: " + firstCommandLine(args)
}

func grepCall(args map[string]any) string {
	pattern := stringArg(args, "pattern", "")
	directory := stringArg(args, "directory", ".")
	return fmt.Sprintf("Searching for '%s' in %s", pattern, directory)
}

func readManyFilesCall(args map[string]any) string {
	paths, _ := args["paths"].([]any)
	if len(paths) == 1 {
		if path, ok := paths[0].(string); ok {
			return "Reading " + filepath.Base(path)
		}
	}
	return fmt.Sprintf("Reading %d files", len(paths))
}

// editDiffPattern extracts "(+N -M)" line counts from edit results.
var editDiffPattern = regexp.MustCompile(`\(\+(\d+) -(\d+)\)`)

func editFileResult(args map[string]any, result string) string {
	path := filepath.Base(stringArg(args, "path", "file"))
	if match := editDiffPattern.FindStringSubmatch(result); match != nil {
		return fmt.Sprintf("Edited %s (+%s -%s)", path, match[1], match[2])
	}
	return "Edited " + path
}

func writeFileResult(args map[string]any, result string) string {
	return "Wrote " + filepath.Base(stringArg(args, "path", "file"))
}

func catResult(args map[string]any, result string) string {
	path := filepath.Base(stringArg(args, "path", "file"))
	return fmt.Sprintf("Read %d lines from %s", countContentLines(result), path)
}

func grepResult(args map[string]any, result string) string {
	if strings.Contains(result, "No matches found") {
		return "No matches found"
	}
	if strings.Contains(result, "Error") {
		return "Grep failed"
	}
	return fmt.Sprintf("Found %d matches", countContentLines(result))
}

func lsResult(args map[string]any, result string) string {
	directory := stringArg(args, "directory", ".")
	if strings.Contains(result, "No items found") {
		return "No items found in " + directory
	}
	items := strings.Split(strings.TrimSpace(result), "\n")
	return fmt.Sprintf("Listed %d items in %s", len(items), directory)
}

func bashResult(args map[string]any, result string) string {
	command := firstCommandLine(args)
	if strings.Contains(result, "Error") {
		return fmt.Sprintf("Bash command '%s' failed", command)
	}
	return fmt.Sprintf("Command '%s' completed", command)
}

// countContentLines counts result lines, ignoring truncation markers.
func countContentLines(result string) int {
	trimmed := strings.TrimSpace(result)
	if trimmed == "" {
		return 0
	}
	count := 0
	for _, line := range strings.Split(trimmed, "\n") {
		if strings.HasPrefix(line, "[Output truncated") {
			continue
		}
		count++
	}
	return count
}
