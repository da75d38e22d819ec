package tools

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// catDefaultWindow is the number of lines shown when no end is given.
const catDefaultWindow = 1000

// CatTool reads a file, windowed by 1-indexed line numbers.
type CatTool struct{}

func (t *CatTool) Name() string {
	return "cat"
}

func (t *CatTool) Description() string {
	return "Read a file. Use start_line and end_line to read large files in chunks. Lines are 1-indexed."
}

func (t *CatTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "File to read.",
			},
			"start_line": map[string]any{
				"type":        "integer",
				"description": "First line to include, 1-indexed.",
			},
			"end_line": map[string]any{
				"type":        "integer",
				"description": "Last line to include, inclusive.",
			},
		},
		"required": []string{"path"},
	}
}

func (t *CatTool) Run(ctx context.Context, input json.RawMessage, toolCtx ToolContext) (ToolResult, error) {
	var payload struct {
		Path      string `json:"path"`
		StartLine int    `json:"start_line"`
		EndLine   int    `json:"end_line"`
	}
	if err := json.Unmarshal(input, &payload); err != nil {
		return errorResult("invalid input: %v", err), nil
	}
	if payload.StartLine < 1 {
		payload.StartLine = 1
	}

	return ToolResult{Content: readFileWindow(resolvePath(toolCtx, payload.Path), payload.StartLine, payload.EndLine)}, nil
}

// readFileWindow reads a line range from a file, flagging truncation
// when more content follows the window. Errors are reported in-band so
// the model can react to them.
func readFileWindow(path string, startLine int, endLine int) string {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fmt.Sprintf("Error: %s is not a file.", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Sprintf("Error reading file: %v", err)
	}
	defer file.Close()

	effectiveEnd := endLine
	if effectiveEnd == 0 {
		effectiveEnd = startLine + catDefaultWindow - 1
	}

	var builder strings.Builder
	truncated := false
	lineNumber := 0
	collected := 0

	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			lineNumber++
			if bytes.ContainsRune([]byte(line), 0) {
				return fmt.Sprintf("Error: %s appears to be a binary file.", path)
			}
			if lineNumber >= startLine {
				if lineNumber > effectiveEnd {
					truncated = true
					break
				}
				builder.WriteString(line)
				collected++
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Sprintf("Error reading file: %v", err)
		}
	}

	if collected == 0 {
		if startLine > 1 {
			return fmt.Sprintf("Error: file has fewer than %d lines.", startLine)
		}
		return "(empty file)"
	}

	content := builder.String()
	if truncated {
		content += fmt.Sprintf(
			"\n\n[Output truncated. Showing lines %d-%d. Use start_line and end_line to read more.]",
			startLine, effectiveEnd)
	}
	return content
}

// ReadManyFilesTool reads several files in one call.
type ReadManyFilesTool struct{}

func (t *ReadManyFilesTool) Name() string {
	return "read_many_files"
}

func (t *ReadManyFilesTool) Description() string {
	return "Read multiple files and return their contents in a structured format."
}

func (t *ReadManyFilesTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"paths": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Files to read.",
			},
		},
		"required": []string{"paths"},
	}
}

func (t *ReadManyFilesTool) Run(ctx context.Context, input json.RawMessage, toolCtx ToolContext) (ToolResult, error) {
	var payload struct {
		Paths []string `json:"paths"`
	}
	if err := json.Unmarshal(input, &payload); err != nil {
		return errorResult("invalid input: %v", err), nil
	}
	if len(payload.Paths) == 0 {
		return errorResult("paths is required"), nil
	}

	sections := make([]string, 0, len(payload.Paths))
	for _, path := range payload.Paths {
		content := readFileWindow(resolvePath(toolCtx, path), 1, 0)
		sections = append(sections, fmt.Sprintf("--- File: %s ---\n%s\n", path, content))
	}
	return ToolResult{Content: strings.Join(sections, "\n")}, nil
}
