package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// maxGrepOutput bounds search output size in characters.
const maxGrepOutput = 15000

// grepExcludedDirs are noise directories skipped during searches.
var grepExcludedDirs = map[string]bool{
	".git":         true,
	".pilot":       true,
	".venv":        true,
	"venv":         true,
	"node_modules": true,
	"__pycache__":  true,
	"build":        true,
	"dist":         true,
}

// GrepTool searches files for a regular expression.
type GrepTool struct{}

func (t *GrepTool) Name() string {
	return "grep"
}

func (t *GrepTool) Description() string {
	return "Search for a pattern in files under a directory, with line numbers and optional context."
}

func (t *GrepTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "Regular expression to search for.",
			},
			"directory": map[string]any{
				"type":        "string",
				"description": "Directory to search. Defaults to the working directory.",
			},
			"recursive": map[string]any{
				"type":        "boolean",
				"description": "Descend into subdirectories. Defaults to true.",
			},
			"context_lines": map[string]any{
				"type":        "integer",
				"description": "Lines of leading and trailing context to include.",
			},
		},
		"required": []string{"pattern"},
	}
}

func (t *GrepTool) Run(ctx context.Context, input json.RawMessage, toolCtx ToolContext) (ToolResult, error) {
	payload := struct {
		Pattern      string `json:"pattern"`
		Directory    string `json:"directory"`
		Recursive    *bool  `json:"recursive"`
		ContextLines int    `json:"context_lines"`
	}{}
	if err := json.Unmarshal(input, &payload); err != nil {
		return errorResult("invalid input: %v", err), nil
	}
	if payload.Pattern == "" {
		return errorResult("pattern is required"), nil
	}
	if payload.Directory == "" {
		payload.Directory = "."
	}
	recursive := payload.Recursive == nil || *payload.Recursive

	pattern, err := regexp.Compile(payload.Pattern)
	if err != nil {
		return errorResult("Error running grep: invalid pattern: %v", err), nil
	}

	root := resolvePath(toolCtx, payload.Directory)
	var output strings.Builder
	walkErr := filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return nil
		}
		if entry.IsDir() {
			if grepExcludedDirs[entry.Name()] {
				return filepath.SkipDir
			}
			if !recursive && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		grepFile(&output, pattern, path, payload.ContextLines)
		return nil
	})
	if walkErr != nil {
		return errorResult("Error running grep: %v", walkErr), nil
	}

	result := output.String()
	if result == "" {
		return ToolResult{Content: "No matches found."}, nil
	}
	if len(result) > maxGrepOutput {
		result = result[:maxGrepOutput] +
			fmt.Sprintf("\n\n[Output truncated from %d characters to %d]", len(output.String()), maxGrepOutput)
	}
	return ToolResult{Content: result}, nil
}

// grepFile appends matching lines of one file, with optional context,
// in path:line:text form. Binary files are skipped.
func grepFile(output *strings.Builder, pattern *regexp.Regexp, path string, contextLines int) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.ContainsRune(line, 0) {
			return
		}
		lines = append(lines, line)
	}
	if scanner.Err() != nil {
		return
	}

	include := map[int]bool{}
	matched := map[int]bool{}
	for index, line := range lines {
		if !pattern.MatchString(line) {
			continue
		}
		matched[index] = true
		for offset := index - contextLines; offset <= index+contextLines; offset++ {
			if offset >= 0 && offset < len(lines) {
				include[offset] = true
			}
		}
	}
	if len(include) == 0 {
		return
	}

	indices := make([]int, 0, len(include))
	for index := range include {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	for _, index := range indices {
		separator := ":"
		if !matched[index] {
			separator = "-"
		}
		fmt.Fprintf(output, "%s%s%d%s%s\n", path, separator, index+1, separator, lines[index])
	}
}
