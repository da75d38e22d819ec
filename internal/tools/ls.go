package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// resolvePath interprets a tool path against the tool working directory.
func resolvePath(toolCtx ToolContext, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if toolCtx.CWD == "" {
		return path
	}
	return filepath.Join(toolCtx.CWD, path)
}

// LsTool lists directory entries, marking directories with a slash.
type LsTool struct{}

func (t *LsTool) Name() string {
	return "ls"
}

func (t *LsTool) Description() string {
	return "List the files and directories at a path. Directories carry a trailing slash."
}

func (t *LsTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"directory": map[string]any{
				"type":        "string",
				"description": "Directory to list. Defaults to the working directory.",
			},
			"show_hidden": map[string]any{
				"type":        "boolean",
				"description": "Include entries starting with a dot.",
			},
		},
	}
}

func (t *LsTool) Run(ctx context.Context, input json.RawMessage, toolCtx ToolContext) (ToolResult, error) {
	var payload struct {
		Directory  string `json:"directory"`
		ShowHidden bool   `json:"show_hidden"`
	}
	if err := json.Unmarshal(input, &payload); err != nil {
		return errorResult("invalid input: %v", err), nil
	}
	if payload.Directory == "" {
		payload.Directory = "."
	}

	entries, err := os.ReadDir(resolvePath(toolCtx, payload.Directory))
	if err != nil {
		return errorResult("Error listing directory: %v", err), nil
	}

	items := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !payload.ShowHidden && strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if entry.IsDir() {
			items = append(items, entry.Name()+"/")
			continue
		}
		items = append(items, entry.Name())
	}
	sort.Strings(items)

	if len(items) == 0 {
		return ToolResult{Content: "No items found."}, nil
	}
	return ToolResult{Content: strings.Join(items, "\n")}, nil
}
