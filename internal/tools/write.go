package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteFileTool creates or overwrites a file.
type WriteFileTool struct{}

func (t *WriteFileTool) Name() string {
	return "write_file"
}

func (t *WriteFileTool) Description() string {
	return "Create or overwrite a file with the given content. Parent directories are created."
}

func (t *WriteFileTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "File to write.",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Full file content.",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Run(ctx context.Context, input json.RawMessage, toolCtx ToolContext) (ToolResult, error) {
	var payload struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(input, &payload); err != nil {
		return errorResult("invalid input: %v", err), nil
	}
	if payload.Path == "" {
		return errorResult("path is required"), nil
	}

	resolved := resolvePath(toolCtx, payload.Path)
	if dir := filepath.Dir(resolved); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errorResult("Error writing file: %v", err), nil
		}
	}
	if err := os.WriteFile(resolved, []byte(payload.Content), 0o644); err != nil {
		return errorResult("Error writing file: %v", err), nil
	}
	return ToolResult{Content: "Successfully wrote to " + payload.Path}, nil
}

// EditFileTool replaces one unique block of text in a file.
type EditFileTool struct{}

func (t *EditFileTool) Name() string {
	return "edit_file"
}

func (t *EditFileTool) Description() string {
	return "Replace a unique block of text in a file. The search text must match exactly once."
}

func (t *EditFileTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "File to edit.",
			},
			"search_text": map[string]any{
				"type":        "string",
				"description": "Exact text to find. Must occur exactly once.",
			},
			"replacement_text": map[string]any{
				"type":        "string",
				"description": "Text to substitute for the match.",
			},
		},
		"required": []string{"path", "search_text", "replacement_text"},
	}
}

func (t *EditFileTool) Run(ctx context.Context, input json.RawMessage, toolCtx ToolContext) (ToolResult, error) {
	var payload struct {
		Path            string `json:"path"`
		SearchText      string `json:"search_text"`
		ReplacementText string `json:"replacement_text"`
	}
	if err := json.Unmarshal(input, &payload); err != nil {
		return errorResult("invalid input: %v", err), nil
	}

	resolved := resolvePath(toolCtx, payload.Path)
	raw, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return errorResult("Error: File not found at %s", payload.Path), nil
		}
		return errorResult("Error editing file: %v", err), nil
	}
	content := string(raw)

	occurrences := strings.Count(content, payload.SearchText)
	if occurrences == 0 {
		return errorResult(
			"Error: search_text not found in %s. Ensure the text matches exactly, including whitespace and indentation.",
			payload.Path), nil
	}
	if occurrences > 1 {
		return errorResult(
			"Error: search_text found %d times in %s. Please provide a more unique block (include surrounding lines) to target the edit.",
			occurrences, payload.Path), nil
	}

	updated := strings.Replace(content, payload.SearchText, payload.ReplacementText, 1)
	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return errorResult("Error editing file: %v", err), nil
	}

	added := countLines(payload.ReplacementText)
	removed := countLines(payload.SearchText)
	return ToolResult{Content: fmt.Sprintf("Successfully edited %s (+%d -%d)", payload.Path, added, removed)}, nil
}

// countLines counts text lines without counting a trailing newline as an
// extra empty line.
func countLines(text string) int {
	if text == "" {
		return 0
	}
	return strings.Count(strings.TrimSuffix(text, "\n"), "\n") + 1
}
