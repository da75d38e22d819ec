package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	// maxCommandOutput bounds combined stdout/stderr in characters.
	maxCommandOutput = 10000
	// commandTimeout bounds command execution time.
	commandTimeout = 300 * time.Second
)

// BashTool runs shell commands with bounded output and a timeout.
type BashTool struct{}

func (t *BashTool) Name() string {
	return "bash"
}

func (t *BashTool) Description() string {
	return "Execute a shell command and return the combined stdout and stderr."
}

func (t *BashTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Shell command to execute.",
			},
			"cwd": map[string]any{
				"type":        "string",
				"description": "Working directory for the command.",
			},
		},
		"required": []string{"command"},
	}
}

func (t *BashTool) Run(ctx context.Context, input json.RawMessage, toolCtx ToolContext) (ToolResult, error) {
	var payload struct {
		Command string `json:"command"`
		CWD     string `json:"cwd"`
	}
	if err := json.Unmarshal(input, &payload); err != nil {
		return errorResult("invalid input: %v", err), nil
	}
	if strings.TrimSpace(payload.Command) == "" {
		return errorResult("command is required"), nil
	}

	workingDir := toolCtx.CWD
	if payload.CWD != "" {
		workingDir = resolvePath(toolCtx, payload.CWD)
	}

	runCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "bash", "-c", payload.Command)
	cmd.Dir = workingDir

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return errorResult("Error: Command timed out after %d seconds.", int(commandTimeout.Seconds())), nil
	}

	combined := stdout.String()
	if stderr.Len() > 0 {
		combined += "\n--- STDERR ---\n" + stderr.String()
	}

	if runErr != nil {
		result := fmt.Sprintf("Error executing command: %v", runErr)
		if strings.TrimSpace(combined) != "" {
			result += "\n" + truncateOutput(combined)
		}
		return ToolResult{IsError: true, Content: result}, nil
	}

	if strings.TrimSpace(combined) == "" {
		return ToolResult{Content: "Command executed successfully with no output."}, nil
	}
	return ToolResult{Content: truncateOutput(combined)}, nil
}

// truncateOutput caps command output, noting the original size.
func truncateOutput(output string) string {
	if len(output) <= maxCommandOutput {
		return output
	}
	return output[:maxCommandOutput] +
		fmt.Sprintf("\n\n[Output truncated from %d characters to %d]", len(output), maxCommandOutput)
}
