// Package tools implements the filesystem and shell tools exposed to
// the model, with bounded output and conservative edit semantics.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pilotcli/pilot/internal/llm"
)

// ToolContext provides shared context to tool implementations.
type ToolContext struct {
	// CWD is the working directory for relative paths and commands.
	CWD string
}

// ToolResult is the result of a tool invocation.
type ToolResult struct {
	// Content holds the tool output payload.
	Content string
	// IsError reports whether the tool failed.
	IsError bool
}

// errorResult builds a failed result from a format string.
func errorResult(format string, args ...any) ToolResult {
	return ToolResult{IsError: true, Content: fmt.Sprintf(format, args...)}
}

// Tool defines a callable tool.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]any
	Run(ctx context.Context, input json.RawMessage, toolCtx ToolContext) (ToolResult, error)
}

// Runner executes tools by name.
type Runner struct {
	// Tools stores tool implementations keyed by name.
	Tools map[string]Tool
	// Order preserves the deterministic tool ordering for output payloads.
	Order []string
}

// NewRunner constructs a tool runner, de-duplicating by name.
func NewRunner(tools []Tool) *Runner {
	toolMap := make(map[string]Tool, len(tools))
	order := make([]string, 0, len(tools))
	for _, tool := range tools {
		if tool == nil {
			continue
		}
		name := tool.Name()
		if name == "" {
			continue
		}
		if _, exists := toolMap[name]; exists {
			continue
		}
		toolMap[name] = tool
		order = append(order, name)
	}
	return &Runner{Tools: toolMap, Order: order}
}

// ToolSpecs returns OpenAI-compatible tool definitions in registry order.
func (r *Runner) ToolSpecs() []llm.Tool {
	specs := make([]llm.Tool, 0, len(r.Tools))
	for _, name := range r.ToolNames() {
		tool, ok := r.Tools[name]
		if !ok {
			continue
		}
		specs = append(specs, llm.Tool{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  tool.Schema(),
			},
		})
	}
	return specs
}

// ToolNames returns the configured tool names in deterministic order.
func (r *Runner) ToolNames() []string {
	if r == nil {
		return nil
	}
	if len(r.Order) > 0 {
		names := make([]string, 0, len(r.Order))
		names = append(names, r.Order...)
		return names
	}
	if len(r.Tools) == 0 {
		return nil
	}
	names := make([]string, 0, len(r.Tools))
	for name := range r.Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes a tool by name.
func (r *Runner) Run(ctx context.Context, name string, args json.RawMessage, toolCtx ToolContext) (ToolResult, error) {
	tool, ok := r.Tools[name]
	if !ok {
		return errorResult("tool not found: %s", name), nil
	}
	return tool.Run(ctx, args, toolCtx)
}

// Filter applies allow/deny constraints to a tool list. An empty allow
// list permits everything.
func Filter(tools []Tool, allowed []string, denied []string) []Tool {
	allowedSet := toNameSet(allowed)
	deniedSet := toNameSet(denied)

	var filtered []Tool
	for _, tool := range tools {
		name := tool.Name()
		if len(allowedSet) > 0 && !allowedSet[name] {
			continue
		}
		if deniedSet[name] {
			continue
		}
		filtered = append(filtered, tool)
	}
	return filtered
}

func toNameSet(names []string) map[string]bool {
	set := make(map[string]bool)
	for _, name := range names {
		if name == "" {
			continue
		}
		set[name] = true
	}
	return set
}

// DefaultTools returns the built-in tool set.
func DefaultTools() []Tool {
	return []Tool{
		&LsTool{},
		&CatTool{},
		&ReadManyFilesTool{},
		&WriteFileTool{},
		&EditFileTool{},
		&GrepTool{},
		&BashTool{},
	}
}
