// Package policy decides, per tool invocation, whether the call may
// proceed, must be confirmed by a human, or is refused outright.
package policy

import (
	"context"
	"fmt"
	"strings"
)

// PermissionMode is the process-wide policy stance for tool execution.
type PermissionMode string

const (
	// ModePlan confirms every mutating tool while a plan is being drafted.
	ModePlan PermissionMode = "plan"
	// ModeAuto approves every tool call unconditionally.
	ModeAuto PermissionMode = "auto"
	// ModeAsk confirms every tool call that is not read-only.
	ModeAsk PermissionMode = "ask"
)

// ParseMode maps a string to a permission mode, defaulting to ask.
func ParseMode(value string) PermissionMode {
	switch PermissionMode(strings.ToLower(strings.TrimSpace(value))) {
	case ModePlan:
		return ModePlan
	case ModeAuto:
		return ModeAuto
	default:
		return ModeAsk
	}
}

// Outcome is the verdict computed for one tool call. Never persisted.
type Outcome string

const (
	// OutcomeAllow permits the call with no side effects.
	OutcomeAllow Outcome = "allow"
	// OutcomeConfirm pauses the call for human approval.
	OutcomeConfirm Outcome = "confirm"
	// OutcomeDeny refuses the call outright.
	OutcomeDeny Outcome = "deny"
)

// CheckResult pairs a verdict with a human-readable justification.
// Reason is surfaced verbatim in confirmation prompts and is never empty.
type CheckResult struct {
	Outcome Outcome
	Reason  string
}

// Engine evaluates one tool invocation. Implementations must be
// side-effect free and safe for concurrent use.
type Engine interface {
	Evaluate(ctx context.Context, toolName string, toolArgs map[string]any) (CheckResult, error)
}

// readOnlyTools never require confirmation outside auto mode.
var readOnlyTools = map[string]struct{}{
	"ls":                {},
	"list_dir":          {},
	"cat":               {},
	"view_file":         {},
	"view_file_outline": {},
	"grep":              {},
	"grep_search":       {},
	"find":              {},
	"find_by_name":      {},
	"read_url_content":  {},
}

// IsReadOnly reports whether a tool is on the read-only allowlist.
func IsReadOnly(toolName string) bool {
	_, ok := readOnlyTools[toolName]
	return ok
}

// ModeEngine implements the core permission-mode policy. A sub-agent may
// construct its own engine with a different mode.
type ModeEngine struct {
	mode PermissionMode
}

// NewModeEngine constructs an engine for a fixed permission mode.
func NewModeEngine(mode PermissionMode) *ModeEngine {
	return &ModeEngine{mode: mode}
}

// Mode returns the engine's permission mode.
func (e *ModeEngine) Mode() PermissionMode {
	return e.mode
}

// Evaluate maps a tool call to a verdict based on mode and tool sensitivity.
// Unrecognized modes fall through to the confirm path, failing safe.
func (e *ModeEngine) Evaluate(_ context.Context, toolName string, toolArgs map[string]any) (CheckResult, error) {
	if e.mode == ModeAuto {
		return CheckResult{Outcome: OutcomeAllow, Reason: "Auto-approval mode"}, nil
	}

	if IsReadOnly(toolName) {
		return CheckResult{Outcome: OutcomeAllow, Reason: "Read-only operation"}, nil
	}

	if e.mode == ModePlan {
		return CheckResult{
			Outcome: OutcomeConfirm,
			Reason:  "Planned execution of: " + toolName + argSummary(toolArgs),
		}, nil
	}

	return CheckResult{
		Outcome: OutcomeConfirm,
		Reason:  "Sensitive tool call: " + toolName + argSummary(toolArgs),
	}, nil
}

// argSlot couples a display label with candidate argument keys.
// The first present key fills the slot; later keys are alternatives.
type argSlot struct {
	label string
	keys  []string
}

// recognizedArgs is the fixed table of argument keys worth surfacing in a
// confirmation reason. Slots are rendered in order; within a slot only the
// first present key is used.
var recognizedArgs = []argSlot{
	{label: "path", keys: []string{"path"}},
	{label: "directory", keys: []string{"directory"}},
	{label: "cmd", keys: []string{"command"}},
	{label: "pattern", keys: []string{"pattern"}},
}

// argSummary renders recognized arguments as a parenthesized suffix, for
// example " (cmd='rm -rf /')". Presentation only; never affects the verdict.
func argSummary(toolArgs map[string]any) string {
	if len(toolArgs) == 0 {
		return ""
	}

	var fragments []string
	pathSeen := false
	for _, slot := range recognizedArgs {
		// path and directory are alternatives; path wins when both exist.
		if slot.label == "directory" && pathSeen {
			continue
		}
		for _, key := range slot.keys {
			value, ok := toolArgs[key]
			if !ok {
				continue
			}
			fragments = append(fragments, fmt.Sprintf("%s='%v'", slot.label, value))
			if slot.label == "path" {
				pathSeen = true
			}
			break
		}
	}

	if len(fragments) == 0 {
		return ""
	}
	return " (" + strings.Join(fragments, ", ") + ")"
}

// DenyListEngine refuses a fixed set of tool names and allows the rest.
// It exists to be composed in front of a ModeEngine via Chain; the base
// policy itself has no deny path.
type DenyListEngine struct {
	denied map[string]struct{}
}

// NewDenyListEngine constructs a deny-list engine from tool names.
func NewDenyListEngine(toolNames []string) *DenyListEngine {
	denied := make(map[string]struct{}, len(toolNames))
	for _, name := range toolNames {
		name = strings.TrimSpace(name)
		if name != "" {
			denied[name] = struct{}{}
		}
	}
	return &DenyListEngine{denied: denied}
}

// Evaluate denies listed tools and defers to later engines otherwise.
func (e *DenyListEngine) Evaluate(_ context.Context, toolName string, _ map[string]any) (CheckResult, error) {
	if _, ok := e.denied[toolName]; ok {
		return CheckResult{Outcome: OutcomeDeny, Reason: "Blocked tool: " + toolName}, nil
	}
	return CheckResult{Outcome: OutcomeAllow, Reason: "No deny rule matched"}, nil
}

// chainEngine runs engines in order, returning the first non-allow verdict.
type chainEngine struct {
	engines []Engine
}

// Chain composes engines so earlier ones can short-circuit with confirm or
// deny while allow defers to the next. The last engine's verdict is final.
func Chain(engines ...Engine) Engine {
	return &chainEngine{engines: engines}
}

// Evaluate runs the chain.
func (c *chainEngine) Evaluate(ctx context.Context, toolName string, toolArgs map[string]any) (CheckResult, error) {
	result := CheckResult{Outcome: OutcomeAllow, Reason: "Default allow"}
	for _, engine := range c.engines {
		var err error
		result, err = engine.Evaluate(ctx, toolName, toolArgs)
		if err != nil {
			return CheckResult{}, err
		}
		if result.Outcome != OutcomeAllow {
			return result, nil
		}
	}
	return result, nil
}
