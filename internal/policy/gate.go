package policy

import (
	"context"
	"fmt"

	"github.com/pilotcli/pilot/internal/confirm"
)

// ErrorPayload is a structured tool-level error surfaced to the model as
// the tool's result. A nil payload means the call proceeds.
type ErrorPayload struct {
	// Error is the user-visible message explaining the block.
	Error string `json:"error"`
}

// CallContext carries per-call confirmation state across a tool dispatch.
// The runtime may re-enter the gate with a context already marked confirmed
// after a prior confirmation round-trip.
type CallContext struct {
	// confirmed marks the call as already approved by a human.
	confirmed bool
	// pendingHint records the reason of an in-flight confirmation request.
	pendingHint string
}

// NewConfirmedContext builds a context pre-approved for execution.
func NewConfirmedContext() *CallContext {
	return &CallContext{confirmed: true}
}

// Confirmed reports whether this call was already approved.
func (c *CallContext) Confirmed() bool {
	return c != nil && c.confirmed
}

// MarkConfirmed records a human approval on the context.
func (c *CallContext) MarkConfirmed() {
	if c != nil {
		c.confirmed = true
	}
}

// PendingHint returns the reason of the pending confirmation, if any.
func (c *CallContext) PendingHint() string {
	if c == nil {
		return ""
	}
	return c.pendingHint
}

// registerPending records that a human-in-the-loop step is in flight.
func (c *CallContext) registerPending(hint string) {
	if c != nil {
		c.pendingHint = hint
	}
}

// Gate is the interception point invoked before every tool execution.
// It turns a policy verdict into an actual allow/block outcome, awaiting
// human input when the verdict asks for it.
type Gate struct {
	// Engine computes the verdict for each call.
	Engine Engine
	// Confirm resolves confirm verdicts to a human decision.
	Confirm *confirm.Manager
}

// NewGate wires an engine and a confirmation manager into a gate.
func NewGate(engine Engine, manager *confirm.Manager) *Gate {
	return &Gate{Engine: engine, Confirm: manager}
}

// BeforeTool evaluates one tool call. A nil return means proceed; a
// populated payload blocks the call with that error as the tool result.
// The gate never mutates filesystem or session state.
func (g *Gate) BeforeTool(ctx context.Context, toolName string, toolArgs map[string]any, callCtx *CallContext) *ErrorPayload {
	// A prior approval short-circuits everything, including evaluation.
	if callCtx.Confirmed() {
		return nil
	}

	if g.Engine == nil {
		return &ErrorPayload{Error: "Policy denied: no policy engine configured"}
	}

	result, err := g.Engine.Evaluate(ctx, toolName, toolArgs)
	if err != nil {
		// Evaluation failures block the call rather than crash the runtime.
		return &ErrorPayload{Error: fmt.Sprintf("Policy error: %v", err)}
	}

	switch result.Outcome {
	case OutcomeAllow:
		return nil
	case OutcomeDeny:
		return &ErrorPayload{Error: "Policy denied: " + result.Reason}
	}

	// Confirm: register the pending step, then block on the channel.
	callCtx.registerPending(result.Reason)

	if g.Confirm != nil && g.Confirm.Request(ctx, confirm.Request{
		Hint:     result.Reason,
		ToolName: toolName,
		ToolArgs: toolArgs,
	}) {
		callCtx.MarkConfirmed()
		return nil
	}

	return &ErrorPayload{Error: "Confirmation required: " + result.Reason}
}
