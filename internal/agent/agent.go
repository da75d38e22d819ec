// Package agent drives the streaming conversation loop: model calls,
// tool dispatch behind the policy gate, and turn accounting.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pilotcli/pilot/internal/config"
	"github.com/pilotcli/pilot/internal/llm"
	"github.com/pilotcli/pilot/internal/policy"
	"github.com/pilotcli/pilot/internal/tools"
)

var (
	// ErrMaxTurns is returned when a run hits its turn limit.
	ErrMaxTurns = errors.New("max turns exceeded")
	// ErrMaxBudget is returned when estimated cost exceeds the budget.
	ErrMaxBudget = errors.New("budget exceeded")
)

// ToolEvent captures tool call/result events for streaming output.
type ToolEvent struct {
	// Type is either "tool_call" or "tool_result".
	Type string `json:"type"`
	// ToolName is the function name, if available.
	ToolName string `json:"tool_name,omitempty"`
	// ToolID associates tool results with calls.
	ToolID string `json:"tool_id,omitempty"`
	// Arguments stores serialized tool arguments.
	Arguments json.RawMessage `json:"arguments,omitempty"`
	// Result stores tool output content.
	Result string `json:"result,omitempty"`
	// IsError indicates whether the tool result represents a failure.
	IsError bool `json:"is_error,omitempty"`
	// Blocked indicates the call was stopped by policy or denial.
	Blocked bool `json:"blocked,omitempty"`
}

// RunResult captures the outcome of a single user turn.
type RunResult struct {
	// Messages is the full conversation history.
	Messages []llm.Message
	// Final is the last assistant message in the turn.
	Final llm.Message
	// Usage reports token counts for the last call.
	Usage llm.Usage
	// TotalUsage accumulates usage across all calls in the run.
	TotalUsage llm.Usage
	// Events contains tool call and result events.
	Events []ToolEvent
	// NumTurns counts completed model calls.
	NumTurns int
	// CostUSD is the accumulated estimated cost for the run.
	CostUSD float64
	// Duration is the wall-clock time of the run.
	Duration time.Duration
}

// StreamCallbacks wires streaming lifecycle hooks.
type StreamCallbacks struct {
	// OnStreamStart fires before each streaming request.
	OnStreamStart func(model string) error
	// OnStreamEvent receives raw stream events, including synthetic
	// transport notices.
	OnStreamEvent func(event llm.StreamEvent) error
	// OnStreamComplete fires after the assistant message is assembled.
	OnStreamComplete func(summary StreamSummary) error
	// OnToolResult fires after a tool result is appended to messages.
	OnToolResult func(event ToolEvent, message llm.Message) error
}

// StreamSummary captures metadata for a completed streaming response.
type StreamSummary struct {
	// Message is the completed assistant message.
	Message llm.Message
	// Usage reports token usage when available.
	Usage llm.Usage
	// HasUsage reports whether Usage was populated.
	HasUsage bool
	// FinishReason is the provider finish reason.
	FinishReason string
	// Model is the model identifier for the call.
	Model string
}

// Runner executes the agent loop.
type Runner struct {
	// Client executes streaming chat requests.
	Client llm.Streamer
	// ToolRunner dispatches tool calls.
	ToolRunner *tools.Runner
	// ToolContext provides filesystem context to tools.
	ToolContext tools.ToolContext
	// Gate intercepts every tool call before execution.
	Gate *policy.Gate
	// MaxTurns limits the number of tool-assisted turns.
	MaxTurns int
	// Pricing provides per-model costs for budget tracking.
	Pricing map[string]config.ModelPricing
	// MaxBudgetUSD enforces a ceiling on estimated cost.
	MaxBudgetUSD float64
}

// Run executes a single user turn using streaming responses.
func (r *Runner) Run(
	ctx context.Context,
	messages []llm.Message,
	systemPrompt string,
	model string,
	callbacks *StreamCallbacks,
) (*RunResult, error) {
	if r.Client == nil {
		return nil, errors.New("client is required")
	}
	maxTurns := r.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 8
	}

	if systemPrompt != "" {
		messages = prependSystem(messages, systemPrompt)
	}

	result := &RunResult{Messages: messages}
	startTime := time.Now()

	for turn := 0; turn < maxTurns; turn++ {
		req := &llm.ChatRequest{
			Model:    model,
			Messages: result.Messages,
		}
		if r.ToolRunner != nil {
			req.Tools = r.ToolRunner.ToolSpecs()
			req.ToolChoice = "auto"
		}

		if callbacks != nil && callbacks.OnStreamStart != nil {
			if err := callbacks.OnStreamStart(model); err != nil {
				return nil, fmt.Errorf("stream start callback: %w", err)
			}
		}

		accumulator := llm.NewAccumulator()
		err := r.Client.StreamChat(ctx, req, func(event llm.StreamEvent) error {
			accumulator.Apply(event)
			if callbacks != nil && callbacks.OnStreamEvent != nil {
				if err := callbacks.OnStreamEvent(event); err != nil {
					return fmt.Errorf("stream event callback: %w", err)
				}
			}
			return nil
		})
		if err != nil {
			result.Duration = time.Since(startTime)
			return nil, fmt.Errorf("stream request: %w", err)
		}

		message := accumulator.Message()
		usage, hasUsage := accumulator.Usage()

		result.Usage = usage
		if hasUsage {
			accumulateUsage(&result.TotalUsage, usage)
		}
		result.Messages = append(result.Messages, message)
		result.Final = message
		result.NumTurns++
		result.CostUSD += estimateCost(model, usage, r.Pricing)
		if r.MaxBudgetUSD > 0 && result.CostUSD > r.MaxBudgetUSD {
			result.Duration = time.Since(startTime)
			return result, fmt.Errorf("%w: %.4f > %.4f", ErrMaxBudget, result.CostUSD, r.MaxBudgetUSD)
		}

		if callbacks != nil && callbacks.OnStreamComplete != nil {
			if err := callbacks.OnStreamComplete(StreamSummary{
				Message:      message,
				Usage:        usage,
				HasUsage:     hasUsage,
				FinishReason: accumulator.FinishReason(),
				Model:        model,
			}); err != nil {
				return nil, fmt.Errorf("stream complete callback: %w", err)
			}
		}

		if len(message.ToolCalls) == 0 || r.ToolRunner == nil {
			result.Duration = time.Since(startTime)
			return result, nil
		}

		for _, call := range message.ToolCalls {
			if err := r.dispatchToolCall(ctx, call, result, callbacks); err != nil {
				result.Duration = time.Since(startTime)
				return nil, err
			}
		}
	}

	result.Duration = time.Since(startTime)
	return result, ErrMaxTurns
}

// dispatchToolCall gates and executes one tool call, appending its
// result message to the conversation. Blocks and tool failures are fed
// back to the model as tool results, never raised as run errors.
func (r *Runner) dispatchToolCall(
	ctx context.Context,
	call llm.ToolCall,
	result *RunResult,
	callbacks *StreamCallbacks,
) error {
	args := json.RawMessage(call.Function.Arguments)
	result.Events = append(result.Events, ToolEvent{
		Type:      "tool_call",
		ToolName:  call.Function.Name,
		ToolID:    call.ID,
		Arguments: args,
	})

	toolResult, blocked := r.executeGated(ctx, call.Function.Name, args)

	resultEvent := ToolEvent{
		Type:     "tool_result",
		ToolName: call.Function.Name,
		ToolID:   call.ID,
		Result:   toolResult.Content,
		IsError:  toolResult.IsError,
		Blocked:  blocked,
	}
	result.Events = append(result.Events, resultEvent)

	toolMessage := llm.Message{
		Role:       "tool",
		ToolCallID: call.ID,
		Content:    toolResult.Content,
	}
	result.Messages = append(result.Messages, toolMessage)

	if callbacks != nil && callbacks.OnToolResult != nil {
		if err := callbacks.OnToolResult(resultEvent, toolMessage); err != nil {
			return fmt.Errorf("tool result callback: %w", err)
		}
	}
	return nil
}

// executeGated runs one tool call through the policy gate. A blocked
// call returns the gate's payload as the tool result.
func (r *Runner) executeGated(ctx context.Context, toolName string, args json.RawMessage) (tools.ToolResult, bool) {
	if r.Gate != nil {
		var argsMap map[string]any
		// Unparseable arguments still reach the gate with no metadata.
		_ = json.Unmarshal(args, &argsMap)

		callCtx := &policy.CallContext{}
		if payload := r.Gate.BeforeTool(ctx, toolName, argsMap, callCtx); payload != nil {
			encoded, err := json.Marshal(payload)
			if err != nil {
				encoded = []byte(fmt.Sprintf(`{"error":%q}`, payload.Error))
			}
			return tools.ToolResult{Content: string(encoded), IsError: true}, true
		}
	}

	toolResult, err := r.ToolRunner.Run(ctx, toolName, args, r.ToolContext)
	if err != nil {
		return tools.ToolResult{IsError: true, Content: err.Error()}, false
	}
	return toolResult, false
}

// prependSystem injects a system message at the start of the conversation.
func prependSystem(messages []llm.Message, prompt string) []llm.Message {
	if len(messages) > 0 && messages[0].Role == "system" {
		messages[0].Content = messages[0].Content + "\n\n" + prompt
		return messages
	}
	system := llm.Message{Role: "system", Content: prompt}
	return append([]llm.Message{system}, messages...)
}

// accumulateUsage adds usage counts into a running total.
func accumulateUsage(total *llm.Usage, usage llm.Usage) {
	total.PromptTokens += usage.PromptTokens
	total.CompletionTokens += usage.CompletionTokens
	total.TotalTokens += usage.TotalTokens
}

// estimateCost computes cost using pricing per million tokens.
func estimateCost(model string, usage llm.Usage, pricing map[string]config.ModelPricing) float64 {
	if pricing == nil {
		return 0
	}
	price, ok := pricing[model]
	if !ok {
		return 0
	}
	input := float64(usage.PromptTokens) / 1_000_000
	output := float64(usage.CompletionTokens) / 1_000_000
	return input*price.InputPer1M + output*price.OutputPer1M
}
