// Package llm talks to an OpenAI-compatible chat gateway, streaming
// responses and retrying rate-limited calls with backoff.
package llm

// ChatRequest is an OpenAI-compatible chat/completions request.
type ChatRequest struct {
	// Model is the provider model identifier.
	Model string `json:"model"`
	// Messages is the ordered conversation history.
	Messages []Message `json:"messages"`
	// Tools advertises available tool functions.
	Tools []Tool `json:"tools,omitempty"`
	// ToolChoice directs tool usage (e.g., "auto").
	ToolChoice any `json:"tool_choice,omitempty"`
	// Stream toggles server-sent events in the response.
	Stream bool `json:"stream,omitempty"`
	// MaxTokens limits the model output, if supported by the backend.
	MaxTokens *int `json:"max_tokens,omitempty"`
}

// Message represents one chat message.
type Message struct {
	// Role is one of system, user, assistant, or tool.
	Role string `json:"role"`
	// Content carries message text.
	Content string `json:"content,omitempty"`
	// ToolCalls lists tool invocations requested by the assistant.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID associates a tool response to a prior call.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// Tool describes a callable function for the model.
type Tool struct {
	// Type must be "function" for OpenAI-compatible tools.
	Type string `json:"type"`
	// Function describes the callable function contract.
	Function ToolFunction `json:"function"`
}

// ToolFunction defines a function for tool calling.
type ToolFunction struct {
	// Name is the unique identifier for the function.
	Name string `json:"name"`
	// Description provides a natural language summary.
	Description string `json:"description,omitempty"`
	// Parameters is a JSON Schema object describing inputs.
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	// ID is the unique tool call id.
	ID string `json:"id"`
	// Type is the tool type, typically "function".
	Type string `json:"type"`
	// Function includes the name and serialized arguments.
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction is the function call payload.
type ToolCallFunction struct {
	// Name identifies which tool to invoke.
	Name string `json:"name"`
	// Arguments contains a JSON string to be parsed by the tool.
	Arguments string `json:"arguments"`
}

// Usage reports token counts for a completed call.
type Usage struct {
	// PromptTokens counts input tokens.
	PromptTokens int `json:"prompt_tokens"`
	// CompletionTokens counts output tokens.
	CompletionTokens int `json:"completion_tokens"`
	// TotalTokens is the sum of prompt and completion tokens.
	TotalTokens int `json:"total_tokens"`
}

// StreamEvent is one parsed SSE payload from the gateway, or a synthetic
// transport notification when Notice is set.
type StreamEvent struct {
	// ID is the provider request id.
	ID string `json:"id,omitempty"`
	// Model is the model identifier for the stream.
	Model string `json:"model,omitempty"`
	// Choices carries incremental delta updates.
	Choices []StreamChoice `json:"choices,omitempty"`
	// Usage reports tokens in the final stream payload.
	Usage *Usage `json:"usage,omitempty"`
	// Notice carries transport status text (for example backoff waits).
	// Synthetic events never count as model output.
	Notice string `json:"-"`
}

// StreamChoice represents a streaming choice delta.
type StreamChoice struct {
	// Index is the choice index.
	Index int `json:"index"`
	// Delta holds the incremental message update.
	Delta StreamDelta `json:"delta"`
	// FinishReason signals why generation stopped.
	FinishReason *string `json:"finish_reason,omitempty"`
}

// StreamDelta represents incremental message content.
type StreamDelta struct {
	// Role sets the assistant role on the first delta.
	Role string `json:"role,omitempty"`
	// Content holds streamed text.
	Content string `json:"content,omitempty"`
	// ToolCalls streams tool call metadata and arguments.
	ToolCalls []StreamToolCallDelta `json:"tool_calls,omitempty"`
}

// StreamToolCallDelta represents incremental tool call data.
type StreamToolCallDelta struct {
	// Index identifies the tool call position.
	Index int `json:"index"`
	// ID is the tool call id.
	ID string `json:"id,omitempty"`
	// Type is the tool call type (typically "function").
	Type string `json:"type,omitempty"`
	// Function contains tool function deltas.
	Function StreamToolCallFunctionDelta `json:"function,omitempty"`
}

// StreamToolCallFunctionDelta contains incremental tool function fields.
type StreamToolCallFunctionDelta struct {
	// Name identifies the tool name.
	Name string `json:"name,omitempty"`
	// Arguments contains partial JSON argument text.
	Arguments string `json:"arguments,omitempty"`
}

// StreamHandler consumes stream events in order.
type StreamHandler func(event StreamEvent) error
