package llm

import "strings"

// Accumulator assembles a full assistant message from streaming deltas.
// Synthetic notice events are ignored; they are not model output.
type Accumulator struct {
	// content accumulates streamed text.
	content strings.Builder
	// toolStates stores tool call data keyed by streaming index.
	toolStates map[int]*toolCallState
	// toolOrder preserves the order tool calls first appeared.
	toolOrder []int
	// finishReason stores the latest finish reason.
	finishReason string
	// usage stores token usage when provided.
	usage Usage
	// hasUsage reports whether usage was supplied.
	hasUsage bool
}

// toolCallState accumulates a single tool call delta sequence.
type toolCallState struct {
	id        string
	callType  string
	name      string
	arguments strings.Builder
}

// NewAccumulator creates an accumulator for one streaming response.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		toolStates: map[int]*toolCallState{},
	}
}

// Apply ingests a stream event and updates accumulator state.
func (acc *Accumulator) Apply(event StreamEvent) {
	if event.Notice != "" {
		return
	}
	if event.Usage != nil {
		acc.usage = *event.Usage
		acc.hasUsage = true
	}
	for _, choice := range event.Choices {
		if choice.Index != 0 {
			continue
		}
		delta := choice.Delta
		if delta.Content != "" {
			acc.content.WriteString(delta.Content)
		}
		for _, toolDelta := range delta.ToolCalls {
			state := acc.toolStates[toolDelta.Index]
			if state == nil {
				state = &toolCallState{}
				acc.toolStates[toolDelta.Index] = state
				acc.toolOrder = append(acc.toolOrder, toolDelta.Index)
			}
			if toolDelta.ID != "" {
				state.id = toolDelta.ID
			}
			if toolDelta.Type != "" {
				state.callType = toolDelta.Type
			}
			if toolDelta.Function.Name != "" {
				state.name = toolDelta.Function.Name
			}
			if toolDelta.Function.Arguments != "" {
				state.arguments.WriteString(toolDelta.Function.Arguments)
			}
		}
		if choice.FinishReason != nil {
			acc.finishReason = *choice.FinishReason
		}
	}
}

// Message returns the aggregated assistant message.
func (acc *Accumulator) Message() Message {
	return Message{
		Role:      "assistant",
		Content:   acc.content.String(),
		ToolCalls: acc.ToolCalls(),
	}
}

// ToolCalls returns tool calls in their first-seen order.
func (acc *Accumulator) ToolCalls() []ToolCall {
	calls := make([]ToolCall, 0, len(acc.toolOrder))
	for _, index := range acc.toolOrder {
		state := acc.toolStates[index]
		if state == nil {
			continue
		}
		callType := state.callType
		if callType == "" {
			callType = "function"
		}
		calls = append(calls, ToolCall{
			ID:   state.id,
			Type: callType,
			Function: ToolCallFunction{
				Name:      state.name,
				Arguments: state.arguments.String(),
			},
		})
	}
	return calls
}

// FinishReason returns the most recent finish reason.
func (acc *Accumulator) FinishReason() string {
	return acc.finishReason
}

// Usage returns the final usage and whether it was provided.
func (acc *Accumulator) Usage() (Usage, bool) {
	return acc.usage, acc.hasUsage
}
