package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pilotcli/pilot/internal/config"
	"github.com/pilotcli/pilot/internal/llm"
	"github.com/pilotcli/pilot/internal/policy"
	"github.com/pilotcli/pilot/internal/testutil"
	"github.com/pilotcli/pilot/internal/tools"
)

// scriptedClient replays one canned streamed response per call.
type scriptedClient struct {
	// responses holds one event list per model call.
	responses [][]llm.StreamEvent
	// calls counts StreamChat invocations.
	calls int
	// requests records the request sent on each call.
	requests []*llm.ChatRequest
}

func (c *scriptedClient) StreamChat(ctx context.Context, req *llm.ChatRequest, handler llm.StreamHandler) error {
	c.requests = append(c.requests, req)
	if c.calls >= len(c.responses) {
		return nil
	}
	events := c.responses[c.calls]
	c.calls++
	for _, event := range events {
		if err := handler(event); err != nil {
			return err
		}
	}
	return nil
}

func textResponse(text string) []llm.StreamEvent {
	finish := "stop"
	return []llm.StreamEvent{
		{Choices: []llm.StreamChoice{{Delta: llm.StreamDelta{Role: "assistant", Content: text}}}},
		{
			Choices: []llm.StreamChoice{{FinishReason: &finish}},
			Usage:   &llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		},
	}
}

func toolCallResponse(callID string, toolName string, arguments string) []llm.StreamEvent {
	finish := "tool_calls"
	return []llm.StreamEvent{
		{Choices: []llm.StreamChoice{{Delta: llm.StreamDelta{ToolCalls: []llm.StreamToolCallDelta{{
			Index:    0,
			ID:       callID,
			Type:     "function",
			Function: llm.StreamToolCallFunctionDelta{Name: toolName, Arguments: arguments},
		}}}}}},
		{
			Choices: []llm.StreamChoice{{FinishReason: &finish}},
			Usage:   &llm.Usage{PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30},
		},
	}
}

func newTestRunner(client llm.Streamer, gate *policy.Gate, dir string) *Runner {
	return &Runner{
		Client:      client,
		ToolRunner:  tools.NewRunner(tools.DefaultTools()),
		ToolContext: tools.ToolContext{CWD: dir},
		Gate:        gate,
		MaxTurns:    5,
	}
}

func TestRunReturnsAssistantText(testingHandle *testing.T) {
	client := &scriptedClient{responses: [][]llm.StreamEvent{textResponse("All done.")}}
	runner := newTestRunner(client, nil, testingHandle.TempDir())

	result, err := runner.Run(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, "be helpful", "model-x", nil)
	testutil.RequireNoError(testingHandle, err, "plain text turns succeed")
	testutil.RequireEqual(testingHandle, result.Final.Content, "All done.", "final message carries the streamed text")
	testutil.RequireEqual(testingHandle, result.NumTurns, 1, "one model call was made")
	testutil.RequireEqual(testingHandle, result.Messages[0].Role, "system", "the system prompt is prepended")
	testutil.RequireEqual(testingHandle, result.Messages[0].Content, "be helpful", "the system prompt text is kept")
	testutil.RequireEqual(testingHandle, result.TotalUsage.TotalTokens, 15, "usage accumulates from the stream")
}

func TestRunExecutesToolCalls(testingHandle *testing.T) {
	dir := testingHandle.TempDir()
	client := &scriptedClient{responses: [][]llm.StreamEvent{
		toolCallResponse("call_1", "write_file", `{"path":"note.txt","content":"hello"}`),
		textResponse("Wrote the file."),
	}}
	gate := policy.NewGate(policy.NewModeEngine(policy.ModeAuto), nil)
	runner := newTestRunner(client, gate, dir)

	result, err := runner.Run(context.Background(), []llm.Message{{Role: "user", Content: "write a note"}}, "", "model-x", nil)
	testutil.RequireNoError(testingHandle, err, "tool-assisted turns succeed")
	testutil.RequireEqual(testingHandle, result.Final.Content, "Wrote the file.", "the loop continues after tool results")
	testutil.RequireEqual(testingHandle, result.NumTurns, 2, "two model calls were made")

	testutil.RequireEqual(testingHandle, len(result.Events), 2, "call and result events are recorded")
	testutil.RequireEqual(testingHandle, result.Events[1].Type, "tool_result", "the second event is the result")
	testutil.RequireFalse(testingHandle, result.Events[1].IsError, "the tool succeeded")

	// The tool result is fed back as a tool message.
	var toolMessage llm.Message
	for _, message := range result.Messages {
		if message.Role == "tool" {
			toolMessage = message
		}
	}
	testutil.RequireEqual(testingHandle, toolMessage.ToolCallID, "call_1", "tool results reference their call")
	testutil.RequireStringContains(testingHandle, toolMessage.Content, "Successfully wrote to note.txt", "tool output flows back to the model")
}

func TestRunBlockedToolBecomesToolResult(testingHandle *testing.T) {
	dir := testingHandle.TempDir()
	client := &scriptedClient{responses: [][]llm.StreamEvent{
		toolCallResponse("call_1", "bash", `{"command":"rm -rf /"}`),
		textResponse("Understood, not running that."),
	}}
	gate := policy.NewGate(policy.NewDenyListEngine([]string{"bash"}), nil)
	runner := newTestRunner(client, gate, dir)

	result, err := runner.Run(context.Background(), []llm.Message{{Role: "user", Content: "clean up"}}, "", "model-x", nil)
	testutil.RequireNoError(testingHandle, err, "a blocked tool is not a run failure")
	testutil.RequireEqual(testingHandle, result.Final.Content, "Understood, not running that.", "the model sees the block and answers")

	blocked := result.Events[1]
	testutil.RequireTrue(testingHandle, blocked.Blocked, "the result event records the block")
	testutil.RequireTrue(testingHandle, blocked.IsError, "blocked calls are error results")

	var payload struct {
		Error string `json:"error"`
	}
	testutil.RequireNoError(testingHandle, json.Unmarshal([]byte(blocked.Result), &payload), "the block payload is structured")
	testutil.RequireStringContains(testingHandle, payload.Error, "Policy denied:", "the payload explains the denial")
}

func TestRunToolFailureFeedsBack(testingHandle *testing.T) {
	dir := testingHandle.TempDir()
	client := &scriptedClient{responses: [][]llm.StreamEvent{
		toolCallResponse("call_1", "cat", `{"path":"missing.txt"}`),
		textResponse("That file does not exist."),
	}}
	runner := newTestRunner(client, policy.NewGate(policy.NewModeEngine(policy.ModeAuto), nil), dir)

	result, err := runner.Run(context.Background(), []llm.Message{{Role: "user", Content: "read it"}}, "", "model-x", nil)
	testutil.RequireNoError(testingHandle, err, "tool failures do not abort the run")
	testutil.RequireStringContains(testingHandle, result.Events[1].Result, "is not a file", "the failure text reaches the model")
}

func TestRunMaxTurns(testingHandle *testing.T) {
	// Every response requests another tool call, so the loop never ends.
	responses := make([][]llm.StreamEvent, 10)
	for i := range responses {
		responses[i] = toolCallResponse("call", "ls", `{}`)
	}
	client := &scriptedClient{responses: responses}
	runner := newTestRunner(client, policy.NewGate(policy.NewModeEngine(policy.ModeAuto), nil), testingHandle.TempDir())
	runner.MaxTurns = 3

	_, err := runner.Run(context.Background(), []llm.Message{{Role: "user", Content: "loop"}}, "", "model-x", nil)
	testutil.RequireErrorIs(testingHandle, err, ErrMaxTurns, "run stops at the turn limit")
	testutil.RequireEqual(testingHandle, client.calls, 3, "no model calls beyond the limit")
}

func TestRunBudgetCeiling(testingHandle *testing.T) {
	client := &scriptedClient{responses: [][]llm.StreamEvent{textResponse("cheap answer")}}
	runner := newTestRunner(client, nil, testingHandle.TempDir())
	runner.Pricing = map[string]config.ModelPricing{
		"model-x": {InputPer1M: 1_000_000, OutputPer1M: 1_000_000},
	}
	runner.MaxBudgetUSD = 0.01

	_, err := runner.Run(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, "", "model-x", nil)
	testutil.RequireErrorIs(testingHandle, err, ErrMaxBudget, "cost above the budget stops the run")
}

func TestRunAdvertisesToolSpecs(testingHandle *testing.T) {
	client := &scriptedClient{responses: [][]llm.StreamEvent{textResponse("hi")}}
	runner := newTestRunner(client, nil, testingHandle.TempDir())

	_, err := runner.Run(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, "", "model-x", nil)
	testutil.RequireNoError(testingHandle, err, "run should succeed")
	testutil.RequireEqual(testingHandle, len(client.requests), 1, "one request was sent")
	testutil.RequireTrue(testingHandle, len(client.requests[0].Tools) > 0, "tool specs are advertised to the model")
	testutil.RequireEqual(testingHandle, client.requests[0].ToolChoice, any("auto"), "tool choice is auto")
}

func TestRunCallbacksFire(testingHandle *testing.T) {
	dir := testingHandle.TempDir()
	client := &scriptedClient{responses: [][]llm.StreamEvent{
		toolCallResponse("call_1", "ls", `{}`),
		textResponse("done"),
	}}
	runner := newTestRunner(client, policy.NewGate(policy.NewModeEngine(policy.ModeAuto), nil), dir)

	var starts, events, completes, toolResults int
	callbacks := &StreamCallbacks{
		OnStreamStart:    func(model string) error { starts++; return nil },
		OnStreamEvent:    func(event llm.StreamEvent) error { events++; return nil },
		OnStreamComplete: func(summary StreamSummary) error { completes++; return nil },
		OnToolResult:     func(event ToolEvent, message llm.Message) error { toolResults++; return nil },
	}

	_, err := runner.Run(context.Background(), []llm.Message{{Role: "user", Content: "go"}}, "", "model-x", callbacks)
	testutil.RequireNoError(testingHandle, err, "run should succeed")
	testutil.RequireEqual(testingHandle, starts, 2, "stream start fires per model call")
	testutil.RequireEqual(testingHandle, completes, 2, "stream complete fires per model call")
	testutil.RequireEqual(testingHandle, toolResults, 1, "tool result fires per executed call")
	testutil.RequireTrue(testingHandle, events >= 4, "every stream event reaches the callback")
}

func TestPrependSystemMergesExisting(testingHandle *testing.T) {
	messages := prependSystem([]llm.Message{
		{Role: "system", Content: "base"},
		{Role: "user", Content: "hi"},
	}, "extra")
	testutil.RequireEqual(testingHandle, len(messages), 2, "no duplicate system message")
	testutil.RequireEqual(testingHandle, messages[0].Content, "base\n\nextra", "system prompts are merged")
}

func TestDefaultSystemPromptListsTools(testingHandle *testing.T) {
	prompt := DefaultSystemPrompt([]string{"ls", "bash"})
	testutil.RequireStringContains(testingHandle, prompt, "Available tools: ls, bash.", "tools are enumerated")
	testutil.RequireStringContains(testingHandle, DefaultSystemPrompt(nil), "You are Pilot", "identity is stated without tools")
}
