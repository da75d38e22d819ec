package confirm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pilotcli/pilot/internal/testutil"
)

// newTestManager builds a manager with terminal behavior under test control.
func newTestManager(terminal bool, input string) (*Manager, *strings.Builder) {
	output := &strings.Builder{}
	manager := &Manager{
		promptIn:   strings.NewReader(input),
		promptOut:  output,
		isTerminal: func() bool { return terminal },
	}
	return manager, output
}

// TestRequestDelegatesToHandler verifies a registered handler decides.
func TestRequestDelegatesToHandler(testingHandle *testing.T) {
	manager, _ := newTestManager(false, "")

	var seen Request
	manager.RegisterHandler(func(_ context.Context, request Request) (bool, error) {
		seen = request
		return true, nil
	})

	allowed := manager.Request(context.Background(), Request{
		Hint:     "Sensitive tool call: bash",
		ToolName: "bash",
		ToolArgs: map[string]any{"command": "make test"},
	})

	testutil.RequireTrue(testingHandle, allowed, "handler approval honored")
	testutil.RequireEqual(testingHandle, seen.ToolName, "bash", "request identity reaches handler")
	testutil.RequireStringContains(testingHandle, seen.Hint, "bash", "hint reaches handler")
}

// TestRequestHandlerErrorDenies verifies handler errors fail closed.
func TestRequestHandlerErrorDenies(testingHandle *testing.T) {
	manager, _ := newTestManager(true, "y\n")
	manager.RegisterHandler(func(_ context.Context, _ Request) (bool, error) {
		return true, errors.New("ui detached")
	})

	allowed := manager.Request(context.Background(), Request{Hint: "anything"})
	testutil.RequireFalse(testingHandle, allowed, "handler error denies")
}

// TestRequestHandlerPanicDenies verifies a panicking handler fails closed.
func TestRequestHandlerPanicDenies(testingHandle *testing.T) {
	manager, _ := newTestManager(false, "")
	manager.RegisterHandler(func(_ context.Context, _ Request) (bool, error) {
		panic("handler exploded")
	})

	allowed := manager.Request(context.Background(), Request{Hint: "anything"})
	testutil.RequireFalse(testingHandle, allowed, "handler panic denies")
}

// TestRequestTimeoutDenies verifies the optional timeout resolves to deny.
func TestRequestTimeoutDenies(testingHandle *testing.T) {
	manager, _ := newTestManager(false, "")
	manager.Timeout = 10 * time.Millisecond
	manager.RegisterHandler(func(ctx context.Context, _ Request) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	})

	allowed := manager.Request(context.Background(), Request{Hint: "slow human"})
	testutil.RequireFalse(testingHandle, allowed, "timeout denies")
}

// TestTerminalPromptDefaultsToYes verifies empty input approves.
func TestTerminalPromptDefaultsToYes(testingHandle *testing.T) {
	manager, output := newTestManager(true, "\n")

	allowed := manager.Request(context.Background(), Request{
		Hint:     "Sensitive tool call: bash",
		ToolName: "bash",
		ToolArgs: map[string]any{"command": "ls"},
	})

	testutil.RequireTrue(testingHandle, allowed, "empty answer approves")
	testutil.RequireStringContains(testingHandle, output.String(), "Sensitive tool call: bash", "hint shown in prompt")
	testutil.RequireStringContains(testingHandle, output.String(), "command=ls", "args shown in prompt")
}

// TestTerminalPromptNoDenies verifies an explicit no denies.
func TestTerminalPromptNoDenies(testingHandle *testing.T) {
	manager, _ := newTestManager(true, "n\n")

	allowed := manager.Request(context.Background(), Request{Hint: "risky"})
	testutil.RequireFalse(testingHandle, allowed, "explicit no denies")
}

// TestTerminalPromptBackToBack verifies consecutive prompts each read their
// own answer even when both lines arrive on stdin at once.
func TestTerminalPromptBackToBack(testingHandle *testing.T) {
	manager, _ := newTestManager(true, "n\ny\n")

	first := manager.Request(context.Background(), Request{Hint: "first"})
	second := manager.Request(context.Background(), Request{Hint: "second"})

	testutil.RequireFalse(testingHandle, first, "first answer denies")
	testutil.RequireTrue(testingHandle, second, "second answer approves")
}

// TestNoHandlerNoTerminalDenies verifies the fail-closed default.
func TestNoHandlerNoTerminalDenies(testingHandle *testing.T) {
	manager, _ := newTestManager(false, "")

	allowed := manager.Request(context.Background(), Request{Hint: "headless"})
	testutil.RequireFalse(testingHandle, allowed, "no responder denies")
}

// TestRequestsAreSerialized verifies the single-slot channel never merges
// two concurrent requests: each hint reaches its own handler invocation.
func TestRequestsAreSerialized(testingHandle *testing.T) {
	manager, _ := newTestManager(false, "")

	var mu sync.Mutex
	inFlight := 0
	maxInFlight := 0
	seenHints := map[string]bool{}

	manager.RegisterHandler(func(_ context.Context, request Request) (bool, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		seenHints[request.Hint] = true
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return true, nil
	})

	var wg sync.WaitGroup
	for _, hint := range []string{"first", "second"} {
		wg.Add(1)
		go func(hint string) {
			defer wg.Done()
			manager.Request(context.Background(), Request{Hint: hint})
		}(hint)
	}
	wg.Wait()

	testutil.RequireEqual(testingHandle, maxInFlight, 1, "one request in flight at a time")
	testutil.RequireTrue(testingHandle, seenHints["first"] && seenHints["second"], "both identities preserved")
}
