// Package confirm implements the human confirmation handshake between the
// tool gate and whichever front-end is attached. A registered handler (the
// interactive UI) answers requests; without one, a terminal prompt is used;
// with neither, requests resolve to a deterministic deny.
package confirm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// Request describes one pending confirmation.
type Request struct {
	// Hint is the human-readable reason shown in the prompt. Never empty.
	Hint string
	// ToolName is the tool awaiting approval, when known.
	ToolName string
	// ToolArgs carries the tool arguments for display, when known.
	ToolArgs map[string]any
}

// Handler resolves a confirmation request to a decision, exactly once.
type Handler func(ctx context.Context, request Request) (bool, error)

// Manager is the single-slot confirmation channel. Construct it explicitly
// and pass it by reference into the runtime and UI wiring; requests are
// serialized so each one reaches the one response it triggered.
type Manager struct {
	// Timeout bounds how long a request waits for an answer.
	// Zero preserves the reference behavior of waiting forever.
	Timeout time.Duration

	// requestMu serializes in-flight requests (single slot, not a queue).
	requestMu sync.Mutex
	// handlerMu guards the registered handler.
	handlerMu sync.Mutex
	handler   Handler

	// promptIn and promptOut drive the terminal fallback. promptReader
	// wraps promptIn once and lives for the manager's lifetime, so input
	// buffered past one answer is still there for the next prompt.
	promptIn     io.Reader
	promptReader *bufio.Reader
	promptOut    io.Writer
	// isTerminal reports whether an interactive terminal is attached.
	isTerminal func() bool
}

// NewManager constructs a manager using stdin/stderr for terminal prompts.
func NewManager() *Manager {
	return &Manager{
		promptIn:  os.Stdin,
		promptOut: os.Stderr,
		isTerminal: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
	}
}

// RegisterHandler sets the active responder. Passing nil detaches it.
// Register and unregister only at UI attach/detach boundaries, never while
// a request is in flight.
func (m *Manager) RegisterHandler(handler Handler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.handler = handler
}

// HasHandler reports whether a responder is attached.
func (m *Manager) HasHandler() bool {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	return m.handler != nil
}

// Request resolves one confirmation and returns the decision.
// An error or panic from the handler, a timeout, and the absence of any
// interactive responder all resolve to false.
func (m *Manager) Request(ctx context.Context, request Request) bool {
	m.requestMu.Lock()
	defer m.requestMu.Unlock()

	m.handlerMu.Lock()
	handler := m.handler
	m.handlerMu.Unlock()

	if handler != nil {
		return m.askHandler(ctx, handler, request)
	}
	if m.isTerminal != nil && m.isTerminal() {
		return m.askTerminal(request)
	}
	// Non-interactive and UI-less contexts never auto-approve.
	return false
}

// askHandler delegates to the registered responder with optional timeout.
func (m *Manager) askHandler(ctx context.Context, handler Handler, request Request) bool {
	if m.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.Timeout)
		defer cancel()
	}

	type answer struct {
		allowed bool
		err     error
	}
	answers := make(chan answer, 1)

	go func() {
		defer func() {
			// A panicking handler counts as a denial, not a crash.
			if recovered := recover(); recovered != nil {
				answers <- answer{err: fmt.Errorf("confirmation handler panic: %v", recovered)}
			}
		}()
		allowed, err := handler(ctx, request)
		answers <- answer{allowed: allowed, err: err}
	}()

	select {
	case <-ctx.Done():
		return false
	case result := <-answers:
		if result.err != nil {
			return false
		}
		return result.allowed
	}
}

// askTerminal runs a blocking yes/no prompt on the attached terminal.
// An empty answer counts as yes, matching the reference prompt default.
func (m *Manager) askTerminal(request Request) bool {
	fmt.Fprintf(m.promptOut, "\n⚠️  %s%s. Proceed? [Y/n] ", request.Hint, formatPromptDetail(request))

	if m.promptReader == nil {
		m.promptReader = bufio.NewReader(m.promptIn)
	}
	line, err := m.promptReader.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "", "y", "yes":
		return true
	default:
		return false
	}
}

// formatPromptDetail renders tool name and args for the terminal prompt.
func formatPromptDetail(request Request) string {
	if request.ToolName == "" {
		return ""
	}
	detail := " [" + request.ToolName
	if args := formatToolArgs(request.ToolArgs); args != "" {
		detail += " " + args
	}
	return detail + "]"
}

// formatToolArgs renders arguments as stable key=value pairs.
func formatToolArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	keys := make([]string, 0, len(args))
	for key := range args {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", key, args[key]))
	}
	return strings.Join(parts, " ")
}
