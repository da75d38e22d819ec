package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pilotcli/pilot/internal/agent"
	"github.com/pilotcli/pilot/internal/llm"
	"github.com/pilotcli/pilot/internal/session"
	"github.com/pilotcli/pilot/internal/summarize"
)

// runPrintMode handles one-shot requests and prints output to stdout.
func runPrintMode(
	ctx context.Context,
	cmd *cobra.Command,
	opts *options,
	env *runtimeEnv,
	history []llm.Message,
	systemPrompt string,
	model string,
	sessionID string,
	projectID string,
	store *session.Store,
	debugLog *log.Logger,
) error {
	prompt, err := readInputPrompt(cmd)
	if err != nil {
		return err
	}
	messages := append(history, llm.Message{Role: "user", Content: prompt})

	// Rate-limit waits go to stderr so they never pollute the output.
	env.status.RegisterCallback(func(message string) {
		fmt.Fprintln(os.Stderr, message)
	})
	defer env.status.RegisterCallback(nil)

	var callbacks *agent.StreamCallbacks
	var printer *printStreamPrinter
	if opts.OutputFormat == "text" {
		printer = newPrintStreamPrinter(os.Stdout)
		callbacks = printer.callbacks()
	}

	debugf(debugLog, "print request: %d history messages, format %s", len(history), opts.OutputFormat)
	result, runErr := env.runner.Run(ctx, messages, systemPrompt, model, callbacks)
	if result == nil {
		return formatRunError(runErr)
	}

	if err := persistNewMessages(store, projectID, sessionID, result.Messages, len(history)); err != nil {
		return err
	}

	if err := writeOutput(opts.OutputFormat, printer, result, sessionID, model); err != nil {
		return err
	}
	if runErr != nil {
		return formatRunError(runErr)
	}
	return nil
}

// readInputPrompt reads the one-shot prompt from args or stdin.
func readInputPrompt(cmd *cobra.Command) (string, error) {
	prompt := strings.TrimSpace(strings.Join(cmd.Flags().Args(), " "))
	if prompt == "" {
		input, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		prompt = strings.TrimSpace(string(input))
	}
	if prompt == "" {
		return "", errors.New("prompt is required")
	}
	return prompt, nil
}

// writeOutput formats the final response according to the selected format.
func writeOutput(
	format string,
	printer *printStreamPrinter,
	result *agent.RunResult,
	sessionID string,
	model string,
) error {
	switch format {
	case "text":
		// Streaming already printed the text; just settle the line.
		if printer != nil {
			printer.EnsureNewline()
			return nil
		}
		fmt.Println(result.Final.Content)
		return nil
	case "json":
		payload := map[string]any{
			"session_id": sessionID,
			"model":      model,
			"final":      result.Final.Content,
			"usage":      result.TotalUsage,
			"cost_usd":   result.CostUSD,
		}
		return writeJSON(payload)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// writeJSON writes a single JSON line to stdout.
func writeJSON(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// formatRunError normalizes common agent errors for terminal output.
func formatRunError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return errors.New("request cancelled")
	case errors.Is(err, agent.ErrMaxTurns):
		return errors.New("max turns exceeded")
	case errors.Is(err, agent.ErrMaxBudget):
		return fmt.Errorf("max budget exceeded: %v", err)
	case errors.Is(err, llm.ErrRateLimitExhausted):
		return errors.New("rate limit retries exhausted; try again later")
	default:
		return err
	}
}

// printStreamPrinter renders streaming output for print mode text runs.
type printStreamPrinter struct {
	// out is the output writer for assistant text.
	out io.Writer
	// wroteText tracks whether any text deltas were printed.
	wroteText bool
	// lineOpen tracks whether a streaming line is in progress.
	lineOpen bool
}

// newPrintStreamPrinter constructs a printer over the given writer.
func newPrintStreamPrinter(out io.Writer) *printStreamPrinter {
	return &printStreamPrinter{out: out}
}

// EnsureNewline terminates a streaming line if one is active.
func (p *printStreamPrinter) EnsureNewline() {
	if p == nil || !p.lineOpen {
		return
	}
	fmt.Fprintln(p.out)
	p.lineOpen = false
}

// OnStreamStart resets state for a new streaming assistant response.
func (p *printStreamPrinter) OnStreamStart(_ string) error {
	p.wroteText = false
	p.lineOpen = false
	return nil
}

// OnStreamEvent prints incremental text deltas as they arrive.
func (p *printStreamPrinter) OnStreamEvent(event llm.StreamEvent) error {
	if event.Notice != "" {
		return nil
	}
	for _, choice := range event.Choices {
		if choice.Index != 0 {
			continue
		}
		if choice.Delta.Content == "" {
			continue
		}
		fmt.Fprint(p.out, choice.Delta.Content)
		p.wroteText = true
		p.lineOpen = true
	}
	return nil
}

// OnStreamComplete ensures the assistant response ends with a newline.
func (p *printStreamPrinter) OnStreamComplete(summary agent.StreamSummary) error {
	if p.wroteText {
		p.EnsureNewline()
		return nil
	}
	if summary.Message.Content != "" {
		fmt.Fprintln(p.out, summary.Message.Content)
	}
	return nil
}

// OnToolResult prints a compact per-tool status line.
func (p *printStreamPrinter) OnToolResult(event agent.ToolEvent, _ llm.Message) error {
	if event.ToolName == "" {
		return nil
	}
	p.EnsureNewline()

	var args map[string]any
	_ = json.Unmarshal(event.Arguments, &args)
	fmt.Fprintf(p.out, "-> %s\n", summarize.Call(event.ToolName, args))
	switch {
	case event.Blocked:
		fmt.Fprintf(p.out, "   blocked: %s\n", compactForDisplay(event.Result, 240))
	case event.IsError:
		fmt.Fprintf(p.out, "   failed: %s\n", compactForDisplay(event.Result, 240))
	default:
		fmt.Fprintf(p.out, "   %s\n", summarize.Result(event.ToolName, args, event.Result))
	}
	return nil
}

// callbacks adapts the printer to the agent's streaming hooks.
func (p *printStreamPrinter) callbacks() *agent.StreamCallbacks {
	return &agent.StreamCallbacks{
		OnStreamStart:    p.OnStreamStart,
		OnStreamEvent:    p.OnStreamEvent,
		OnStreamComplete: p.OnStreamComplete,
		OnToolResult:     p.OnToolResult,
	}
}

// compactForDisplay collapses whitespace and truncates long strings.
func compactForDisplay(value string, max int) string {
	compact := strings.Join(strings.Fields(value), " ")
	if max <= 0 {
		return compact
	}
	runes := []rune(compact)
	if len(runes) <= max {
		return compact
	}
	return string(runes[:max]) + "...(truncated)"
}
