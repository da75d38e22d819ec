package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/pilotcli/pilot/internal/agent"
	"github.com/pilotcli/pilot/internal/confirm"
	"github.com/pilotcli/pilot/internal/llm"
	"github.com/pilotcli/pilot/internal/session"
	"github.com/pilotcli/pilot/internal/summarize"
)

// chatEntry is one displayed line group in the conversation pane, tagged
// with the role it came from (user, assistant, system, tool).
type chatEntry struct {
	Role    string
	Content string
}

// streamDeltaMsg delivers one chunk of streamed assistant text.
type streamDeltaMsg struct {
	Text string
}

// streamDoneMsg ends a run and carries the result used to reconcile the
// transcript with authoritative history.
type streamDoneMsg struct {
	Result *agent.RunResult
}

// streamErrorMsg ends a run that failed.
type streamErrorMsg struct {
	Err error
}

// toolEventMsg surfaces one tool execution in the tool pane.
type toolEventMsg struct {
	Event agent.ToolEvent
}

// statusUpdateMsg replaces the status line, used for transport notices
// such as rate-limit waits.
type statusUpdateMsg struct {
	Text string
}

// permissionRequest is a gate confirmation waiting on the user. The
// decision travels back over Response.
type permissionRequest struct {
	Hint     string
	ToolName string
	Args     map[string]any
	Response chan bool
}

// permissionRequestMsg hands a pending confirmation to the update loop.
type permissionRequestMsg struct {
	Request *permissionRequest
}

// pane identifies one of the three focusable regions.
type pane int

const (
	paneInput pane = iota
	paneChat
	paneTools
	paneCount
)

// label names the pane for the status line.
func (p pane) label() string {
	switch p {
	case paneChat:
		return "chat"
	case paneTools:
		return "tools"
	default:
		return "input"
	}
}

// keyMap declares every binding the UI responds to outside of plain typing.
type keyMap struct {
	Quit       key.Binding
	Interrupt  key.Binding
	NextPane   key.Binding
	PrevPane   key.Binding
	FocusInput key.Binding
	PageUp     key.Binding
	PageDown   key.Binding
	Top        key.Binding
	Bottom     key.Binding
	HistPrev   key.Binding
	HistNext   key.Binding
	Newline    key.Binding
	Send       key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit:       key.NewBinding(key.WithKeys("ctrl+q"), key.WithHelp("Ctrl+Q", "quit")),
		Interrupt:  key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("Ctrl+C", "cancel")),
		NextPane:   key.NewBinding(key.WithKeys("tab"), key.WithHelp("Tab", "panes")),
		PrevPane:   key.NewBinding(key.WithKeys("shift+tab")),
		FocusInput: key.NewBinding(key.WithKeys("esc")),
		PageUp:     key.NewBinding(key.WithKeys("pgup")),
		PageDown:   key.NewBinding(key.WithKeys("pgdown")),
		Top:        key.NewBinding(key.WithKeys("home")),
		Bottom:     key.NewBinding(key.WithKeys("end")),
		HistPrev:   key.NewBinding(key.WithKeys("ctrl+p"), key.WithHelp("Ctrl+P/N", "history")),
		HistNext:   key.NewBinding(key.WithKeys("ctrl+n")),
		Newline:    key.NewBinding(key.WithKeys("alt+enter", "ctrl+j"), key.WithHelp("Alt+Enter", "newline")),
		Send:       key.NewBinding(key.WithKeys("enter"), key.WithHelp("Enter", "send")),
	}
}

// helpLine renders the idle status hint from the bindings that carry help.
func (k keyMap) helpLine() string {
	bindings := []key.Binding{k.Send, k.Newline, k.HistPrev, k.NextPane, k.Interrupt, k.Quit}
	parts := make([]string, 0, len(bindings))
	for _, binding := range bindings {
		help := binding.Help()
		parts = append(parts, help.Key+": "+help.Desc)
	}
	return strings.Join(parts, " | ")
}

// tuiStyles holds the lipgloss styles, built once per program.
type tuiStyles struct {
	header       lipgloss.Style
	status       lipgloss.Style
	pane         lipgloss.Style
	focusedTitle lipgloss.Style
	roles        map[string]lipgloss.Style
}

func newTUIStyles() tuiStyles {
	return tuiStyles{
		header:       lipgloss.NewStyle().Bold(true),
		status:       lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		pane:         lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1),
		focusedTitle: lipgloss.NewStyle().Bold(true),
		roles: map[string]lipgloss.Style{
			"user":      lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
			"assistant": lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
			"tool":      lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
			"system":    lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		},
	}
}

// roleLabel maps a message role to the label shown above its content.
func roleLabel(role string) string {
	switch role {
	case "user":
		return "YOU"
	case "assistant":
		return "ASSISTANT"
	case "tool":
		return "TOOL"
	case "system":
		return "SYSTEM"
	}
	return strings.ToUpper(role)
}

// tuiModel drives the interactive terminal UI.
type tuiModel struct {
	runner *agent.Runner
	store  *session.Store

	sessionID    string
	projectID    string
	model        string
	systemPrompt string

	// history mirrors the conversation without the system message;
	// persistedLen counts the prefix already on disk.
	history      []llm.Message
	persistedLen int

	// transcript and toolLog back the two viewports.
	transcript []chatEntry
	toolLog    []string

	// pastInputs feeds Ctrl+P/N recall; pastDraft keeps the unsent line
	// while browsing.
	pastInputs []string
	pastIndex  int
	pastDraft  string

	chatPane viewport.Model
	toolPane viewport.Model
	input    textarea.Model
	markdown *glamour.TermRenderer
	keys     keyMap
	styles   tuiStyles

	status         string
	usage          llm.Usage
	totalCost      float64
	chatPinned     bool
	toolPinned     bool
	width          int
	height         int
	focus          pane
	permissionMode string

	// running marks an in-flight run; pendingText buffers its streamed
	// output and runEvents carries its messages into Update.
	running     bool
	pendingText strings.Builder
	runEvents   chan tea.Msg
	cancel      context.CancelFunc

	// pendingAsk is the confirmation prompt capturing the keyboard, if any.
	pendingAsk *permissionRequest
	quitting   bool
}

// runInteractiveTUI starts the full-screen terminal UI for interactive
// sessions. The confirmation handler and status callback are registered
// for the lifetime of the program and detached on return.
func runInteractiveTUI(
	ctx context.Context,
	env *runtimeEnv,
	history []llm.Message,
	systemPrompt string,
	model string,
	sessionID string,
	projectID string,
	store *session.Store,
) error {
	if !term.IsTerminal(int(0)) || !term.IsTerminal(int(1)) {
		return errors.New("interactive mode requires a TTY; use --print for one-shot requests")
	}
	state := newTUIModel(env, history, systemPrompt, model, sessionID, projectID, store)
	program := tea.NewProgram(state, tea.WithAltScreen())

	env.confirm.RegisterHandler(tuiConfirmHandler(program))
	defer env.confirm.RegisterHandler(nil)

	env.status.RegisterCallback(func(message string) {
		program.Send(statusUpdateMsg{Text: message})
	})
	defer env.status.RegisterCallback(nil)

	// External interrupts shut the program down; the session lock is
	// released by the caller's defer.
	go func() {
		<-ctx.Done()
		program.Quit()
	}()

	_, err := program.Run()
	return err
}

// tuiConfirmHandler routes gate confirmations through the UI loop.
func tuiConfirmHandler(program *tea.Program) confirm.Handler {
	return func(ctx context.Context, request confirm.Request) (bool, error) {
		response := make(chan bool, 1)
		program.Send(permissionRequestMsg{Request: &permissionRequest{
			Hint:     request.Hint,
			ToolName: request.ToolName,
			Args:     request.ToolArgs,
			Response: response,
		}})
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case allowed := <-response:
			return allowed, nil
		}
	}
}

// newTUIModel constructs the initial TUI model state.
func newTUIModel(
	env *runtimeEnv,
	history []llm.Message,
	systemPrompt string,
	model string,
	sessionID string,
	projectID string,
	store *session.Store,
) *tuiModel {
	input := textarea.New()
	input.Placeholder = "Type a message..."
	input.Focus()
	input.CharLimit = 0
	input.Prompt = "> "
	input.SetHeight(3)
	input.SetWidth(20)

	chatPane := viewport.New(20, 10)
	toolPane := viewport.New(20, 10)
	toolPane.SetContent("No tool activity yet.")

	var renderer *glamour.TermRenderer
	if glam, err := glamour.NewTermRenderer(glamour.WithAutoStyle()); err == nil {
		renderer = glam
	}

	keys := defaultKeyMap()
	cleanHistory := stripSystem(history)
	state := &tuiModel{
		runner:         env.runner,
		store:          store,
		sessionID:      sessionID,
		projectID:      projectID,
		model:          model,
		systemPrompt:   systemPrompt,
		history:        cleanHistory,
		persistedLen:   len(cleanHistory),
		chatPane:       chatPane,
		toolPane:       toolPane,
		input:          input,
		markdown:       renderer,
		keys:           keys,
		styles:         newTUIStyles(),
		status:         keys.helpLine(),
		focus:          paneInput,
		permissionMode: string(env.permissionMode),
		chatPinned:     true,
		toolPinned:     true,
	}
	state.pastIndex = len(state.pastInputs)
	state.seedTranscript()
	return state
}

// Init starts the blinking cursor for the input field.
func (m *tuiModel) Init() tea.Cmd {
	return textarea.Blink
}

// Update handles UI events and streaming updates.
func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(typed.Width, typed.Height)
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(typed)
	case streamDeltaMsg:
		m.pendingText.WriteString(typed.Text)
		m.redrawChat()
		return m, m.awaitRun()
	case toolEventMsg:
		m.appendToolEvent(typed.Event)
		return m, m.awaitRun()
	case statusUpdateMsg:
		m.status = typed.Text
		return m, nil
	case permissionRequestMsg:
		m.beginPermissionPrompt(typed.Request)
		return m, nil
	case streamDoneMsg:
		m.completeRun(typed.Result)
		return m, nil
	case streamErrorMsg:
		m.failRun(typed.Err)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the full UI layout.
func (m *tuiModel) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Initializing..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.headerLine(),
		m.panesRow(),
		m.inputBox(),
		m.statusLine(),
	)
}

// handleKey routes keyboard input. A pending permission prompt captures
// the keyboard until answered.
func (m *tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.pendingAsk != nil {
		switch strings.ToLower(msg.String()) {
		case "y":
			m.resolvePermission(true)
			return m, nil
		case "n", "esc", "enter":
			m.resolvePermission(false)
			return m, nil
		}
	}

	keys := m.keys
	switch {
	case key.Matches(msg, keys.Interrupt):
		if m.running {
			m.interruptRun("Cancelled.")
			return m, nil
		}
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, keys.NextPane):
		m.setFocus((m.focus + 1) % paneCount)
		return m, nil
	case key.Matches(msg, keys.PrevPane):
		m.setFocus((m.focus + paneCount - 1) % paneCount)
		return m, nil
	case key.Matches(msg, keys.FocusInput):
		m.setFocus(paneInput)
		return m, nil
	case key.Matches(msg, keys.PageUp):
		m.scrollFocused(-10)
		return m, nil
	case key.Matches(msg, keys.PageDown):
		m.scrollFocused(10)
		return m, nil
	case key.Matches(msg, keys.Top):
		m.jumpFocused(false)
		return m, nil
	case key.Matches(msg, keys.Bottom):
		m.jumpFocused(true)
		return m, nil
	case key.Matches(msg, keys.HistPrev):
		if m.focus == paneInput {
			m.recallInput(-1)
			return m, nil
		}
	case key.Matches(msg, keys.HistNext):
		if m.focus == paneInput {
			m.recallInput(1)
			return m, nil
		}
	case key.Matches(msg, keys.Newline):
		m.input.InsertString("\n")
		return m, nil
	case key.Matches(msg, keys.Send):
		return m.sendInput()
	}

	if m.focus != paneInput {
		switch msg.String() {
		case "up", "left":
			m.scrollFocused(-1)
			return m, nil
		case "down", "right":
			m.scrollFocused(1)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// sendInput sends the current input as a new user message.
func (m *tuiModel) sendInput() (tea.Model, tea.Cmd) {
	if m.running {
		m.status = "Wait for the current response or cancel with Ctrl+C."
		return m, nil
	}
	value := strings.TrimSpace(m.input.Value())
	if value == "" {
		return m, nil
	}
	m.input.SetValue("")
	m.status = ""
	m.recordInput(value)

	if handled, quit, output := m.handleSlashCommand(value); handled {
		if quit {
			m.quitting = true
			return m, tea.Quit
		}
		m.pushTranscript("system", output)
		m.redrawChat()
		return m, nil
	}

	m.pushTranscript("user", value)
	m.redrawChat()

	m.history = append(m.history, llm.Message{Role: "user", Content: value})
	m.running = true
	m.pendingText.Reset()
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.status = "Thinking..."
	m.runEvents = make(chan tea.Msg, 128)

	cmd := m.launchRun(ctx)
	return m, tea.Batch(cmd, m.awaitRun())
}

// handleSlashCommand routes local commands that never reach the model.
func (m *tuiModel) handleSlashCommand(line string) (bool, bool, string) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return false, false, ""
	}
	command := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(trimmed, "/")))
	switch command {
	case "help":
		return true, false, "Commands: /help, /session, /quit"
	case "session":
		return true, false, fmt.Sprintf("session %s | model %s | mode %s", m.sessionID, m.model, m.permissionMode)
	case "quit", "exit":
		return true, true, ""
	default:
		return true, false, fmt.Sprintf("Unknown command: /%s", command)
	}
}

// recordInput records an input line for history navigation.
func (m *tuiModel) recordInput(value string) {
	if value == "" {
		return
	}
	m.pastInputs = append(m.pastInputs, value)
	if len(m.pastInputs) > 200 {
		m.pastInputs = m.pastInputs[len(m.pastInputs)-200:]
	}
	m.pastIndex = len(m.pastInputs)
	m.pastDraft = ""
}

// recallInput moves the input buffer through stored history entries.
func (m *tuiModel) recallInput(delta int) {
	if len(m.pastInputs) == 0 {
		return
	}
	if m.pastIndex == len(m.pastInputs) {
		m.pastDraft = m.input.Value()
	}
	next := m.pastIndex + delta
	if next < 0 {
		next = 0
	}
	if next > len(m.pastInputs) {
		next = len(m.pastInputs)
	}
	m.pastIndex = next
	if m.pastIndex == len(m.pastInputs) {
		m.input.SetValue(m.pastDraft)
		return
	}
	m.input.SetValue(m.pastInputs[m.pastIndex])
}

// launchRun executes the agent run inside a bubbletea command. The events
// channel closes once the run settles, ending the awaitRun chain.
func (m *tuiModel) launchRun(ctx context.Context) tea.Cmd {
	history := append([]llm.Message(nil), m.history...)
	runner := m.runner
	modelName := m.model
	systemPrompt := m.systemPrompt
	events := m.runEvents

	return func() tea.Msg {
		defer close(events)
		if runner == nil {
			events <- streamErrorMsg{Err: errors.New("runner is required")}
			return nil
		}
		result, err := runner.Run(ctx, history, systemPrompt, modelName, runCallbacks(ctx, events))
		if err != nil {
			events <- streamErrorMsg{Err: err}
			return nil
		}
		events <- streamDoneMsg{Result: result}
		return nil
	}
}

// runCallbacks forwards index-0 content deltas and tool results onto the
// events channel. Transport notices are skipped; they reach the status
// line through the status callback instead.
func runCallbacks(ctx context.Context, events chan<- tea.Msg) *agent.StreamCallbacks {
	forward := func(msg tea.Msg) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case events <- msg:
			return nil
		}
	}
	return &agent.StreamCallbacks{
		OnStreamEvent: func(event llm.StreamEvent) error {
			if event.Notice != "" {
				return nil
			}
			for _, choice := range event.Choices {
				if choice.Index != 0 || choice.Delta.Content == "" {
					continue
				}
				if err := forward(streamDeltaMsg{Text: choice.Delta.Content}); err != nil {
					return err
				}
			}
			return nil
		},
		OnToolResult: func(event agent.ToolEvent, _ llm.Message) error {
			return forward(toolEventMsg{Event: event})
		},
	}
}

// awaitRun waits for the next streaming message.
func (m *tuiModel) awaitRun() tea.Cmd {
	if m.runEvents == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-m.runEvents
		if !ok {
			return nil
		}
		return msg
	}
}

// completeRun reconciles history and appends the final assistant message.
func (m *tuiModel) completeRun(result *agent.RunResult) {
	m.running = false
	m.status = ""
	m.cancel = nil
	m.pendingAsk = nil
	if result == nil {
		m.pushTranscript("assistant", m.pendingText.String())
		m.pendingText.Reset()
		m.redrawChat()
		return
	}
	m.history = stripSystem(result.Messages)
	m.usage = result.Usage
	m.totalCost += result.CostUSD
	finalText := result.Final.Content
	if finalText == "" {
		finalText = m.pendingText.String()
	}
	m.pushTranscript("assistant", finalText)
	m.pendingText.Reset()
	m.redrawChat()
	if m.store != nil {
		m.persistRun()
	}
}

// failRun handles errors from the streaming run.
func (m *tuiModel) failRun(err error) {
	m.running = false
	m.status = formatInteractiveError(err)
	m.cancel = nil
	m.pendingAsk = nil
	m.pendingText.Reset()
}

// formatInteractiveError normalizes common agent errors for the status line.
func formatInteractiveError(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, context.Canceled):
		return "Request cancelled."
	case errors.Is(err, agent.ErrMaxTurns):
		return "Max turns exceeded."
	case errors.Is(err, agent.ErrMaxBudget):
		return "Max budget exceeded."
	case errors.Is(err, llm.ErrRateLimitExhausted):
		return "Rate limit retries exhausted. Try again later."
	default:
		return err.Error()
	}
}

// interruptRun cancels an in-flight request and updates status.
func (m *tuiModel) interruptRun(reason string) {
	if m.cancel != nil {
		m.cancel()
	}
	if m.pendingAsk != nil {
		m.resolvePermission(false)
	}
	m.status = reason
}

// beginPermissionPrompt stores the prompt and updates UI state.
func (m *tuiModel) beginPermissionPrompt(request *permissionRequest) {
	if request == nil {
		return
	}
	m.pendingAsk = request
	m.input.Blur()
	if request.ToolName != "" {
		line := summarize.Call(request.ToolName, request.Args)
		m.toolLog = append(m.toolLog, "? "+line)
		m.redrawToolLog()
	}
	m.status = fmt.Sprintf("%s. Allow? [y/N]", request.Hint)
}

// resolvePermission sends the user's decision back to the gate.
func (m *tuiModel) resolvePermission(allowed bool) {
	request := m.pendingAsk
	m.pendingAsk = nil
	if request != nil {
		select {
		case request.Response <- allowed:
		default:
		}
	}
	m.input.Focus()
	if allowed {
		m.status = "Tool allowed."
	} else {
		m.status = "Tool denied."
	}
}

// pushTranscript adds a new chat message to the display list.
func (m *tuiModel) pushTranscript(role string, content string) {
	m.transcript = append(m.transcript, chatEntry{Role: role, Content: content})
}

// appendToolEvent records tool activity for the side panel.
func (m *tuiModel) appendToolEvent(event agent.ToolEvent) {
	if event.ToolName == "" {
		return
	}
	var args map[string]any
	_ = json.Unmarshal(event.Arguments, &args)

	line := summarize.Call(event.ToolName, args)
	switch {
	case event.Blocked:
		line += " [blocked]"
	case event.IsError:
		line += " [failed]"
	}
	m.toolLog = append(m.toolLog, line)

	if !event.Blocked && !event.IsError {
		if detail := summarize.Result(event.ToolName, args, event.Result); detail != "" {
			m.toolLog = append(m.toolLog, "  "+detail)
		}
	} else if event.Result != "" {
		m.toolLog = append(m.toolLog, "  "+compactForDisplay(event.Result, 160))
	}

	if len(m.toolLog) > 200 {
		m.toolLog = m.toolLog[len(m.toolLog)-200:]
	}
	m.redrawToolLog()
}

// redrawChat rebuilds the chat viewport content.
func (m *tuiModel) redrawChat() {
	var builder strings.Builder
	for _, msg := range m.transcript {
		builder.WriteString(m.formatEntry(msg, false))
		builder.WriteString("\n\n")
	}
	if m.running {
		streamText := m.pendingText.String()
		if streamText != "" {
			builder.WriteString(m.formatEntry(chatEntry{Role: "assistant", Content: streamText}, true))
			builder.WriteString("\n\n")
		}
	}
	m.chatPane.SetContent(builder.String())
	if m.chatPinned {
		m.chatPane.GotoBottom()
	}
}

// redrawToolLog rebuilds the tool viewport content.
func (m *tuiModel) redrawToolLog() {
	if len(m.toolLog) == 0 {
		m.toolPane.SetContent("No tool activity yet.")
		return
	}
	m.toolPane.SetContent(strings.Join(m.toolLog, "\n"))
	if m.toolPinned {
		m.toolPane.GotoBottom()
	}
}

// seedTranscript seeds the chat view with previous session messages.
func (m *tuiModel) seedTranscript() {
	for _, message := range m.history {
		m.pushTranscript(message.Role, message.Content)
	}
	m.redrawChat()
}

// persistRun appends new session messages to storage.
func (m *tuiModel) persistRun() {
	if err := persistNewMessages(m.store, m.projectID, m.sessionID, m.history, m.persistedLen); err != nil {
		m.status = err.Error()
		return
	}
	m.persistedLen = len(m.history)
}

// setFocus moves keyboard focus to the requested pane.
func (m *tuiModel) setFocus(target pane) {
	m.focus = target
	if target == paneInput {
		m.input.Focus()
		return
	}
	m.input.Blur()
}

// focusedView returns the viewport under focus and its autoscroll flag,
// or nil when the input pane is active.
func (m *tuiModel) focusedView() (*viewport.Model, *bool) {
	switch m.focus {
	case paneChat:
		return &m.chatPane, &m.chatPinned
	case paneTools:
		return &m.toolPane, &m.toolPinned
	}
	return nil, nil
}

// scrollFocused scrolls the focused viewport by delta lines and unpins it.
func (m *tuiModel) scrollFocused(delta int) {
	view, autoScroll := m.focusedView()
	if view == nil {
		return
	}
	*autoScroll = false
	if delta > 0 {
		view.LineDown(delta)
		return
	}
	view.LineUp(-delta)
}

// jumpFocused moves the focused viewport to its top or bottom. Jumping to
// the bottom re-pins autoscroll.
func (m *tuiModel) jumpFocused(toBottom bool) {
	view, autoScroll := m.focusedView()
	if view == nil {
		return
	}
	if toBottom {
		view.GotoBottom()
		*autoScroll = true
		return
	}
	view.GotoTop()
	*autoScroll = false
}

// resize recalculates the layout for a new terminal size. The tool pane
// takes a quarter of the width, clamped between 24 and 60 columns.
func (m *tuiModel) resize(width int, height int) {
	m.width = width
	m.height = height

	// One row each for the header and status lines.
	bodyHeight := max(height-m.input.Height()-2, 4)
	toolWidth := min(max(width/4, 24), 60)
	chatWidth := width - toolWidth - 3
	if chatWidth < 20 {
		chatWidth = 20
		toolWidth = max(width-chatWidth-3, 20)
	}

	m.chatPane.Width = chatWidth - 2
	m.chatPane.Height = bodyHeight - 2
	m.toolPane.Width = toolWidth - 2
	m.toolPane.Height = bodyHeight - 2
	m.input.SetWidth(width - 2)

	m.redrawChat()
	m.redrawToolLog()
}

// headerLine builds the top status line.
func (m *tuiModel) headerLine() string {
	header := fmt.Sprintf("Pilot | session %s | model %s", m.sessionID, m.model)
	if m.running {
		header += " | running"
	}
	return m.styles.header.Width(m.width).Render(header)
}

// panesRow composes the chat and tool panes side by side.
func (m *tuiModel) panesRow() string {
	return lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderPane("Conversation", m.chatPane.View(), m.chatPane.Width+2, m.focus == paneChat),
		m.renderPane("Tools", m.toolPane.View(), m.toolPane.Width+2, m.focus == paneTools),
	)
}

// renderPane frames a titled pane; the focused pane gets a bold title.
func (m *tuiModel) renderPane(title string, content string, width int, focused bool) string {
	header := "[" + title + "]"
	if focused {
		header = m.styles.focusedTitle.Render(header)
	}
	return m.styles.pane.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, header, content))
}

// inputBox returns the input box rendering.
func (m *tuiModel) inputBox() string {
	return m.styles.pane.Render(m.input.View())
}

// statusLine returns the bottom status line.
func (m *tuiModel) statusLine() string {
	text := m.status
	if text == "" {
		text = "Ready"
	}
	if info := m.statusDetails(); info != "" {
		text += " | " + info
	}
	return m.styles.status.Width(m.width).Render(text)
}

// statusDetails assembles auxiliary status information.
func (m *tuiModel) statusDetails() string {
	parts := []string{}
	if m.permissionMode != "" {
		parts = append(parts, "perm:"+m.permissionMode)
	}
	parts = append(parts, "focus:"+m.focus.label())
	if m.usage.TotalTokens > 0 {
		parts = append(parts, fmt.Sprintf("tokens:%d", m.usage.TotalTokens))
	}
	if m.totalCost > 0 {
		parts = append(parts, fmt.Sprintf("cost:$%.4f", m.totalCost))
	}
	return strings.Join(parts, " ")
}

// formatEntry formats a chat message for display. Streamed text stays
// raw until the run completes; user text is never markdown-rendered.
func (m *tuiModel) formatEntry(message chatEntry, streaming bool) string {
	style, ok := m.styles.roles[message.Role]
	if !ok {
		style = lipgloss.NewStyle()
	}
	content := message.Content
	if !streaming && message.Role != "user" {
		content = m.formatMarkdown(content)
	}
	return style.Render(roleLabel(message.Role)+":") + "\n" + content
}

// formatMarkdown converts markdown into terminal-friendly output when
// possible.
func (m *tuiModel) formatMarkdown(content string) string {
	if m.markdown == nil {
		return content
	}
	rendered, err := m.markdown.Render(content)
	if err != nil {
		return content
	}
	return rendered
}
