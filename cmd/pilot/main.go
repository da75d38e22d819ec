package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pilotcli/pilot/internal/agent"
	"github.com/pilotcli/pilot/internal/config"
	"github.com/pilotcli/pilot/internal/llm"
	"github.com/pilotcli/pilot/internal/project"
	"github.com/pilotcli/pilot/internal/session"
	"github.com/pilotcli/pilot/internal/sessionlock"
	"github.com/pilotcli/pilot/internal/tools"
)

// version is the CLI build version.
const version = "0.1.0"

// defaultModel is used when neither flags nor settings select one.
const defaultModel = "gpt-4o-mini"

// requestTimeout bounds a single streaming gateway call.
const requestTimeout = 10 * time.Minute

// options holds all root-command flags.
type options struct {
	// AddDirs are extra directories the assistant is told it may work in.
	AddDirs []string
	// AppendSystemPrompt appends extra system instructions.
	AppendSystemPrompt string
	// Continue resumes the most recent session in the current project.
	Continue bool
	// DebugFile writes debug logs to a file path.
	DebugFile string
	// MaxBudgetUSD enforces an estimated spend ceiling.
	MaxBudgetUSD float64
	// MaxTurns caps the number of assistant/tool turns per request.
	MaxTurns int
	// Model overrides the default model selection.
	Model string
	// OutputFormat controls print mode output encoding (text|json).
	OutputFormat string
	// PermissionMode configures tool approval behavior (ask|plan|auto).
	PermissionMode string
	// Print enables non-interactive mode.
	Print bool
	// Resume resumes a specific session id or opens the picker.
	Resume string
	// SessionID sets a fixed session id.
	SessionID string
	// SystemPrompt overrides the default system prompt.
	SystemPrompt string
	// Version prints the CLI version.
	Version bool
}

// main wires Cobra and executes the CLI.
func main() {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   "pilot [prompt]",
		Short: "Pilot - a terminal coding assistant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Version {
				fmt.Println(version)
				return nil
			}
			return runRoot(cmd, opts, args)
		},
	}
	rootCmd.Args = cobra.ArbitraryArgs
	rootCmd.SilenceUsage = true

	applyFlags(rootCmd.Flags(), opts)

	rootCmd.AddCommand(sessionsCommand())
	rootCmd.AddCommand(configCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// applyFlags defines the root command flags.
func applyFlags(flags *pflag.FlagSet, opts *options) {
	flags.StringSliceVar(&opts.AddDirs, "add-dir", nil, "Additional directories the assistant may work in")
	flags.StringVar(&opts.AppendSystemPrompt, "append-system-prompt", "", "Append a system prompt")
	flags.BoolVarP(&opts.Continue, "continue", "c", false, "Continue the most recent conversation in this project")
	flags.StringVar(&opts.DebugFile, "debug-file", "", "Write debug logs to a file")
	flags.Float64Var(&opts.MaxBudgetUSD, "max-budget-usd", 0, "Maximum estimated budget in USD")
	flags.IntVar(&opts.MaxTurns, "max-turns", 0, "Maximum number of turns per request")
	flags.StringVar(&opts.Model, "model", "", "Model for the current session")
	flags.StringVar(&opts.OutputFormat, "output-format", "text", "Print mode output format (text|json)")
	flags.StringVar(&opts.PermissionMode, "permission-mode", "", "Permission mode (ask|plan|auto)")
	flags.BoolVarP(&opts.Print, "print", "p", false, "Print response and exit")
	flags.StringVarP(&opts.Resume, "resume", "r", "", "Resume a conversation by session ID")
	flags.Lookup("resume").NoOptDefVal = "picker"
	flags.StringVar(&opts.SessionID, "session-id", "", "Use a specific session ID")
	flags.StringVar(&opts.SystemPrompt, "system-prompt", "", "System prompt override")
	flags.BoolVarP(&opts.Version, "version", "v", false, "Output the version number")
}

// runRoot orchestrates config loading, session handling, and mode dispatch.
func runRoot(cmd *cobra.Command, opts *options, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get cwd: %w", err)
	}

	projectRoot := project.FindRoot(cwd)
	settings, err := config.Load(projectRoot)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	apiKey := config.ResolveAPIKey(settings)
	if apiKey == "" {
		fmt.Fprint(os.Stderr, config.NoKeyMessage)
		return errors.New("api key required")
	}

	model := resolveModel(opts, settings)
	pricing := settings.Pricing()
	if opts.MaxBudgetUSD > 0 {
		if _, ok := pricing[model]; !ok {
			return fmt.Errorf("pricing missing for model %s; configure pricing to use max-budget-usd", model)
		}
	}

	debugLog, closeDebug, err := setupDebugLog(opts.DebugFile)
	if err != nil {
		return err
	}
	defer closeDebug()

	globalDir, err := config.GlobalDir()
	if err != nil {
		return err
	}
	store := session.NewStore(globalDir)

	projectID, err := project.ID(projectRoot)
	if err != nil {
		return fmt.Errorf("resolve project id: %w", err)
	}

	sessionID, history, isNew, err := resolveSession(store, projectID, opts)
	if err != nil {
		return err
	}
	debugf(debugLog, "session %s (new=%v) model %s project %s", sessionID, isNew, model, projectID)

	// Hold the session lock for the whole run. The deferred release
	// covers every exit path; SIGINT lands here through the context.
	lock, err := sessionlock.Acquire(sessionID)
	if errors.Is(err, sessionlock.ErrSessionBusy) {
		return fmt.Errorf("session %s is already in use by another pilot process", sessionID)
	}
	if err != nil {
		return fmt.Errorf("acquire session lock: %w", err)
	}
	defer func() {
		_ = lock.Release()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	env, err := buildRuntime(opts, settings, apiKey, model, pricing, cwd)
	if err != nil {
		return err
	}

	if isNew {
		meta := session.Meta{
			SessionID:  sessionID,
			ProjectID:  projectID,
			WorkingDir: cwd,
			Model:      model,
			StartedAt:  time.Now().UTC(),
		}
		if err := store.AppendMeta(meta); err != nil {
			return fmt.Errorf("record session: %w", err)
		}
	}

	systemPrompt := resolveSystemPrompt(opts, env.runner.ToolRunner)

	if opts.Print {
		return runPrintMode(ctx, cmd, opts, env, history, systemPrompt, model, sessionID, projectID, store, debugLog)
	}
	return runInteractiveTUI(ctx, env, history, systemPrompt, model, sessionID, projectID, store)
}

// resolveModel picks the model from flags, settings, or the default.
func resolveModel(opts *options, settings *config.Settings) string {
	if opts.Model != "" {
		return opts.Model
	}
	if settings != nil && settings.DefaultModel != "" {
		return settings.DefaultModel
	}
	return defaultModel
}

// resolveSession determines the session id and loads stored history.
// The returned flag reports whether the id is freshly minted.
func resolveSession(store *session.Store, projectID string, opts *options) (string, []llm.Message, bool, error) {
	if opts.SessionID != "" {
		if !store.Exists(opts.SessionID) {
			return opts.SessionID, nil, true, nil
		}
		messages, err := store.LoadMessages(opts.SessionID)
		return opts.SessionID, messages, false, err
	}

	if opts.Continue {
		lastID, err := store.LoadLastSession(projectID)
		if err != nil {
			return "", nil, false, fmt.Errorf("load last session: %w", err)
		}
		if lastID != "" {
			messages, err := store.LoadMessages(lastID)
			return lastID, messages, false, err
		}
		// No prior session in this project; start fresh.
		return session.NewID(), nil, true, nil
	}

	if opts.Resume != "" {
		id := opts.Resume
		if id == "picker" {
			picked, err := pickSession(store)
			if err != nil {
				return "", nil, false, err
			}
			id = picked
		}
		if !store.Exists(id) {
			return "", nil, false, fmt.Errorf("unknown session: %s", id)
		}
		messages, err := store.LoadMessages(id)
		return id, messages, false, err
	}

	return session.NewID(), nil, true, nil
}

// pickSession shows a small interactive chooser for recent sessions.
func pickSession(store *session.Store) (string, error) {
	sessions, err := store.List(10)
	if err != nil {
		return "", err
	}
	if len(sessions) == 0 {
		return "", errors.New("no sessions available")
	}
	fmt.Fprintln(os.Stdout, "Select a session:")
	for i, info := range sessions {
		fmt.Fprintf(os.Stdout, "%d) %s  (%s)\n", i+1, info.ID, info.UpdatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprint(os.Stdout, "Enter number: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("no session selected")
	}
	var index int
	if _, err := fmt.Sscanf(line, "%d", &index); err != nil {
		return "", errors.New("invalid selection")
	}
	if index < 1 || index > len(sessions) {
		return "", errors.New("selection out of range")
	}
	return sessions[index-1].ID, nil
}

// resolveSystemPrompt builds the effective system prompt from defaults,
// overrides, and extra directories.
func resolveSystemPrompt(opts *options, toolRunner *tools.Runner) string {
	prompt := agent.DefaultSystemPrompt(toolRunner.ToolNames())
	if opts.SystemPrompt != "" {
		prompt = opts.SystemPrompt
	}
	if len(opts.AddDirs) > 0 {
		prompt += "\nAdditional working directories: " + strings.Join(opts.AddDirs, ", ")
	}
	if opts.AppendSystemPrompt != "" {
		prompt += "\n\n" + opts.AppendSystemPrompt
	}
	return prompt
}

// stripSystem drops system messages so persisted history never carries
// the injected prompt.
func stripSystem(messages []llm.Message) []llm.Message {
	var filtered []llm.Message
	for _, message := range messages {
		if message.Role == "system" {
			continue
		}
		filtered = append(filtered, message)
	}
	return filtered
}

// persistNewMessages appends messages past the already-persisted prefix
// and updates the project's last-session pointer.
func persistNewMessages(
	store *session.Store,
	projectID string,
	sessionID string,
	all []llm.Message,
	alreadyPersisted int,
) error {
	fresh := stripSystem(all)
	if alreadyPersisted > len(fresh) {
		alreadyPersisted = len(fresh)
	}
	for _, message := range fresh[alreadyPersisted:] {
		if err := store.AppendMessage(sessionID, message); err != nil {
			return err
		}
	}
	return store.SaveLastSession(projectID, sessionID)
}

// setupDebugLog opens the debug log file when a path is configured.
// A nil logger disables debug output.
func setupDebugLog(path string) (*log.Logger, func(), error) {
	if path == "" {
		return nil, func() {}, nil
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open debug file: %w", err)
	}
	logger := log.New(file, "pilot ", log.LstdFlags|log.Lmicroseconds)
	return logger, func() { _ = file.Close() }, nil
}

// debugf logs a formatted line when debug logging is enabled.
func debugf(logger *log.Logger, format string, args ...any) {
	if logger != nil {
		logger.Printf(format, args...)
	}
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
