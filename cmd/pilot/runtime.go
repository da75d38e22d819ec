package main

import (
	"github.com/pilotcli/pilot/internal/agent"
	"github.com/pilotcli/pilot/internal/config"
	"github.com/pilotcli/pilot/internal/confirm"
	"github.com/pilotcli/pilot/internal/llm"
	"github.com/pilotcli/pilot/internal/policy"
	"github.com/pilotcli/pilot/internal/status"
	"github.com/pilotcli/pilot/internal/tools"
)

// runtimeEnv bundles the wired agent runner with the channels the
// front-ends attach to.
type runtimeEnv struct {
	// runner executes agent runs behind the policy gate.
	runner *agent.Runner
	// confirm resolves confirmation requests raised by the gate.
	confirm *confirm.Manager
	// status carries transport status text (rate-limit waits).
	status *status.Manager
	// permissionMode is the effective mode for display.
	permissionMode policy.PermissionMode
}

// buildRuntime wires the transport, policy chain, tools, and agent runner.
func buildRuntime(
	opts *options,
	settings *config.Settings,
	apiKey string,
	model string,
	pricing map[string]config.ModelPricing,
	cwd string,
) (*runtimeEnv, error) {
	mode := policy.ParseMode(firstNonEmpty(opts.PermissionMode, settings.PermissionMode))

	engines := []policy.Engine{}
	if len(settings.DenyTools) > 0 {
		engines = append(engines, policy.NewDenyListEngine(settings.DenyTools))
	}
	engines = append(engines, policy.NewModeEngine(mode))

	confirmManager := confirm.NewManager()
	gate := policy.NewGate(policy.Chain(engines...), confirmManager)

	statusManager := status.NewManager()
	transport := llm.NewClient(config.ResolveBaseURL(settings), apiKey, requestTimeout)
	client := llm.NewRetryingClient(transport, statusManager)

	// Denied tools are also withheld from the model entirely.
	toolSet := tools.Filter(tools.DefaultTools(), nil, settings.DenyTools)
	toolRunner := tools.NewRunner(toolSet)

	runner := &agent.Runner{
		Client:       client,
		ToolRunner:   toolRunner,
		ToolContext:  tools.ToolContext{CWD: cwd},
		Gate:         gate,
		MaxTurns:     opts.MaxTurns,
		Pricing:      pricing,
		MaxBudgetUSD: opts.MaxBudgetUSD,
	}

	return &runtimeEnv{
		runner:         runner,
		confirm:        confirmManager,
		status:         statusManager,
		permissionMode: mode,
	}, nil
}
