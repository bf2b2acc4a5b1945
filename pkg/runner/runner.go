// Package runner drives the conversation loop: it calls the model for the
// active agent, executes the tool calls it requests, applies handoffs, and
// appends everything to the shared history.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/harun/convoy/internal/metrics"
	"github.com/harun/convoy/internal/tracing"
	"github.com/harun/convoy/pkg/agent"
	"github.com/harun/convoy/pkg/history"
	"github.com/harun/convoy/pkg/provider"
	"github.com/harun/convoy/pkg/tool"
	"github.com/rs/zerolog"
)

// handoffPrefix marks the synthetic tool names agents use to transfer control
const handoffPrefix = "handoff_to_"

// ErrMaxTurnsExceeded is returned when a run consumes its whole turn budget
// without producing a final answer. The history holds everything appended up
// to that point.
var ErrMaxTurnsExceeded = errors.New("maximum turns exceeded")

// Config holds runner construction parameters
type Config struct {
	Agents    *agent.Registry
	Providers map[string]provider.Provider
	Approvals *tool.ApprovalManager
	Metrics   *metrics.Metrics
	MaxTurns  int
	Logger    zerolog.Logger
}

// Result is the outcome of one completed run
type Result struct {
	FinalOutput string
	LastAgent   string
	Turns       int
	Usage       provider.TokenUsage
}

// Runner executes conversation runs against a fixed agent roster
type Runner struct {
	agents    *agent.Registry
	providers map[string]provider.Provider
	approvals *tool.ApprovalManager
	metrics   *metrics.Metrics
	maxTurns  int
	logger    zerolog.Logger

	envMu sync.Mutex
	envs  map[string]*toolEnv
}

// toolEnv is the per-agent tool surface, built once per process
type toolEnv struct {
	invoker *tool.Invoker
	specs   []provider.ToolSpec
}

// New creates a runner
func New(cfg Config) (*Runner, error) {
	if cfg.Agents == nil || cfg.Agents.Count() == 0 {
		return nil, fmt.Errorf("at least one agent is required")
	}
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}
	if err := cfg.Agents.ValidateHandoffs(); err != nil {
		return nil, err
	}

	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 10
	}

	return &Runner{
		agents:    cfg.Agents,
		providers: cfg.Providers,
		approvals: cfg.Approvals,
		metrics:   cfg.Metrics,
		maxTurns:  maxTurns,
		logger:    cfg.Logger,
		envs:      make(map[string]*toolEnv),
	}, nil
}

// Run executes one conversation run starting at startAgent. The prompt is
// appended as a user turn; pass "" to continue from the existing history.
// On ErrMaxTurnsExceeded or cancellation the history keeps everything
// appended so far.
func (r *Runner) Run(ctx context.Context, startAgent string, rc *tool.RunContext, hist *history.History, prompt string) (Result, error) {
	def, err := r.agents.Get(startAgent)
	if err != nil {
		return Result{}, err
	}

	if tracing.GetRunID(ctx) == "" {
		ctx = tracing.NewAgentRunContext(ctx, startAgent)
	}
	logger := tracing.LoggerFromContext(ctx, r.logger)
	startTime := time.Now()

	if prompt != "" {
		hist.Append(history.NewUserMessage(prompt))
	}

	active := def
	result := Result{LastAgent: active.Name}

	for turn := 0; turn < r.maxTurns; turn++ {
		result.Turns = turn + 1

		response, err := r.callModel(ctx, active, rc, hist, logger)
		if err != nil {
			status := "error"
			if ctx.Err() != nil {
				status = "cancelled"
				err = ctx.Err()
			}
			r.recordRun(startAgent, status, result.Turns, startTime)
			return result, err
		}
		result.Usage.Add(response.Usage)

		// Plain text ends the run.
		if len(response.ToolCalls) == 0 {
			hist.Append(history.NewAssistantMessage(active.Name, response.Content))
			result.FinalOutput = response.Content
			result.LastAgent = active.Name
			r.recordRun(startAgent, "ok", result.Turns, startTime)
			return result, nil
		}

		// A lone valid handoff produces only the event, no call/result pair.
		if target, ok := r.soleValidHandoff(active, response); ok {
			hist.Append(history.NewHandoff(active.Name, target))
			r.recordHandoff(active.Name, target, "ok")
			logger.Info().Str("from", active.Name).Str("to", target).Msg("Agent handoff")

			active, err = r.agents.Get(target)
			if err != nil {
				r.recordRun(startAgent, "error", result.Turns, startTime)
				return result, err
			}
			result.LastAgent = active.Name
			continue
		}

		next, err := r.executeToolTurn(ctx, active, rc, hist, response, logger)
		if err != nil {
			status := "error"
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				status = "cancelled"
			}
			r.recordRun(startAgent, status, result.Turns, startTime)
			return result, err
		}
		if next != "" {
			active, err = r.agents.Get(next)
			if err != nil {
				r.recordRun(startAgent, "error", result.Turns, startTime)
				return result, err
			}
			result.LastAgent = active.Name
		}
	}

	r.recordRun(startAgent, "max_turns", result.Turns, startTime)
	return result, fmt.Errorf("%w after %d turns", ErrMaxTurnsExceeded, r.maxTurns)
}

// callModel renders instructions, snapshots the history, and calls the
// active agent's backend with retry.
func (r *Runner) callModel(ctx context.Context, active agent.Definition, rc *tool.RunContext, hist *history.History, logger zerolog.Logger) (*provider.Response, error) {
	backend, ok := r.providers[active.Model.Provider]
	if !ok {
		return nil, fmt.Errorf("no provider configured for backend: %s", active.Model.Provider)
	}

	env, err := r.envFor(ctx, active)
	if err != nil {
		return nil, err
	}

	request := provider.Request{
		Model:       active.Model.Model,
		System:      active.RenderInstructions(rc),
		Messages:    buildMessages(hist.Snapshot()),
		Tools:       append(env.specs, handoffSpecs(active)...),
		Temperature: active.Model.Temperature,
		MaxTokens:   active.Model.MaxTokens,
	}

	response, err := provider.CallWithRetry(ctx, backend, request, active.Model.MaxRetries, logger)
	if r.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		r.metrics.ModelCallsTotal.WithLabelValues(active.Model.Provider, status).Inc()
	}
	return response, err
}

// executeToolTurn runs every requested call and appends the assistant turn,
// its tool calls, and their results in issue order. Nothing is appended when
// the context is cancelled mid-flight, so the call/result invariant holds.
// It returns the handoff target when one of the calls was a valid handoff.
func (r *Runner) executeToolTurn(ctx context.Context, active agent.Definition, rc *tool.RunContext, hist *history.History, response *provider.Response, logger zerolog.Logger) (string, error) {
	env, err := r.envFor(ctx, active)
	if err != nil {
		return "", err
	}

	// Some backends omit call IDs; synthesize them so every call item pairs
	// with its result.
	for i := range response.ToolCalls {
		if response.ToolCalls[i].ID == "" {
			response.ToolCalls[i].ID = history.NewCallID()
		}
	}

	results := make([]tool.Result, len(response.ToolCalls))
	handoffTarget := ""

	var wg sync.WaitGroup
	for i, call := range response.ToolCalls {
		if target, isHandoff := strings.CutPrefix(call.Name, handoffPrefix); isHandoff {
			if active.CanHandoffTo(target) && handoffTarget == "" {
				handoffTarget = target
				results[i] = tool.Result{
					CallID: call.ID,
					Output: fmt.Sprintf("transferring to %s", target),
				}
				r.recordHandoff(active.Name, target, "ok")
			} else {
				results[i] = tool.Result{
					CallID: call.ID,
					Err:    fmt.Sprintf("invalid handoff: agent %s cannot transfer to %s", active.Name, target),
				}
				r.recordHandoff(active.Name, target, "invalid")
			}
			continue
		}

		wg.Add(1)
		go func(i int, call provider.ToolCall) {
			defer wg.Done()
			start := time.Now()
			results[i] = env.invoker.Invoke(ctx, rc, tool.Invocation{
				CallID: call.ID,
				Name:   call.Name,
				Agent:  active.Name,
				Args:   call.Args,
			})
			r.recordTool(call.Name, results[i], time.Since(start))
		}(i, call)
	}
	wg.Wait()

	if ctx.Err() != nil {
		logger.Warn().Msg("Run cancelled during tool execution, discarding partial results")
		return "", ctx.Err()
	}

	items := make([]history.Item, 0, 1+2*len(response.ToolCalls))
	items = append(items, history.NewAssistantMessage(active.Name, response.Content))
	for _, call := range response.ToolCalls {
		items = append(items, history.NewToolCall(call.ID, call.Name, call.Args))
	}
	for _, result := range results {
		output := result.Output
		if result.IsError() {
			output = result.Err
		}
		items = append(items, history.NewToolResult(result.CallID, output, result.IsError()))
	}
	hist.Append(items...)

	if handoffTarget != "" {
		hist.Append(history.NewHandoff(active.Name, handoffTarget))
		logger.Info().Str("from", active.Name).Str("to", handoffTarget).Msg("Agent handoff")
	}
	return handoffTarget, nil
}

// soleValidHandoff reports whether the response is exactly one call naming a
// declared handoff peer.
func (r *Runner) soleValidHandoff(active agent.Definition, response *provider.Response) (string, bool) {
	if len(response.ToolCalls) != 1 {
		return "", false
	}
	target, isHandoff := strings.CutPrefix(response.ToolCalls[0].Name, handoffPrefix)
	if !isHandoff || !active.CanHandoffTo(target) {
		return "", false
	}
	return target, true
}

// envFor builds (once) the tool surface for an agent: its local definitions
// plus every tool on its capability servers, in one registry.
func (r *Runner) envFor(ctx context.Context, def agent.Definition) (*toolEnv, error) {
	r.envMu.Lock()
	defer r.envMu.Unlock()

	if env, ok := r.envs[def.Name]; ok {
		return env, nil
	}

	registry := tool.NewRegistry()
	for _, td := range def.Tools {
		if err := registry.Register(td); err != nil {
			return nil, fmt.Errorf("agent %s: %w", def.Name, err)
		}
	}
	for _, server := range def.Servers {
		if _, err := registry.BindServer(ctx, server); err != nil {
			return nil, fmt.Errorf("agent %s: %w", def.Name, err)
		}
	}

	specs := make([]provider.ToolSpec, 0, len(registry.Names()))
	for _, spec := range registry.Specs() {
		specs = append(specs, provider.ToolSpec{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.InputSchema,
		})
	}

	env := &toolEnv{
		invoker: tool.NewInvoker(registry, r.approvals, r.logger),
		specs:   specs,
	}
	r.envs[def.Name] = env
	return env, nil
}

// handoffSpecs builds the synthetic tool specs that surface an agent's
// handoff peers to the model.
func handoffSpecs(def agent.Definition) []provider.ToolSpec {
	specs := make([]provider.ToolSpec, 0, len(def.HandoffTargets))
	for _, target := range def.HandoffTargets {
		specs = append(specs, provider.ToolSpec{
			Name:        handoffPrefix + target,
			Description: fmt.Sprintf("Transfer the conversation to the %s agent.", target),
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		})
	}
	return specs
}

// buildMessages renders history items into backend-neutral messages. Tool
// calls attach to the assistant turn that issued them; handoffs become a
// user-visible note so every backend sees the transfer.
func buildMessages(items []history.Item) []provider.Message {
	messages := make([]provider.Message, 0, len(items))

	for _, item := range items {
		switch item.Type {
		case history.ItemUserMessage:
			messages = append(messages, provider.Message{Role: "user", Content: item.Content})

		case history.ItemAssistantMessage:
			messages = append(messages, provider.Message{Role: "assistant", Content: item.Content})

		case history.ItemToolCall:
			if n := len(messages); n > 0 && messages[n-1].Role == "assistant" {
				messages[n-1].ToolCalls = append(messages[n-1].ToolCalls, provider.ToolCall{
					ID:   item.CallID,
					Name: item.ToolName,
					Args: item.Args,
				})
			}

		case history.ItemToolResult:
			messages = append(messages, provider.Message{
				Role:       "tool",
				Content:    item.Output,
				ToolCallID: item.CallID,
				IsError:    item.IsError,
			})

		case history.ItemHandoff:
			messages = append(messages, provider.Message{
				Role:    "user",
				Content: fmt.Sprintf("(control transferred from %s to %s)", item.From, item.To),
			})
		}
	}
	return messages
}

func (r *Runner) recordRun(agentName, status string, turns int, start time.Time) {
	if r.metrics == nil {
		return
	}
	r.metrics.RunsTotal.WithLabelValues(agentName, status).Inc()
	r.metrics.RunDuration.WithLabelValues(agentName).Observe(time.Since(start).Seconds())
	r.metrics.TurnsPerRun.WithLabelValues(agentName).Observe(float64(turns))
}

func (r *Runner) recordHandoff(from, to, status string) {
	if r.metrics == nil {
		return
	}
	r.metrics.HandoffsTotal.WithLabelValues(from, to, status).Inc()
}

func (r *Runner) recordTool(name string, result tool.Result, elapsed time.Duration) {
	if r.metrics == nil {
		return
	}
	status := "ok"
	switch {
	case result.Rejected:
		status = "rejected"
	case result.IsError():
		status = "error"
	}
	r.metrics.ToolInvocationsTotal.WithLabelValues(name, status).Inc()
	r.metrics.ToolDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}
