package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// Invocation is one tool call requested by the model
type Invocation struct {
	CallID string
	Name   string
	Agent  string
	Args   map[string]interface{}
}

// Result is the outcome of an invocation. Failures that the model can
// recover from conversationally are carried in Err rather than returned as
// Go errors.
type Result struct {
	CallID   string `json:"call_id"`
	Output   string `json:"output,omitempty"`
	Err      string `json:"error,omitempty"`
	Rejected bool   `json:"rejected,omitempty"`
}

// IsError reports whether the invocation failed
func (r Result) IsError() bool {
	return r.Err != ""
}

// Invoker executes invocations against a registry, applying parameter
// validation and the approval gate. Each approved call executes exactly
// once; the returned value or error is propagated faithfully into the
// Result.
type Invoker struct {
	registry  *Registry
	approvals *ApprovalManager
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewInvoker creates an invoker over a registry. approvals may be nil, in
// which case any tool demanding approval is rejected.
func NewInvoker(registry *Registry, approvals *ApprovalManager, logger zerolog.Logger) *Invoker {
	return &Invoker{
		registry:  registry,
		approvals: approvals,
		timeout:   30 * time.Second,
		logger:    logger,
	}
}

// SetTimeout overrides the per-call execution deadline
func (inv *Invoker) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		inv.timeout = timeout
	}
}

// Invoke executes one tool call. Unknown names, validation failures,
// approval denials, and execution errors all come back as error-bearing
// Results so the model can adapt; only the surrounding run decides whether
// to abort.
func (inv *Invoker) Invoke(ctx context.Context, rc *RunContext, call Invocation) Result {
	startTime := time.Now()
	logger := inv.logger.With().Str("tool", call.Name).Str("call_id", call.CallID).Logger()

	e := inv.registry.lookup(call.Name)
	if e == nil {
		logger.Warn().Msg("Unknown tool requested")
		return Result{
			CallID: call.CallID,
			Err:    fmt.Sprintf("unknown tool: %s", call.Name),
		}
	}

	if e.schema != nil {
		if err := validateParams(e, call.Args); err != nil {
			logger.Warn().Err(err).Msg("Parameter validation failed")
			return Result{
				CallID: call.CallID,
				Err:    fmt.Sprintf("parameter validation failed: %v", err),
			}
		}
	}

	if e.local != nil && e.local.NeedsApproval != nil && e.local.NeedsApproval(rc, call.Args) {
		if inv.approvals == nil {
			logger.Warn().Msg("Approval required but no decider configured")
			return Result{
				CallID:   call.CallID,
				Err:      fmt.Sprintf("tool %s requires approval but no decider is configured", call.Name),
				Rejected: true,
			}
		}

		decision, err := inv.approvals.Request(ctx, ApprovalRequest{
			CallID: call.CallID,
			Tool:   call.Name,
			Agent:  call.Agent,
			Args:   call.Args,
		})
		if err != nil {
			return Result{
				CallID:   call.CallID,
				Err:      fmt.Sprintf("approval failed: %v", err),
				Rejected: true,
			}
		}
		if !decision.Approved {
			reason := decision.Reason
			if reason == "" {
				reason = "no reason given"
			}
			return Result{
				CallID:   call.CallID,
				Err:      fmt.Sprintf("tool call rejected: %s", reason),
				Rejected: true,
			}
		}
	}

	output, err := inv.execute(ctx, rc, e, call)
	duration := time.Since(startTime)

	if err != nil {
		logger.Error().Err(err).Dur("duration", duration).Msg("Tool execution failed")
		return Result{
			CallID: call.CallID,
			Err:    err.Error(),
		}
	}

	logger.Debug().Dur("duration", duration).Msg("Tool execution completed")
	return Result{
		CallID: call.CallID,
		Output: output,
	}
}

func (inv *Invoker) execute(ctx context.Context, rc *RunContext, e *entry, call Invocation) (string, error) {
	execCtx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	if e.remote != nil {
		return e.remote.Invoke(execCtx, e.remoteName, call.Args)
	}

	resultChan := make(chan interface{}, 1)
	errChan := make(chan error, 1)

	go func() {
		result, err := e.local.Handler(execCtx, rc, call.Args)
		if err != nil {
			errChan <- err
		} else {
			resultChan <- result
		}
	}()

	select {
	case result := <-resultChan:
		return stringifyOutput(result), nil
	case err := <-errChan:
		return "", err
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("tool execution timeout after %v", inv.timeout)
	}
}

func validateParams(e *entry, params map[string]interface{}) error {
	if params == nil {
		params = map[string]interface{}{}
	}
	result, err := e.schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}
	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, verr := range result.Errors() {
			errs = append(errs, verr.String())
		}
		return fmt.Errorf("validation errors: %v", errs)
	}
	return nil
}

func stringifyOutput(output interface{}) string {
	switch v := output.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		if encoded, err := json.Marshal(v); err == nil {
			return string(encoded)
		}
		return fmt.Sprintf("%v", v)
	}
}
