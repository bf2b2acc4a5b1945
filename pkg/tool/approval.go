package tool

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ApprovalRequest describes one tool call awaiting a decision
type ApprovalRequest struct {
	CallID string                 `json:"call_id"`
	Tool   string                 `json:"tool"`
	Agent  string                 `json:"agent"`
	Args   map[string]interface{} `json:"args"`
}

// Decision is the outcome of an approval request
type Decision struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

// Decider resolves a pending approval to an approve/deny decision. The call
// may block for as long as the external decision takes; the invocation stays
// suspended until it returns.
type Decider interface {
	Decide(ctx context.Context, req ApprovalRequest) (Decision, error)
}

// ApprovalManager runs the approval workflow for tool calls whose
// NeedsApproval predicate fired. While a decision is outstanding the call is
// in the pending state; other calls in the same turn are unaffected.
type ApprovalManager struct {
	decider        Decider
	defaultTimeout time.Duration
	pending        atomic.Int64

	// OnDecision, when set, observes every resolved request. Timeouts and
	// decider errors count as denials.
	OnDecision func(approved bool)
}

// NewApprovalManager creates a new approval manager
func NewApprovalManager(decider Decider) *ApprovalManager {
	return &ApprovalManager{
		decider:        decider,
		defaultTimeout: 60 * time.Second,
	}
}

// SetDefaultTimeout sets the decision deadline
func (am *ApprovalManager) SetDefaultTimeout(timeout time.Duration) {
	am.defaultTimeout = timeout
}

// PendingCount returns the number of calls currently suspended on a decision
func (am *ApprovalManager) PendingCount() int {
	return int(am.pending.Load())
}

// Request suspends the calling invocation until the decider answers, the
// deadline expires, or the context is cancelled. A timeout or decider error
// counts as denial.
func (am *ApprovalManager) Request(ctx context.Context, req ApprovalRequest) (Decision, error) {
	if am.decider == nil {
		return Decision{}, fmt.Errorf("no approval decider configured")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, am.defaultTimeout)
	defer cancel()

	log.Info().
		Str("tool", req.Tool).
		Str("call_id", req.CallID).
		Str("agent", req.Agent).
		Msg("Tool call pending approval")

	am.pending.Add(1)
	defer am.pending.Add(-1)

	decisionChan := make(chan Decision, 1)
	errorChan := make(chan error, 1)

	go func() {
		decision, err := am.decider.Decide(timeoutCtx, req)
		if err != nil {
			errorChan <- err
		} else {
			decisionChan <- decision
		}
	}()

	select {
	case decision := <-decisionChan:
		if decision.Approved {
			log.Info().Str("tool", req.Tool).Str("reason", decision.Reason).Msg("Approval granted")
		} else {
			log.Warn().Str("tool", req.Tool).Str("reason", decision.Reason).Msg("Approval denied")
		}
		am.observe(decision.Approved)
		return decision, nil

	case err := <-errorChan:
		log.Error().Err(err).Str("tool", req.Tool).Msg("Approval request failed")
		am.observe(false)
		return Decision{}, fmt.Errorf("approval request failed: %w", err)

	case <-timeoutCtx.Done():
		log.Warn().Str("tool", req.Tool).Msg("Approval request timed out")
		am.observe(false)
		return Decision{}, fmt.Errorf("approval request timed out after %v", am.defaultTimeout)
	}
}

func (am *ApprovalManager) observe(approved bool) {
	if am.OnDecision != nil {
		am.OnDecision(approved)
	}
}

// StaticDecider answers every request with a fixed decision. Useful in tests
// and for policy-pinned deployments.
type StaticDecider struct {
	Decision Decision
	Delay    time.Duration
	Err      error
}

// Decide implements Decider
func (d *StaticDecider) Decide(ctx context.Context, req ApprovalRequest) (Decision, error) {
	if d.Delay > 0 {
		select {
		case <-time.After(d.Delay):
		case <-ctx.Done():
			return Decision{}, ctx.Err()
		}
	}
	if d.Err != nil {
		return Decision{}, d.Err
	}
	return d.Decision, nil
}
