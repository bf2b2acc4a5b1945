package tool

import "context"

// PolicyDecider answers approvals from static allow/deny lists, with a
// default for tools on neither list. Deny wins over allow.
type PolicyDecider struct {
	Allow          []string
	Deny           []string
	DefaultApprove bool
}

// Decide implements Decider
func (d *PolicyDecider) Decide(ctx context.Context, req ApprovalRequest) (Decision, error) {
	for _, denied := range d.Deny {
		if denied == req.Tool || denied == "*" {
			return Decision{Approved: false, Reason: "denied by policy"}, nil
		}
	}
	for _, allowed := range d.Allow {
		if allowed == req.Tool || allowed == "*" {
			return Decision{Approved: true, Reason: "allowed by policy"}, nil
		}
	}
	if d.DefaultApprove {
		return Decision{Approved: true, Reason: "default policy"}, nil
	}
	return Decision{Approved: false, Reason: "default policy"}, nil
}
