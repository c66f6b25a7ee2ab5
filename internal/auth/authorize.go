package auth

import (
	"context"
	"fmt"
)

// Reason explains a Decision.
type Reason string

const (
	ReasonPrivileged       Reason = "privileged"
	ReasonSelfService      Reason = "self-service"
	ReasonInsufficientRank Reason = "insufficient-rank"
	ReasonNotOwner         Reason = "not-owner"
	ReasonUnknownOperation Reason = "unknown-operation"
	ReasonUnauthenticated  Reason = "unauthenticated"
)

// Decision is the outcome of a policy check. The zero value denies.
type Decision struct {
	Operation string
	Allowed   bool
	Reason    Reason
}

// Err converts a denial into ErrUnauthenticated or a wrapped ErrUnauthorized.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Reason == ReasonUnauthenticated {
		return ErrUnauthenticated
	}
	return fmt.Errorf("%w: %s (%s)", ErrUnauthorized, d.Operation, d.Reason)
}

// Guard evaluates the policy table for a caller and a target account.
type Guard struct {
	policies map[string]Policy
	observe  func(Decision)
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithPolicies overrides entries of the built-in table.
func WithPolicies(policies map[string]Policy) GuardOption {
	return func(g *Guard) {
		for op, p := range policies {
			g.policies[op] = p
		}
	}
}

// WithDecisionObserver registers fn to be called with every decision.
func WithDecisionObserver(fn func(Decision)) GuardOption {
	return func(g *Guard) {
		g.observe = fn
	}
}

// NewGuard builds a Guard over DefaultPolicies.
func NewGuard(opts ...GuardOption) *Guard {
	g := &Guard{policies: DefaultPolicies()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Policy returns the policy registered for op.
func (g *Guard) Policy(op string) (Policy, bool) {
	p, ok := g.policies[op]
	return p, ok
}

// Decide is a pure evaluation of op for caller against targetID. Rank-qualified callers
// are allowed regardless of target; self-service requires an exact identifier match.
func (g *Guard) Decide(caller Identity, op, targetID string) Decision {
	d := g.decide(caller, op, targetID)
	if g.observe != nil {
		g.observe(d)
	}
	return d
}

func (g *Guard) decide(caller Identity, op, targetID string) Decision {
	policy, ok := g.policies[op]
	if !ok {
		return Decision{Operation: op, Reason: ReasonUnknownOperation}
	}
	if caller.ID() == "" || len(caller.Roles) == 0 {
		return Decision{Operation: op, Reason: ReasonUnauthenticated}
	}
	if caller.Rank() >= policy.MinimumRank {
		return Decision{Operation: op, Allowed: true, Reason: ReasonPrivileged}
	}
	if !policy.SelfService || !holdsAny(caller, policy.SelfServiceRoles) {
		return Decision{Operation: op, Reason: ReasonInsufficientRank}
	}
	if targetID == "" || targetID != caller.ID() {
		return Decision{Operation: op, Reason: ReasonNotOwner}
	}
	return Decision{Operation: op, Allowed: true, Reason: ReasonSelfService}
}

// Authorize checks op for the identity carried by ctx.
func (g *Guard) Authorize(ctx context.Context, op, targetID string) error {
	caller, ok := PrincipalFromContext(ctx)
	if !ok {
		d := Decision{Operation: op, Reason: ReasonUnauthenticated}
		if g.observe != nil {
			g.observe(d)
		}
		return d.Err()
	}
	return g.Decide(caller, op, targetID).Err()
}

// HidesSuperAdmins reports whether viewer must not see accounts whose only role is SUPER-ADMIN.
func (g *Guard) HidesSuperAdmins(viewer Identity) bool {
	return !viewer.HasRole(RoleSuperAdmin)
}

// FilterAccounts drops every account the viewer may not observe in a listing.
func (g *Guard) FilterAccounts(viewer Identity, accounts []Identity) []Identity {
	if !g.HidesSuperAdmins(viewer) {
		return accounts
	}
	out := make([]Identity, 0, len(accounts))
	for _, acc := range accounts {
		if acc.SoleRole(RoleSuperAdmin) {
			continue
		}
		out = append(out, acc)
	}
	return out
}

func holdsAny(caller Identity, roles []Role) bool {
	for _, r := range roles {
		if caller.HasRole(r) {
			return true
		}
	}
	return false
}
