// Package fraud provides the claim fraud detection engine: a registry
// of built-in rules, a CEL engine for admin-defined rules, a parallel
// evaluator, and a risk classifier over persisted flags.
package fraud

import (
	"context"
	"time"

	"github.com/opensource-claims/kestrel/internal/domain"
	"github.com/opensource-claims/kestrel/internal/history"
)

// Input is the read-only view of a claim a rule checks against.
// Policy and UserPolicy may be nil when lookups failed; rules return
// false rather than error on missing related data.
type Input struct {
	Claim      *domain.Claim
	UserPolicy *domain.UserPolicy
	Policy     *domain.Policy
	Documents  []*domain.ClaimDocument
	History    history.Reader
	Now        time.Time
}

// CheckFunc inspects a claim and reports whether the rule fired,
// with a details payload naming the concrete numbers behind the
// trigger. Checks must not mutate state.
type CheckFunc func(ctx context.Context, in *Input) (bool, string, error)

// Rule pairs a stable code and default severity with its check.
type Rule struct {
	Code     string
	Severity domain.Severity
	Check    CheckFunc
}
