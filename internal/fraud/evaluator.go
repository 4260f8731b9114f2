package fraud

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-claims/kestrel/internal/domain"
	"github.com/opensource-claims/kestrel/internal/history"
)

// Evaluator runs every registered rule against one claim and persists
// a FraudFlag for each firing. Flags are append-only: re-running an
// evaluation appends new rows for rules that still trigger.
type Evaluator struct {
	repo       domain.Repository
	history    history.Reader
	cache      domain.Cache
	engine     *Engine
	rules      []Rule
	maxWorkers int
}

// NewEvaluator creates an evaluator with the built-in rule set and an
// optional CEL engine for custom rules (may be nil).
func NewEvaluator(repo domain.Repository, hist history.Reader, cacheStore domain.Cache, engine *Engine, cfg domain.FraudConfig) *Evaluator {
	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	return &Evaluator{
		repo:       repo,
		history:    hist,
		cache:      cacheStore,
		engine:     engine,
		rules:      BuiltinRules(cfg),
		maxWorkers: maxWorkers,
	}
}

type ruleOutcome struct {
	code      string
	severity  domain.Severity
	triggered bool
	details   string
	err       error
}

// Evaluate loads the claim and its policy context, runs all rules,
// persists a flag per firing, and returns the created flags. A rule
// that errors or panics is logged and skipped; it never blocks the
// others. A missing claim is the only fatal condition.
func (e *Evaluator) Evaluate(ctx context.Context, claimID string) ([]*domain.FraudFlag, error) {
	claim, err := e.repo.GetClaim(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("load claim: %w", err)
	}

	in := e.buildInput(ctx, claim)

	outcomes := e.runRules(ctx, in)

	var flags []*domain.FraudFlag
	for _, outcome := range outcomes {
		if outcome.err != nil {
			slog.Warn("fraud rule failed",
				"rule_code", outcome.code,
				"claim_id", claimID,
				"error", outcome.err,
			)
			continue
		}
		if !outcome.triggered {
			continue
		}

		flag := &domain.FraudFlag{
			ID:        uuid.New().String(),
			ClaimID:   claimID,
			RuleCode:  outcome.code,
			Severity:  outcome.severity,
			Details:   outcome.details,
			CreatedAt: time.Now().UTC(),
		}

		if err := e.repo.SaveFraudFlag(ctx, flag); err != nil {
			slog.Error("failed to persist fraud flag",
				"rule_code", outcome.code,
				"claim_id", claimID,
				"error", err,
			)
			continue
		}
		flags = append(flags, flag)
	}

	// Custom CEL rules fire exactly like built-ins.
	if e.engine != nil {
		firings, errs := e.engine.EvaluateAll(ctx, in)
		for _, evalErr := range errs {
			slog.Warn("custom rule evaluation failed",
				"claim_id", claimID,
				"error", evalErr,
			)
		}
		for _, firing := range firings {
			flag := &domain.FraudFlag{
				ID:        uuid.New().String(),
				ClaimID:   claimID,
				RuleCode:  firing.Code,
				Severity:  firing.Severity,
				Details:   firing.Details,
				CreatedAt: time.Now().UTC(),
			}
			if err := e.repo.SaveFraudFlag(ctx, flag); err != nil {
				slog.Error("failed to persist fraud flag",
					"rule_code", firing.Code,
					"claim_id", claimID,
					"error", err,
				)
				continue
			}
			flags = append(flags, flag)
		}
	}

	// New flags invalidate any cached risk summary for the claim.
	if e.cache != nil && len(flags) > 0 {
		_ = e.cache.Delete(ctx, riskCacheKey(claimID))
	}

	slog.Info("fraud evaluation completed",
		"claim_id", claimID,
		"rules_run", len(outcomes),
		"flags_created", len(flags),
	)

	return flags, nil
}

// buildInput assembles the rule input. Policy lookups degrade to nil
// on failure; rules handle the absence.
func (e *Evaluator) buildInput(ctx context.Context, claim *domain.Claim) *Input {
	in := &Input{
		Claim:   claim,
		History: e.history,
		Now:     time.Now().UTC(),
	}

	userPolicy, err := e.repo.GetUserPolicy(ctx, claim.UserPolicyID)
	if err != nil {
		slog.Warn("user policy lookup failed during evaluation",
			"claim_id", claim.ID,
			"user_policy_id", claim.UserPolicyID,
			"error", err,
		)
	} else {
		in.UserPolicy = userPolicy
		policy, err := e.repo.GetPolicy(ctx, userPolicy.PolicyID)
		if err != nil {
			slog.Warn("policy lookup failed during evaluation",
				"claim_id", claim.ID,
				"policy_id", userPolicy.PolicyID,
				"error", err,
			)
		} else {
			in.Policy = policy
		}
	}

	docs, err := e.repo.ListDocuments(ctx, claim.ID)
	if err != nil {
		slog.Warn("document listing failed during evaluation",
			"claim_id", claim.ID,
			"error", err,
		)
	} else {
		in.Documents = docs
	}

	return in
}

// runRules executes the built-in rules in parallel, bounded by
// maxWorkers. A panicking rule is converted to an error outcome.
func (e *Evaluator) runRules(ctx context.Context, in *Input) []ruleOutcome {
	outcomes := make([]ruleOutcome, len(e.rules))
	var wg sync.WaitGroup

	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range e.rules {
		wg.Add(1)
		go func(idx int, r Rule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			outcomes[idx] = e.runRule(ctx, r, in)
		}(i, rule)
	}

	wg.Wait()
	return outcomes
}

func (e *Evaluator) runRule(ctx context.Context, r Rule, in *Input) (outcome ruleOutcome) {
	outcome = ruleOutcome{code: r.Code, severity: r.Severity}

	defer func() {
		if rec := recover(); rec != nil {
			outcome.triggered = false
			outcome.err = fmt.Errorf("rule panicked: %v", rec)
		}
	}()

	triggered, details, err := r.Check(ctx, in)
	outcome.triggered = triggered
	outcome.details = details
	outcome.err = err
	return outcome
}
