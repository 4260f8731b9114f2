package fraud

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-claims/kestrel/internal/domain"
)

// Engine compiles and evaluates admin-defined CEL rules. Expressions
// see the claim and its policy context and must return bool; a true
// result fires the rule with its configured severity.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// Firing is one custom rule that evaluated true.
type Firing struct {
	Code     string
	Severity domain.Severity
	Details  string
}

// NewEngine creates a new custom-rule engine.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("claim", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("claim_type", cel.StringType),
		cel.Variable("document_count", cel.IntType),
		cel.Variable("premium", cel.DoubleType),
		cel.Variable("deductible", cel.DoubleType),
		cel.Variable("coverage_amount", cel.DoubleType),
		cel.Variable("days_since_policy_start", cel.IntType),
		cel.Variable("incident_age_days", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.Code] = compiled
	return nil
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.Code] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// EvaluateAll evaluates every loaded rule against the claim input
// and returns the firings. A rule whose evaluation errors is skipped.
func (e *Engine) EvaluateAll(ctx context.Context, in *Input) ([]Firing, []error) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}

	activation := buildActivation(in)

	var firings []Firing
	var errs []error
	for _, rule := range rules {
		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %s: %w", rule.Config.Code, err))
			continue
		}

		if b, ok := out.(types.Bool); ok && bool(b) {
			details := rule.Config.Description
			if details == "" {
				details = fmt.Sprintf("custom rule %s matched: %s", rule.Config.Code, rule.Config.Expression)
			}
			firings = append(firings, Firing{
				Code:     rule.Config.Code,
				Severity: rule.Config.Severity,
				Details:  details,
			})
		}
	}

	return firings, errs
}

func buildActivation(in *Input) map[string]any {
	activation := map[string]any{
		"claim": map[string]any{
			"id":             in.Claim.ID,
			"claim_number":   in.Claim.ClaimNumber,
			"claim_type":     in.Claim.ClaimType,
			"amount_claimed": in.Claim.AmountClaimed,
			"status":         string(in.Claim.Status),
		},
		"amount":                  in.Claim.AmountClaimed,
		"claim_type":              in.Claim.ClaimType,
		"document_count":          int64(len(in.Documents)),
		"premium":                 0.0,
		"deductible":              0.0,
		"coverage_amount":         0.0,
		"days_since_policy_start": int64(0),
		"incident_age_days":       int64(in.Now.Sub(in.Claim.IncidentDate).Hours() / 24),
	}

	if in.Policy != nil {
		activation["premium"] = in.Policy.Premium
		activation["deductible"] = in.Policy.Deductible
		activation["coverage_amount"] = in.Policy.CoverageAmount
	}
	if in.UserPolicy != nil {
		activation["days_since_policy_start"] = int64(in.Claim.IncidentDate.Sub(in.UserPolicy.StartDate).Hours() / 24)
	}

	return activation
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RuleConfig, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.Code, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.Code, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.Code, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
