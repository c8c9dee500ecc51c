package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/terrane-io/terrane/pkg/engine"
)

// Engine evaluates Rego policies against execution plans. It implements
// engine.PolicyGate: blocking violations come back as denial reasons.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

// compiledPolicy is a policy with its prepared deny query.
type compiledPolicy struct {
	policy   *Policy
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates a policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	for _, p := range BuiltinPolicies() {
		if err := e.compileAndStore(context.Background(), p); err != nil {
			return nil, fmt.Errorf("failed to compile built-in policy %s: %w", p.Name, err)
		}
	}
	return e, nil
}

// LoadPolicies compiles policy files from the given paths on top of the
// built-in set. A file policy with the same name replaces a built-in.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	for _, p := range policies {
		if err := e.compileAndStore(ctx, p); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", p.Name, err)
		}
	}

	e.logger.Info().Int("count", len(policies)).Msg("Policies loaded")
	return nil
}

// Evaluate implements engine.PolicyGate. Error and higher violations become
// denial reasons; warnings are logged and do not block.
func (e *Engine) Evaluate(ctx context.Context, plan *engine.Plan) ([]string, error) {
	result, err := e.EvaluatePlan(ctx, plan)
	if err != nil {
		return nil, err
	}

	for _, w := range result.Warnings {
		e.logger.Warn().
			Str("policy", w.Policy).
			Str("resource", w.Resource).
			Msg(w.Message)
	}

	denials := make([]string, 0, len(result.Violations))
	for _, v := range result.Violations {
		denials = append(denials, fmt.Sprintf("%s: %s", v.Policy, v.Message))
	}
	return denials, nil
}

// EvaluatePlan runs every enabled policy against the plan and collects
// violations by severity.
func (e *Engine) EvaluatePlan(ctx context.Context, plan *engine.Plan) (*Result, error) {
	started := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	input := planInput(plan)
	result := &Result{Allowed: true, EvaluatedAt: started}

	for _, cp := range e.policies {
		if !cp.policy.Enabled {
			continue
		}

		violations, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			return nil, engine.NewPermanentError(
				fmt.Sprintf("policy %s evaluation failed", cp.policy.Name), err).
				WithCode(engine.ErrCodeValidation)
		}

		for _, v := range violations {
			if v.Severity == SeverityError {
				result.Violations = append(result.Violations, v)
				result.Allowed = false
			} else {
				result.Warnings = append(result.Warnings, v)
			}
		}
	}

	e.logger.Debug().
		Str("plan_id", plan.ID).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Dur("duration", time.Since(started)).
		Msg("Plan policy evaluation completed")

	return result, nil
}

// evaluatePolicy runs one prepared deny query against the input.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input map[string]any) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]any)
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, makeViolation(cp.policy, d))
			}
		}
	}
	return violations, nil
}

// makeViolation converts a deny result into a Violation. String results use
// the policy's default severity; object results may override it.
func makeViolation(policy *Policy, result any) Violation {
	violation := Violation{
		Policy:   policy.Name,
		Severity: policy.Severity,
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]any:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = Severity(sev)
		}
		if res, ok := v["resource"].(string); ok {
			violation.Resource = res
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}
	return violation
}

// compileAndStore prepares the policy's deny query for reuse.
func (e *Engine) compileAndStore(ctx context.Context, policy Policy) error {
	query, err := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Query(fmt.Sprintf("data.%s.deny", packageName(policy.Rego))),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare query: %w", err)
	}

	e.mu.Lock()
	e.policies[policy.Name] = &compiledPolicy{
		policy:   &policy,
		query:    query,
		compiled: time.Now(),
	}
	e.mu.Unlock()

	e.logger.Debug().Str("policy", policy.Name).Msg("Policy compiled")
	return nil
}

// ListPolicies returns all loaded policies.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		policies = append(policies, *cp.policy)
	}
	return policies
}

// planInput shapes a plan for Rego evaluation. Only stable scalar fields
// cross the boundary; attribute expressions stay on the Go side.
func planInput(plan *engine.Plan) map[string]any {
	actions := make([]any, 0, len(plan.Actions))
	for _, action := range plan.Actions {
		actions = append(actions, map[string]any{
			"identity": action.Identity,
			"type":     action.Type,
			"op":       string(action.Op),
			"protect":  action.Protect,
			"level":    action.Level,
		})
	}
	return map[string]any{
		"plan": map[string]any{
			"id":      plan.ID,
			"actions": actions,
			"summary": map[string]any{
				"create": plan.Summary.Create,
				"update": plan.Summary.Update,
				"delete": plan.Summary.Delete,
				"noop":   plan.Summary.Noop,
			},
		},
	}
}

// packageName extracts the package path from Rego source.
func packageName(source string) string {
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "terrane.policies"
}

var _ engine.PolicyGate = (*Engine)(nil)
