// Package policy evaluates configured deny rules against action invocations.
package policy

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Knetic/govaluate"
)

// ErrDenied marks an invocation rejected by a deny rule.
var ErrDenied = errors.New("policy: denied")

// RuleSpec is one deny rule as written in configuration.
type RuleSpec struct {
	// Name identifies the rule in logs and errors.
	Name string

	// Expression is a boolean expression over the invocation parameters.
	// The action name is available as "action".
	Expression string
}

type rule struct {
	name       string
	expression *govaluate.EvaluableExpression
	vars       []string
}

// Engine holds the compiled deny rules.
type Engine struct {
	rules  []*rule
	logger *slog.Logger
}

// New compiles the deny rules. A rule that does not parse fails startup.
func New(specs []RuleSpec, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	engine := &Engine{logger: logger}
	for i, spec := range specs {
		name := spec.Name
		if name == "" {
			name = fmt.Sprintf("rule-%d", i)
		}
		expr, err := govaluate.NewEvaluableExpression(spec.Expression)
		if err != nil {
			return nil, fmt.Errorf("failed to parse policy rule %s: %w", name, err)
		}
		engine.rules = append(engine.rules, &rule{
			name:       name,
			expression: expr,
			vars:       expr.Vars(),
		})
	}
	return engine, nil
}

// Len reports the number of compiled rules.
func (e *Engine) Len() int {
	if e == nil {
		return 0
	}
	return len(e.rules)
}

// Check evaluates every rule against the invocation. The first matching rule
// denies it. A rule referencing a parameter the invocation does not carry
// cannot match; a rule that fails to evaluate is logged and skipped.
func (e *Engine) Check(action string, params map[string]any) error {
	if e == nil || len(e.rules) == 0 {
		return nil
	}

	vars := make(map[string]any, len(params)+1)
	for key, value := range params {
		vars[key] = value
	}
	vars["action"] = action

	for _, r := range e.rules {
		matched, err := r.eval(vars)
		if err != nil {
			e.logger.Warn("policy rule evaluation failed",
				"rule", r.name,
				"action", action,
				"error", err,
			)
			continue
		}
		if matched {
			e.logger.Info("policy rule denied action",
				"rule", r.name,
				"action", action,
			)
			return fmt.Errorf("%w by rule %s", ErrDenied, r.name)
		}
	}
	return nil
}

func (r *rule) eval(vars map[string]any) (bool, error) {
	for _, name := range r.vars {
		if _, ok := vars[name]; !ok {
			return false, nil
		}
	}

	result, err := r.expression.Evaluate(vars)
	if err != nil {
		return false, err
	}
	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expression is not boolean, got %T", result)
	}
	return matched, nil
}
