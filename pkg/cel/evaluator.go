package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// Facts is the view of an alert that mute rules are evaluated against.
type Facts struct {
	EventType string
	Category  string
	Severity  string
	Context   map[string]interface{}
	Metadata  map[string]interface{}
}

func (f Facts) vars() map[string]interface{} {
	ctx := f.Context
	if ctx == nil {
		ctx = map[string]interface{}{}
	}
	md := f.Metadata
	if md == nil {
		md = map[string]interface{}{}
	}
	return map[string]interface{}{
		"event_type": f.EventType,
		"category":   f.Category,
		"severity":   f.Severity,
		"context":    ctx,
		"metadata":   md,
	}
}

type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("event_type", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("severity", cel.StringType),
		cel.Variable("context", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("metadata", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

// Rule is a compiled boolean expression.
type Rule struct {
	Expression string
	program    cel.Program
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, err := e.Compile(expression)
	return err
}

func (e *Evaluator) Compile(expression string) (*Rule, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Rule{Expression: expression, program: program}, nil
}

// CompileAll compiles every expression, failing on the first invalid one.
func (e *Evaluator) CompileAll(expressions []string) ([]*Rule, error) {
	rules := make([]*Rule, 0, len(expressions))
	for i, expr := range expressions {
		rule, err := e.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (r *Rule) Matches(ctx context.Context, facts Facts) (bool, error) {
	result, _, err := r.program.ContextEval(ctx, facts.vars())
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}
