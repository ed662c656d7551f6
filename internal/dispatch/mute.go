package dispatch

import (
	"context"

	"bizpulse/internal/alert"
	"bizpulse/internal/logger"
	"bizpulse/pkg/cel"
)

// MuteRules suppresses events matching any operator-defined CEL rule.
type MuteRules struct {
	rules  []*cel.Rule
	logger logger.Logger
}

func NewMuteRules(expressions []string, log logger.Logger) (*MuteRules, error) {
	if len(expressions) == 0 {
		return &MuteRules{logger: log}, nil
	}

	eval, err := cel.NewEvaluator()
	if err != nil {
		return nil, err
	}
	rules, err := eval.CompileAll(expressions)
	if err != nil {
		return nil, err
	}
	return &MuteRules{rules: rules, logger: log}, nil
}

// Match returns the first matching rule. A rule that fails to evaluate does
// not mute.
func (m *MuteRules) Match(ctx context.Context, e alert.Event) (string, bool) {
	if m == nil || len(m.rules) == 0 {
		return "", false
	}

	facts := cel.Facts{
		EventType: e.Type(),
		Category:  string(e.Category()),
		Severity:  string(e.Severity()),
		Context:   e.Context(),
		Metadata:  e.Metadata(),
	}
	for _, rule := range m.rules {
		matched, err := rule.Matches(ctx, facts)
		if err != nil {
			m.logger.DebugwCtx(ctx, "Mute rule evaluation failed",
				"rule", rule.Expression,
				"event_type", e.Type(),
				"error", err,
			)
			continue
		}
		if matched {
			return rule.Expression, true
		}
	}
	return "", false
}
