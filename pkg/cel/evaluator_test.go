package cel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)
	assert.NotNil(t, eval)
}

func TestValidateExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{
			name: "valid severity check",
			expr: `severity == "LOW"`,
		},
		{
			name: "valid context access",
			expr: `context.amount > 100.0`,
		},
		{
			name:      "invalid expression",
			expr:      `invalid syntax here!!!`,
			wantError: true,
		},
		{
			name:      "undefined variable",
			expr:      `payload.status == "active"`,
			wantError: true,
		},
		{
			name:      "non bool result",
			expr:      `severity + "x"`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateExpression(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExamplesCompile(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	for name, expr := range MuteRuleExamples {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, eval.ValidateExpression(expr))
		})
	}
}

func TestRuleMatches(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	facts := Facts{
		EventType: "BusinessHighValueSaleEvent",
		Category:  "Business",
		Severity:  "MEDIUM",
		Context:   map[string]interface{}{"amount": 15000.0, "currency": "USD"},
		Metadata:  map[string]interface{}{"risk_score": 20},
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{name: "small sale muted", expr: MuteRuleExamples["small_sales"], want: true},
		{name: "other type", expr: MuteRuleExamples["by_type"], want: false},
		{name: "missing field guarded", expr: MuteRuleExamples["test_accounts"], want: false},
		{name: "metadata", expr: `metadata.risk_score >= 20`, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := eval.Compile(tt.expr)
			require.NoError(t, err)

			got, err := rule.Matches(context.Background(), facts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRuleMatchesMissingKey(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	rule, err := eval.Compile(`context.ip_address == "10.0.0.1"`)
	require.NoError(t, err)

	_, err = rule.Matches(context.Background(), Facts{Severity: "LOW"})
	assert.Error(t, err)
}

func TestCompileAll(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	rules, err := eval.CompileAll([]string{`severity == "LOW"`, `category == "System"`})
	require.NoError(t, err)
	assert.Len(t, rules, 2)

	_, err = eval.CompileAll([]string{`severity == "LOW"`, `nope(`})
	assert.ErrorContains(t, err, "rule 1")
}
