package alert

import (
	"strings"
	"unicode/utf8"

	"bizpulse/internal/constants"
)

var sensitiveKeyFragments = []string{
	"password",
	"passwd",
	"token",
	"secret",
	"key",
	"api_key",
	"authorization",
	"credential",
	"cookie",
	"ssn",
	"credit_card",
	"card_number",
	"cvv",
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// SanitizeContext returns a copy of ctx safe for logs and persisted payloads:
// values under sensitive keys are redacted, long strings are truncated, and
// nested maps and slices get the same treatment. The input is not modified.
func SanitizeContext(ctx map[string]interface{}) map[string]interface{} {
	if ctx == nil {
		return nil
	}
	out := make(map[string]interface{}, len(ctx))
	for k, v := range ctx {
		if isSensitiveKey(k) {
			out[k] = constants.RedactedValue
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return truncate(val)
	case map[string]interface{}:
		return SanitizeContext(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item)
		}
		return out
	case []string:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = truncate(item)
		}
		return out
	default:
		return v
	}
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= constants.MaxContextStringLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:constants.MaxContextStringLen]) + constants.TruncationMarker
}

// LogFields flattens an event into structured log key/value pairs with a
// sanitized context.
func LogFields(e Event) []interface{} {
	return []interface{}{
		"event_type", e.Type(),
		"category", string(e.Category()),
		"severity", string(e.Severity()),
		"fingerprint", e.Fingerprint(),
		"title", e.Title(),
		"occurred_at", e.OccurredAt(),
		"context", SanitizeContext(e.Context()),
	}
}
