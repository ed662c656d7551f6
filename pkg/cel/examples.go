package cel

// MuteRuleExamples lists expressions accepted in alerting.mute_rules.
var MuteRuleExamples = map[string]string{
	"low_business":         `category == "Business" && severity == "LOW"`,
	"by_type":              `event_type == "UserGoalFailedEvent"`,
	"internal_ip":          `has(context.ip_address) && context.ip_address.startsWith("10.")`,
	"small_sales":          `event_type == "BusinessHighValueSaleEvent" && context.amount < 20000.0`,
	"low_risk":             `metadata.risk_score < 10`,
	"test_accounts":        `has(context.email) && context.email.endsWith("@test.local")`,
	"non_critical_nightly": `severity in ["LOW", "MEDIUM"] && category == "UserAction"`,
}
