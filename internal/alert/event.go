package alert

import (
	"fmt"
	"math"
	"time"
)

const (
	TypeFailedLogin          = "SecurityFailedLoginEvent"
	TypeAdminAccountModified = "SecurityAdminAccountModifiedEvent"
	TypeSuspiciousSession    = "SecuritySuspiciousSessionEvent"
	TypeBulkOperation        = "UserBulkOperationEvent"
	TypeMassContentDeletion  = "UserMassContentDeletionEvent"
	TypeGoalFailed           = "UserGoalFailedEvent"
	TypeHighValueSale        = "BusinessHighValueSaleEvent"
	TypeUnusualExpense       = "BusinessUnusualExpenseEvent"
	TypeDeliveryFailure      = "SystemDeliveryFailureEvent"
)

// Preference categories an event can be gated by, besides the master switch.
const (
	PreferenceTask    = "task"
	PreferenceSales   = "sales"
	PreferenceExpense = "expense"
	PreferenceGoal    = "goal"
	PreferenceContent = "content"
)

// Actor is the user that triggered the condition. Only identity is kept.
type Actor struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Event is one detected administrative condition. Severity and category are
// fixed when the event is built; every other getter is derived from the
// constructor inputs and returns the same value on every call.
type Event interface {
	Type() string
	Category() Category
	Severity() Severity
	OccurredAt() time.Time
	InitiatedBy() *Actor
	// Fingerprint discriminates rate-limit keys within one event type.
	Fingerprint() string
	Title() string
	Description() string
	ActionURL() string
	EmailSubject() string
	Metadata() map[string]interface{}
	// Context is the generic view of the typed inputs, built on each call.
	Context() map[string]interface{}

	input() interface{}
	setOccurredAt(t time.Time)
}

// RateLimitWindowed events narrow the severity's rate-limit window.
type RateLimitWindowed interface {
	RateLimitWindow() time.Duration
}

// PreferenceScoped events are gated by a per-category email preference.
type PreferenceScoped interface {
	PreferenceCategory() string
}

// Subjected events concern a user other than the initiator, e.g. a goal
// owner. Manager-chain recipient policies walk up from this user.
type Subjected interface {
	SubjectUserID() int64
}

var now = time.Now

type base struct {
	severity    Severity
	occurredAt  time.Time
	initiatedBy *Actor
}

func newBase(severity Severity, by *Actor) base {
	var actor *Actor
	if by != nil {
		copied := *by
		actor = &copied
	}
	return base{
		severity:    severity,
		occurredAt:  now().UTC(),
		initiatedBy: actor,
	}
}

func (b *base) Severity() Severity {
	return b.severity
}

func (b *base) OccurredAt() time.Time {
	return b.occurredAt
}

func (b *base) InitiatedBy() *Actor {
	if b.initiatedBy == nil {
		return nil
	}
	copied := *b.initiatedBy
	return &copied
}

func (b *base) setOccurredAt(t time.Time) {
	b.occurredAt = t.UTC()
}

func (b *base) actorName() string {
	if b.initiatedBy == nil || b.initiatedBy.Name == "" {
		return "An unknown user"
	}
	return b.initiatedBy.Name
}

func (b *base) actorKey() string {
	if b.initiatedBy == nil {
		return "unknown"
	}
	return fmt.Sprintf("%d", b.initiatedBy.ID)
}

func subject(severity Severity, title string) string {
	return "[" + string(severity) + "] " + title
}

func metadata(category Category, riskScore int, actions []string, extra map[string]interface{}) map[string]interface{} {
	if actions == nil {
		actions = []string{}
	}
	m := map[string]interface{}{
		"category":            string(category),
		"risk_score":          clampScore(riskScore),
		"recommended_actions": actions,
	}
	for k, v := range extra {
		m[k] = v
	}
	return m
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func threatLevel(score int) string {
	switch {
	case score >= 80:
		return "critical"
	case score >= 60:
		return "high"
	case score >= 30:
		return "medium"
	default:
		return "low"
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func actorMap(a *Actor) interface{} {
	if a == nil {
		return nil
	}
	return map[string]interface{}{"id": a.ID, "name": a.Name, "email": a.Email}
}
