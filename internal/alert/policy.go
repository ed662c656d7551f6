package alert

import (
	"fmt"
	"strings"
	"time"
)

// DeliveryPolicy holds the delivery parameters derived from a severity.
type DeliveryPolicy struct {
	Severity           Severity
	QueueTier          string
	MaxRetries         int
	Backoff            []time.Duration
	RateLimitTTL       time.Duration
	EmailMandatory     bool
	ImmediateAttention bool
	// Timeout bounds a single delivery attempt.
	Timeout time.Duration
}

func (p DeliveryPolicy) MaxAttempts() int {
	return p.MaxRetries + 1
}

func seconds(values ...int) []time.Duration {
	out := make([]time.Duration, len(values))
	for i, v := range values {
		out[i] = time.Duration(v) * time.Second
	}
	return out
}

var policies = map[Severity]DeliveryPolicy{
	SeverityCritical: {
		Severity:           SeverityCritical,
		QueueTier:          "critical",
		MaxRetries:         5,
		Backoff:            seconds(15, 30, 60, 120, 300),
		RateLimitTTL:       60 * time.Second,
		EmailMandatory:     true,
		ImmediateAttention: true,
		Timeout:            60 * time.Second,
	},
	SeverityHigh: {
		Severity:       SeverityHigh,
		QueueTier:      "high",
		MaxRetries:     3,
		Backoff:        seconds(30, 60, 120),
		RateLimitTTL:   300 * time.Second,
		EmailMandatory: true,
		Timeout:        90 * time.Second,
	},
	SeverityMedium: {
		Severity:     SeverityMedium,
		QueueTier:    "default",
		MaxRetries:   2,
		Backoff:      seconds(60, 120),
		RateLimitTTL: 900 * time.Second,
		Timeout:      120 * time.Second,
	},
	SeverityLow: {
		Severity:     SeverityLow,
		QueueTier:    "low",
		MaxRetries:   1,
		Backoff:      seconds(60),
		RateLimitTTL: 3600 * time.Second,
		Timeout:      180 * time.Second,
	},
}

// PolicyFor returns the policy of a severity; unknown severities get LOW.
func PolicyFor(s Severity) DeliveryPolicy {
	p, ok := policies[s]
	if !ok {
		p = policies[SeverityLow]
	}
	p.Backoff = append([]time.Duration(nil), p.Backoff...)
	return p
}

// RateLimitWindow is the suppression window for an event: the severity TTL,
// narrowed when the event asks for a shorter one.
func RateLimitWindow(e Event) time.Duration {
	ttl := PolicyFor(e.Severity()).RateLimitTTL
	if w, ok := e.(RateLimitWindowed); ok {
		if custom := w.RateLimitWindow(); custom > 0 && custom < ttl {
			return custom
		}
	}
	return ttl
}

// QueueName derives the job queue of a category/severity pair,
// e.g. "security-critical-alerts" or "user-action-high-alerts".
func QueueName(c Category, s Severity) string {
	return fmt.Sprintf("%s-%s-alerts", c.Slug(), strings.ToLower(string(s)))
}

func QueueFor(e Event) string {
	return QueueName(e.Category(), e.Severity())
}

// Queue identifies one queue together with the tier that sizes its workers.
type Queue struct {
	Name     string
	Category Category
	Severity Severity
	Tier     string
}

func AllQueues() []Queue {
	queues := make([]Queue, 0, len(categorySlugs)*len(policies))
	for _, c := range Categories() {
		for _, s := range Severities() {
			queues = append(queues, Queue{
				Name:     QueueName(c, s),
				Category: c,
				Severity: s,
				Tier:     policies[s].QueueTier,
			})
		}
	}
	return queues
}
