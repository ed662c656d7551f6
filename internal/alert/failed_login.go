package alert

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const failedLoginWindow = 60 * time.Second

type FailedLoginInput struct {
	Email      string       `json:"email"`
	IPAddress  string       `json:"ip_address"`
	UserAgent  string       `json:"user_agent"`
	Attempts   int          `json:"attempts"`
	Suspicious bool         `json:"suspicious"`
	Location   *GeoLocation `json:"location,omitempty"`
}

type FailedLogin struct {
	base
	in FailedLoginInput
}

func NewFailedLogin(in FailedLoginInput, by *Actor) *FailedLogin {
	return &FailedLogin{base: newBase(failedLoginSeverity(in), by), in: in}
}

func failedLoginSeverity(in FailedLoginInput) Severity {
	switch {
	case in.Attempts >= 10 || in.Suspicious:
		return SeverityHigh
	case in.Attempts >= 5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func (e *FailedLogin) Type() string       { return TypeFailedLogin }
func (e *FailedLogin) Category() Category { return CategorySecurity }
func (e *FailedLogin) input() interface{} { return e.in }

func (e *FailedLogin) Fingerprint() string {
	return strings.ToLower(e.in.Email) + "|" + e.in.IPAddress
}

// RateLimitWindow lets a rising attempt count through after a minute
// instead of holding it for the full HIGH window.
func (e *FailedLogin) RateLimitWindow() time.Duration {
	return failedLoginWindow
}

func (e *FailedLogin) ShouldBlockIP() bool {
	return e.in.Attempts >= 10 || e.in.Suspicious
}

func (e *FailedLogin) ShouldSuspendAccount() bool {
	return e.in.Attempts >= 15 || (e.in.Suspicious && e.in.Attempts >= 5)
}

func (e *FailedLogin) RiskScore() int {
	score := min(e.in.Attempts*5, 50)
	if e.in.Suspicious {
		score += 30
	}
	if e.in.Location == nil {
		score += 10
	}
	if e.in.Attempts >= 10 {
		score += 10
	}
	return clampScore(score)
}

func (e *FailedLogin) Title() string {
	switch {
	case e.in.Suspicious:
		return "Suspicious Login Activity Detected"
	case e.severity == SeverityHigh:
		return "Repeated Failed Login Attempts"
	default:
		return "Failed Login Attempts"
	}
}

func (e *FailedLogin) Description() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d failed login %s for %s from IP %s",
		e.in.Attempts, plural(e.in.Attempts, "attempt", "attempts"), e.in.Email, e.in.IPAddress)
	if label := e.in.Location.label(); label != "" {
		fmt.Fprintf(&b, " (%s)", label)
	}
	b.WriteString(".")
	if e.in.Suspicious {
		b.WriteString(" The activity matches a known attack pattern.")
	}
	if e.ShouldBlockIP() {
		b.WriteString(" Blocking the source IP is recommended.")
	}
	return b.String()
}

func (e *FailedLogin) ActionURL() string {
	return "/admin/security/failed-logins?email=" + url.QueryEscape(e.in.Email)
}

func (e *FailedLogin) EmailSubject() string {
	return subject(e.severity, e.Title())
}

func (e *FailedLogin) Metadata() map[string]interface{} {
	var actions []string
	if e.ShouldBlockIP() {
		actions = append(actions, "block_ip")
	}
	if e.ShouldSuspendAccount() {
		actions = append(actions, "suspend_account")
	}
	if e.severity != SeverityLow {
		actions = append(actions, "notify_account_owner")
	}
	actions = append(actions, "review_login_history")

	score := e.RiskScore()
	return metadata(CategorySecurity, score, actions, map[string]interface{}{
		"threat_level": threatLevel(score),
	})
}

func (e *FailedLogin) Context() map[string]interface{} {
	ctx := map[string]interface{}{
		"email":      e.in.Email,
		"ip_address": e.in.IPAddress,
		"user_agent": e.in.UserAgent,
		"attempts":   e.in.Attempts,
		"suspicious": e.in.Suspicious,
	}
	if e.in.Location != nil {
		ctx["location"] = e.in.Location.toMap()
	}
	return ctx
}
