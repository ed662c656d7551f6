package alert

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	maxTravelSpeedKmh   = 1000.0
	minTravelDistanceKm = 100.0
	unusualDistanceKm   = 1000.0
)

var highRiskActivities = map[string]bool{
	"password_change":        true,
	"payment_method_change":  true,
	"data_export":            true,
	"permission_change":      true,
	"api_credential_created": true,
}

var mediumRiskActivities = map[string]bool{
	"profile_update":  true,
	"email_change":    true,
	"bulk_download":   true,
	"settings_change": true,
}

type SuspiciousSessionInput struct {
	UserID             int64        `json:"user_id"`
	SessionID          string       `json:"session_id"`
	PreviousIP         string       `json:"previous_ip"`
	CurrentIP          string       `json:"current_ip"`
	PreviousUserAgent  string       `json:"previous_user_agent"`
	CurrentUserAgent   string       `json:"current_user_agent"`
	PreviousLocation   *GeoLocation `json:"previous_location,omitempty"`
	CurrentLocation    *GeoLocation `json:"current_location,omitempty"`
	PreviousSeenAt     time.Time    `json:"previous_seen_at"`
	CurrentSeenAt      time.Time    `json:"current_seen_at"`
	ActivityType       string       `json:"activity_type"`
	ConcurrentSessions int          `json:"concurrent_sessions"`
}

type SuspiciousSession struct {
	base
	in SuspiciousSessionInput
}

func NewSuspiciousSession(in SuspiciousSessionInput, by *Actor) *SuspiciousSession {
	return &SuspiciousSession{base: newBase(suspiciousSessionSeverity(in), by), in: in}
}

func suspiciousSessionSeverity(in SuspiciousSessionInput) Severity {
	activity := strings.ToLower(in.ActivityType)
	switch {
	case isHijacking(in) || highRiskActivities[activity]:
		return SeverityCritical
	case in.ConcurrentSessions > 1 || mediumRiskActivities[activity]:
		return SeverityHigh
	case isUnusualLocation(in):
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func isHijacking(in SuspiciousSessionInput) bool {
	ipChanged := in.PreviousIP != "" && in.PreviousIP != in.CurrentIP
	agentChanged := in.PreviousUserAgent != "" && in.PreviousUserAgent != in.CurrentUserAgent
	return (ipChanged && agentChanged) || isImpossibleTravel(in)
}

func isImpossibleTravel(in SuspiciousSessionInput) bool {
	if in.PreviousLocation == nil || in.CurrentLocation == nil {
		return false
	}
	distance := DistanceKm(*in.PreviousLocation, *in.CurrentLocation)
	if distance < minTravelDistanceKm {
		return false
	}
	// without both sightings the elapsed time is unknown
	if in.PreviousSeenAt.IsZero() || in.CurrentSeenAt.IsZero() {
		return false
	}
	hours := in.CurrentSeenAt.Sub(in.PreviousSeenAt).Hours()
	if hours <= 0 {
		return true
	}
	return distance/hours > maxTravelSpeedKmh
}

func isUnusualLocation(in SuspiciousSessionInput) bool {
	prev, cur := in.PreviousLocation, in.CurrentLocation
	if prev == nil || cur == nil {
		return false
	}
	if prev.Country != "" && cur.Country != "" && !strings.EqualFold(prev.Country, cur.Country) {
		return true
	}
	return DistanceKm(*prev, *cur) > unusualDistanceKm
}

func (e *SuspiciousSession) Type() string       { return TypeSuspiciousSession }
func (e *SuspiciousSession) Category() Category { return CategorySecurity }
func (e *SuspiciousSession) input() interface{} { return e.in }

func (e *SuspiciousSession) Fingerprint() string {
	return fmt.Sprintf("%d|%s", e.in.UserID, e.in.SessionID)
}

func (e *SuspiciousSession) IsHijackingSuspected() bool {
	return isHijacking(e.in)
}

func (e *SuspiciousSession) ShouldTerminateSession() bool {
	return e.severity == SeverityCritical
}

func (e *SuspiciousSession) ShouldRequireReauthentication() bool {
	return e.severity.AtLeast(SeverityHigh)
}

func (e *SuspiciousSession) RiskScore() int {
	activity := strings.ToLower(e.in.ActivityType)
	score := 0
	if isHijacking(e.in) {
		score += 50
	}
	if highRiskActivities[activity] {
		score += 30
	} else if mediumRiskActivities[activity] {
		score += 15
	}
	if e.in.ConcurrentSessions > 1 {
		score += 15
	}
	if isUnusualLocation(e.in) {
		score += 15
	}
	return clampScore(score)
}

func (e *SuspiciousSession) Title() string {
	switch {
	case isHijacking(e.in):
		return "Possible Session Hijacking"
	case e.severity == SeverityCritical:
		return "High-Risk Activity In Suspicious Session"
	default:
		return "Suspicious Session Activity"
	}
}

func (e *SuspiciousSession) Description() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s of user #%d", e.in.SessionID, e.in.UserID)
	if e.in.ActivityType != "" {
		fmt.Fprintf(&b, " performed %s", e.in.ActivityType)
	}
	fmt.Fprintf(&b, " from IP %s.", e.in.CurrentIP)
	if e.in.PreviousIP != "" && e.in.PreviousIP != e.in.CurrentIP {
		fmt.Fprintf(&b, " The session was previously active from IP %s.", e.in.PreviousIP)
	}
	if isImpossibleTravel(e.in) {
		fmt.Fprintf(&b, " Travel of %.0f km from %s to %s is not physically possible in the elapsed time.",
			DistanceKm(*e.in.PreviousLocation, *e.in.CurrentLocation),
			e.in.PreviousLocation.label(), e.in.CurrentLocation.label())
	} else if isUnusualLocation(e.in) {
		fmt.Fprintf(&b, " Location changed from %s to %s.", e.in.PreviousLocation.label(), e.in.CurrentLocation.label())
	}
	if e.in.ConcurrentSessions > 1 {
		fmt.Fprintf(&b, " %d sessions are active concurrently.", e.in.ConcurrentSessions)
	}
	return b.String()
}

func (e *SuspiciousSession) ActionURL() string {
	return "/admin/security/sessions/" + url.PathEscape(e.in.SessionID)
}

func (e *SuspiciousSession) EmailSubject() string {
	return subject(e.severity, e.Title())
}

func (e *SuspiciousSession) Metadata() map[string]interface{} {
	var actions []string
	if e.ShouldTerminateSession() {
		actions = append(actions, "terminate_session")
	}
	if e.ShouldRequireReauthentication() {
		actions = append(actions, "require_reauthentication")
	}
	actions = append(actions, "contact_user")

	score := e.RiskScore()
	return metadata(CategorySecurity, score, actions, map[string]interface{}{
		"threat_level":      threatLevel(score),
		"impossible_travel": isImpossibleTravel(e.in),
	})
}

func (e *SuspiciousSession) Context() map[string]interface{} {
	ctx := map[string]interface{}{
		"user_id":             e.in.UserID,
		"session_id":          e.in.SessionID,
		"previous_ip":         e.in.PreviousIP,
		"current_ip":          e.in.CurrentIP,
		"previous_user_agent": e.in.PreviousUserAgent,
		"current_user_agent":  e.in.CurrentUserAgent,
		"activity_type":       e.in.ActivityType,
		"concurrent_sessions": e.in.ConcurrentSessions,
		"previous_location":   e.in.PreviousLocation.toMap(),
		"current_location":    e.in.CurrentLocation.toMap(),
	}
	if e.in.PreviousLocation != nil && e.in.CurrentLocation != nil {
		ctx["distance_km"] = round1(DistanceKm(*e.in.PreviousLocation, *e.in.CurrentLocation))
	}
	if !e.in.PreviousSeenAt.IsZero() && !e.in.CurrentSeenAt.IsZero() {
		ctx["elapsed_minutes"] = round1(e.in.CurrentSeenAt.Sub(e.in.PreviousSeenAt).Minutes())
	}
	return ctx
}
