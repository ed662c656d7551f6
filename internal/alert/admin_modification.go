package alert

import (
	"fmt"
	"net"
	"sort"
	"strings"
)

var sensitiveAdminFields = map[string]bool{
	"password":           true,
	"email":              true,
	"role":               true,
	"permissions":        true,
	"two_factor_enabled": true,
	"api_token":          true,
}

type AdminModificationInput struct {
	Target        Actor    `json:"target"`
	ChangedFields []string `json:"changed_fields"`
	OldRole       string   `json:"old_role,omitempty"`
	NewRole       string   `json:"new_role,omitempty"`
	Justification string   `json:"justification,omitempty"`
	IPAddress     string   `json:"ip_address,omitempty"`
}

// AdminAccountModified reports a change to an administrator account. The
// modifier is the initiating actor; a missing modifier is suspicious.
type AdminAccountModified struct {
	base
	in AdminModificationInput
}

func NewAdminAccountModified(in AdminModificationInput, by *Actor) *AdminAccountModified {
	return &AdminAccountModified{base: newBase(adminModificationSeverity(in, by), by), in: in}
}

func adminModificationSeverity(in AdminModificationInput, by *Actor) Severity {
	self := isSelfModification(in, by)
	switch {
	case isSuspiciousModification(in, by) || roleChanged(in):
		return SeverityCritical
	case len(sensitiveFields(in)) > 0 || !self:
		return SeverityHigh
	case self && len(in.ChangedFields) > 0:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func isSuspiciousModification(in AdminModificationInput, by *Actor) bool {
	switch {
	case by == nil:
		return true
	case roleChanged(in) && strings.TrimSpace(in.Justification) == "":
		return true
	case len(sensitiveFields(in)) >= 2:
		return true
	default:
		return isExternalIP(in.IPAddress)
	}
}

func isSelfModification(in AdminModificationInput, by *Actor) bool {
	return by != nil && by.ID == in.Target.ID
}

func roleChanged(in AdminModificationInput) bool {
	return in.NewRole != "" && !strings.EqualFold(in.OldRole, in.NewRole)
}

func sensitiveFields(in AdminModificationInput) []string {
	var out []string
	for _, f := range in.ChangedFields {
		if sensitiveAdminFields[strings.ToLower(f)] {
			out = append(out, strings.ToLower(f))
		}
	}
	sort.Strings(out)
	return out
}

// isExternalIP reports admin changes made from outside private address space.
// Unparseable addresses count as external; an empty address is unknown and
// does not count.
func isExternalIP(ip string) bool {
	if ip == "" {
		return false
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return true
	}
	return !parsed.IsPrivate() && !parsed.IsLoopback()
}

func (e *AdminAccountModified) Type() string       { return TypeAdminAccountModified }
func (e *AdminAccountModified) Category() Category { return CategorySecurity }
func (e *AdminAccountModified) input() interface{} { return e.in }

func (e *AdminAccountModified) Fingerprint() string {
	return fmt.Sprintf("%d|%s", e.in.Target.ID, e.actorKey())
}

func (e *AdminAccountModified) IsSuspicious() bool {
	return isSuspiciousModification(e.in, e.initiatedBy)
}

func (e *AdminAccountModified) ShouldRevokeSessions() bool {
	return e.severity == SeverityCritical
}

func (e *AdminAccountModified) ShouldSuspendAccount() bool {
	return e.IsSuspicious() && len(sensitiveFields(e.in)) >= 2
}

func (e *AdminAccountModified) RequiresSecondApproval() bool {
	return roleChanged(e.in)
}

func (e *AdminAccountModified) RiskScore() int {
	score := 10
	if e.initiatedBy == nil {
		score += 40
	}
	if roleChanged(e.in) {
		score += 25
		if strings.TrimSpace(e.in.Justification) == "" {
			score += 10
		}
	}
	score += min(len(sensitiveFields(e.in))*10, 30)
	if !isSelfModification(e.in, e.initiatedBy) {
		score += 10
	}
	if isExternalIP(e.in.IPAddress) {
		score += 15
	}
	return clampScore(score)
}

func (e *AdminAccountModified) Title() string {
	switch {
	case e.IsSuspicious():
		return "Suspicious Admin Account Modification"
	case roleChanged(e.in):
		return "Admin Role Changed"
	default:
		return "Admin Account Modified"
	}
}

func (e *AdminAccountModified) Description() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s modified admin account %s (%s).", e.actorName(), e.in.Target.Name, e.in.Target.Email)
	if len(e.in.ChangedFields) > 0 {
		fmt.Fprintf(&b, " Changed fields: %s.", strings.Join(e.in.ChangedFields, ", "))
	}
	if roleChanged(e.in) {
		old := e.in.OldRole
		if old == "" {
			old = "none"
		}
		fmt.Fprintf(&b, " Role changed from %s to %s.", old, e.in.NewRole)
		if strings.TrimSpace(e.in.Justification) == "" {
			b.WriteString(" No justification was provided.")
		}
	}
	if e.in.IPAddress != "" {
		fmt.Fprintf(&b, " Request originated from IP %s.", e.in.IPAddress)
	}
	return b.String()
}

func (e *AdminAccountModified) ActionURL() string {
	return fmt.Sprintf("/admin/users/%d/audit", e.in.Target.ID)
}

func (e *AdminAccountModified) EmailSubject() string {
	return subject(e.severity, e.Title())
}

func (e *AdminAccountModified) Metadata() map[string]interface{} {
	var actions []string
	if e.ShouldRevokeSessions() {
		actions = append(actions, "revoke_sessions")
	}
	if e.ShouldSuspendAccount() {
		actions = append(actions, "suspend_account")
	}
	if e.RequiresSecondApproval() {
		actions = append(actions, "require_second_approval")
	}
	actions = append(actions, "review_audit_log")

	score := e.RiskScore()
	return metadata(CategorySecurity, score, actions, map[string]interface{}{
		"threat_level":     threatLevel(score),
		"sensitive_fields": sensitiveFields(e.in),
	})
}

func (e *AdminAccountModified) Context() map[string]interface{} {
	fields := make([]interface{}, 0, len(e.in.ChangedFields))
	for _, f := range e.in.ChangedFields {
		fields = append(fields, f)
	}
	return map[string]interface{}{
		"target_user_id":    e.in.Target.ID,
		"target_user_name":  e.in.Target.Name,
		"target_user_email": e.in.Target.Email,
		"modified_by":       actorMap(e.initiatedBy),
		"changed_fields":    fields,
		"old_role":          e.in.OldRole,
		"new_role":          e.in.NewRole,
		"justification":     e.in.Justification,
		"ip_address":        e.in.IPAddress,
		"self_modification": isSelfModification(e.in, e.initiatedBy),
	}
}
