package alert

import (
	"fmt"
	"net/url"
	"strings"
)

var resourcePreferences = map[string]string{
	"task":     PreferenceTask,
	"tasks":    PreferenceTask,
	"sale":     PreferenceSales,
	"sales":    PreferenceSales,
	"expense":  PreferenceExpense,
	"expenses": PreferenceExpense,
	"goal":     PreferenceGoal,
	"goals":    PreferenceGoal,
	"content":  PreferenceContent,
	"posts":    PreferenceContent,
}

type BulkOperationInput struct {
	Operation             string `json:"operation"`
	ResourceType          string `json:"resource_type"`
	ItemCount             int    `json:"item_count"`
	IsDestructive         bool   `json:"is_destructive"`
	HasApproval           bool   `json:"has_approval"`
	ContainsSensitiveData bool   `json:"contains_sensitive_data"`
}

type BulkOperation struct {
	base
	in BulkOperationInput
}

func NewBulkOperation(in BulkOperationInput, by *Actor) *BulkOperation {
	return &BulkOperation{base: newBase(bulkOperationSeverity(in), by), in: in}
}

func bulkOperationSeverity(in BulkOperationInput) Severity {
	switch {
	case in.IsDestructive && in.ItemCount >= 1000 && !in.HasApproval:
		return SeverityCritical
	case in.IsDestructive && !in.HasApproval:
		return SeverityHigh
	case in.ContainsSensitiveData || in.ItemCount >= 100:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func (e *BulkOperation) Type() string       { return TypeBulkOperation }
func (e *BulkOperation) Category() Category { return CategoryUserAction }
func (e *BulkOperation) input() interface{} { return e.in }

func (e *BulkOperation) Fingerprint() string {
	return e.actorKey() + "|" + strings.ToLower(e.in.ResourceType) + "|" + strings.ToLower(e.in.Operation)
}

func (e *BulkOperation) PreferenceCategory() string {
	return resourcePreferences[strings.ToLower(e.in.ResourceType)]
}

func (e *BulkOperation) ShouldConsiderRollback() bool {
	return e.in.IsDestructive && !e.in.HasApproval
}

func (e *BulkOperation) RequiresAudit() bool {
	return e.in.IsDestructive || e.in.ContainsSensitiveData
}

func (e *BulkOperation) RiskScore() int {
	score := min(e.in.ItemCount/100*5, 30)
	if e.in.IsDestructive {
		score += 25
	}
	if !e.in.HasApproval {
		score += 20
	}
	if e.in.ContainsSensitiveData {
		score += 15
	}
	if e.in.ItemCount >= 1000 {
		score += 10
	}
	return clampScore(score)
}

func (e *BulkOperation) Title() string {
	switch {
	case e.severity == SeverityCritical:
		return "Unapproved Mass Destructive Operation"
	case e.in.IsDestructive:
		return "Bulk Destructive Operation"
	default:
		return "Bulk Operation Performed"
	}
}

func (e *BulkOperation) Description() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s performed a bulk %s on %d %s.", e.actorName(), e.in.Operation, e.in.ItemCount, e.in.ResourceType)
	if !e.in.HasApproval {
		b.WriteString(" The operation was not approved.")
	}
	if e.in.ContainsSensitiveData {
		b.WriteString(" Affected records contain sensitive data.")
	}
	if e.ShouldConsiderRollback() {
		b.WriteString(" Consider rolling the operation back.")
	}
	return b.String()
}

func (e *BulkOperation) ActionURL() string {
	q := url.Values{}
	q.Set("resource", e.in.ResourceType)
	q.Set("operation", e.in.Operation)
	return "/admin/audit-log?" + q.Encode()
}

func (e *BulkOperation) EmailSubject() string {
	return subject(e.severity, e.Title())
}

func (e *BulkOperation) Metadata() map[string]interface{} {
	var actions []string
	if e.ShouldConsiderRollback() {
		actions = append(actions, "consider_rollback")
	}
	if e.RequiresAudit() {
		actions = append(actions, "audit_operation")
	}
	if !e.in.HasApproval {
		actions = append(actions, "contact_initiator")
	}
	return metadata(CategoryUserAction, e.RiskScore(), actions, nil)
}

func (e *BulkOperation) Context() map[string]interface{} {
	return map[string]interface{}{
		"operation":               e.in.Operation,
		"resource_type":           e.in.ResourceType,
		"item_count":              e.in.ItemCount,
		"is_destructive":          e.in.IsDestructive,
		"has_approval":            e.in.HasApproval,
		"contains_sensitive_data": e.in.ContainsSensitiveData,
		"initiated_by":            actorMap(e.initiatedBy),
	}
}
