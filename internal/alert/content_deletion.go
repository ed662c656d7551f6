package alert

import (
	"fmt"
	"net/url"
	"strings"
)

type ContentDeletionInput struct {
	ContentType    string   `json:"content_type"`
	Count          int      `json:"count"`
	PublishedCount int      `json:"published_count"`
	HasApproval    bool     `json:"has_approval"`
	HasBackup      bool     `json:"has_backup"`
	SampleTitles   []string `json:"sample_titles,omitempty"`
}

type MassContentDeletion struct {
	base
	in ContentDeletionInput
}

func NewMassContentDeletion(in ContentDeletionInput, by *Actor) *MassContentDeletion {
	return &MassContentDeletion{base: newBase(contentDeletionSeverity(in), by), in: in}
}

func contentDeletionSeverity(in ContentDeletionInput) Severity {
	published := in.PublishedCount > 0
	switch {
	case published && in.Count >= 100 && !in.HasApproval:
		return SeverityCritical
	case in.Count >= 1000 || (published && !in.HasApproval):
		return SeverityHigh
	case in.Count >= 100 || (published && !in.HasBackup):
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func (e *MassContentDeletion) Type() string       { return TypeMassContentDeletion }
func (e *MassContentDeletion) Category() Category { return CategoryUserAction }
func (e *MassContentDeletion) input() interface{} { return e.in }

func (e *MassContentDeletion) Fingerprint() string {
	return e.actorKey() + "|" + strings.ToLower(e.in.ContentType)
}

func (e *MassContentDeletion) PreferenceCategory() string {
	return PreferenceContent
}

func (e *MassContentDeletion) ShouldRestoreFromBackup() bool {
	return e.in.HasBackup && e.severity.AtLeast(SeverityHigh)
}

func (e *MassContentDeletion) RequiresContentReview() bool {
	return e.in.PublishedCount > 0
}

func (e *MassContentDeletion) RiskScore() int {
	score := min(e.in.Count/50*5, 30)
	if e.in.PublishedCount > 0 {
		score += 25
	}
	if !e.in.HasApproval {
		score += 20
	}
	if !e.in.HasBackup {
		score += 20
	}
	return clampScore(score)
}

func (e *MassContentDeletion) Title() string {
	switch e.severity {
	case SeverityCritical:
		return "Mass Deletion Of Published Content"
	case SeverityHigh:
		return "Large Content Deletion"
	default:
		return "Content Deleted In Bulk"
	}
}

func (e *MassContentDeletion) Description() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s deleted %d %s item%s", e.actorName(), e.in.Count, e.in.ContentType, pluralSuffix(e.in.Count))
	if e.in.PublishedCount > 0 {
		fmt.Fprintf(&b, ", %d of them published", e.in.PublishedCount)
	}
	b.WriteString(".")
	if !e.in.HasApproval {
		b.WriteString(" The deletion was not approved.")
	}
	if e.in.HasBackup {
		b.WriteString(" A backup is available.")
	} else {
		b.WriteString(" No backup exists.")
	}
	return b.String()
}

func pluralSuffix(n int) string {
	return plural(n, "", "s")
}

func (e *MassContentDeletion) ActionURL() string {
	return "/admin/content/trash?type=" + url.QueryEscape(e.in.ContentType)
}

func (e *MassContentDeletion) EmailSubject() string {
	return subject(e.severity, e.Title())
}

func (e *MassContentDeletion) Metadata() map[string]interface{} {
	var actions []string
	if e.ShouldRestoreFromBackup() {
		actions = append(actions, "restore_from_backup")
	}
	if e.RequiresContentReview() {
		actions = append(actions, "review_published_content")
	}
	if !e.in.HasApproval {
		actions = append(actions, "contact_initiator")
	}
	return metadata(CategoryUserAction, e.RiskScore(), actions, nil)
}

func (e *MassContentDeletion) Context() map[string]interface{} {
	titles := make([]interface{}, 0, len(e.in.SampleTitles))
	for _, t := range e.in.SampleTitles {
		titles = append(titles, t)
	}
	return map[string]interface{}{
		"content_type":    e.in.ContentType,
		"count":           e.in.Count,
		"published_count": e.in.PublishedCount,
		"has_approval":    e.in.HasApproval,
		"has_backup":      e.in.HasBackup,
		"sample_titles":   titles,
		"initiated_by":    actorMap(e.initiatedBy),
	}
}
