package alert

import (
	"fmt"
	"strings"
)

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank orders severities from LOW (1) to CRITICAL (4). Unknown values rank 0.
func (s Severity) Rank() int {
	return severityRank[s]
}

func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

func (s Severity) String() string {
	return string(s)
}

func ParseSeverity(v string) (Severity, error) {
	s := Severity(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown severity %q", v)
	}
	return s, nil
}

func Severities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}
}

type Category string

const (
	CategorySecurity   Category = "Security"
	CategorySystem     Category = "System"
	CategoryUserAction Category = "UserAction"
	CategoryBusiness   Category = "Business"
)

var categorySlugs = map[Category]string{
	CategorySecurity:   "security",
	CategorySystem:     "system",
	CategoryUserAction: "user-action",
	CategoryBusiness:   "business",
}

// Slug is the kebab-case form used in queue, channel and template names.
func (c Category) Slug() string {
	if slug, ok := categorySlugs[c]; ok {
		return slug
	}
	return strings.ToLower(string(c))
}

func (c Category) Valid() bool {
	_, ok := categorySlugs[c]
	return ok
}

func ParseCategory(v string) (Category, error) {
	for c, slug := range categorySlugs {
		if strings.EqualFold(v, string(c)) || strings.EqualFold(v, slug) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", v)
}

func Categories() []Category {
	return []Category{CategorySecurity, CategorySystem, CategoryUserAction, CategoryBusiness}
}
