package notification

import (
	"time"

	"bizpulse/internal/alert"
)

type Notification struct {
	ID        int64                  `json:"id"`
	UserID    int64                  `json:"user_id"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data"`
	ReadAt    *time.Time             `json:"read_at"`
	CreatedAt time.Time              `json:"created_at"`
}

func (n Notification) IsRead() bool {
	return n.ReadAt != nil
}

// EmailPreference is the per-user email gate. A user without a stored row
// gets DefaultPreference.
type EmailPreference struct {
	UserID    int64     `json:"user_id"`
	Enabled   bool      `json:"enabled"`
	Task      bool      `json:"task"`
	Sales     bool      `json:"sales"`
	Expense   bool      `json:"expense"`
	Goal      bool      `json:"goal"`
	Content   bool      `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

func DefaultPreference(userID int64) EmailPreference {
	return EmailPreference{
		UserID:  userID,
		Enabled: true,
		Task:    true,
		Sales:   true,
		Expense: true,
		Goal:    true,
		Content: true,
	}
}

// AllowsCategory reports the per-category switch. Events without a
// preference category ("") are gated by the master switch only.
func (p EmailPreference) AllowsCategory(category string) bool {
	switch category {
	case alert.PreferenceTask:
		return p.Task
	case alert.PreferenceSales:
		return p.Sales
	case alert.PreferenceExpense:
		return p.Expense
	case alert.PreferenceGoal:
		return p.Goal
	case alert.PreferenceContent:
		return p.Content
	default:
		return true
	}
}

type ListFilter struct {
	UnreadOnly bool
	Limit      int
}

type UpdatePreferenceRequest struct {
	Enabled *bool `json:"enabled"`
	Task    *bool `json:"task"`
	Sales   *bool `json:"sales"`
	Expense *bool `json:"expense"`
	Goal    *bool `json:"goal"`
	Content *bool `json:"content"`
}

func (r UpdatePreferenceRequest) Apply(p EmailPreference) EmailPreference {
	for _, f := range []struct {
		src *bool
		dst *bool
	}{
		{r.Enabled, &p.Enabled},
		{r.Task, &p.Task},
		{r.Sales, &p.Sales},
		{r.Expense, &p.Expense},
		{r.Goal, &p.Goal},
		{r.Content, &p.Content},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
	return p
}

type UnreadCountResponse struct {
	Unread int `json:"unread"`
}

type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}
