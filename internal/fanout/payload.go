package fanout

import (
	"strings"
	"time"

	"bizpulse/internal/alert"
	"bizpulse/internal/constants"
)

// BroadcastPayload is the realtime contract consumed by UI clients.
// RecipientID lets the gateway forward a payload only to its recipient.
type BroadcastPayload struct {
	EventType   string       `json:"event_type"`
	Category    string       `json:"category"`
	Severity    string       `json:"severity"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	OccurredAt  string       `json:"occurred_at"`
	InitiatedBy *alert.Actor `json:"initiated_by"`
	ActionURL   *string      `json:"action_url"`
	RecipientID int64        `json:"recipient_id"`
}

func ChannelFor(c alert.Category) string {
	return constants.BroadcastChannelPrefix + c.Slug()
}

// NotificationType is the persisted semantic tag, e.g. "security_alert".
func NotificationType(c alert.Category) string {
	return strings.ReplaceAll(c.Slug(), "-", "_") + "_alert"
}

func absoluteURL(base, u string) string {
	if u == "" || base == "" || !strings.HasPrefix(u, "/") {
		return u
	}
	return strings.TrimSuffix(base, "/") + u
}

func newBroadcastPayload(e alert.Event, actionURL string, recipientID int64) BroadcastPayload {
	p := BroadcastPayload{
		EventType:   e.Type(),
		Category:    string(e.Category()),
		Severity:    string(e.Severity()),
		Title:       e.Title(),
		Description: e.Description(),
		OccurredAt:  e.OccurredAt().UTC().Format(time.RFC3339),
		InitiatedBy: e.InitiatedBy(),
		RecipientID: recipientID,
	}
	if actionURL != "" {
		p.ActionURL = &actionURL
	}
	return p
}

func alertVariables(e alert.Event, actionURL string) map[string]interface{} {
	vars := map[string]interface{}{
		"type":        e.Type(),
		"title":       e.Title(),
		"description": e.Description(),
		"severity":    string(e.Severity()),
		"category":    string(e.Category()),
		"subject":     e.EmailSubject(),
		"action_url":  actionURL,
		"occurred_at": e.OccurredAt().UTC().Format(time.RFC3339),
		"metadata":    e.Metadata(),
	}
	if by := e.InitiatedBy(); by != nil {
		vars["initiated_by"] = map[string]interface{}{"id": by.ID, "name": by.Name, "email": by.Email}
	}
	return vars
}
