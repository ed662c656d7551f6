package alert

import "fmt"

type DeliveryFailureInput struct {
	FailedType     string   `json:"failed_type"`
	FailedCategory Category `json:"failed_category"`
	FailedSeverity Severity `json:"failed_severity"`
	FailedTitle    string   `json:"failed_title"`
	Listener       string   `json:"listener"`
	Attempts       int      `json:"attempts"`
	LastError      string   `json:"last_error"`
}

// DeliveryFailure is the escalation raised when a CRITICAL alert could not be
// delivered. It is always CRITICAL.
type DeliveryFailure struct {
	base
	in DeliveryFailureInput
}

func NewDeliveryFailure(in DeliveryFailureInput, by *Actor) *DeliveryFailure {
	return &DeliveryFailure{base: newBase(SeverityCritical, by), in: in}
}

func (e *DeliveryFailure) Type() string       { return TypeDeliveryFailure }
func (e *DeliveryFailure) Category() Category { return CategorySystem }
func (e *DeliveryFailure) input() interface{} { return e.in }

func (e *DeliveryFailure) Fingerprint() string {
	return e.in.Listener + "|" + e.in.FailedType
}

func (e *DeliveryFailure) Title() string {
	return "Alert Delivery Failed"
}

func (e *DeliveryFailure) Description() string {
	return fmt.Sprintf("Delivery of %s alert %q (%s) failed after %d %s in %s: %s",
		e.in.FailedSeverity, e.in.FailedTitle, e.in.FailedType,
		e.in.Attempts, plural(e.in.Attempts, "attempt", "attempts"), e.in.Listener, e.in.LastError)
}

func (e *DeliveryFailure) ActionURL() string {
	return "/admin/system/alert-history"
}

func (e *DeliveryFailure) EmailSubject() string {
	return subject(e.severity, e.Title())
}

func (e *DeliveryFailure) Metadata() map[string]interface{} {
	return metadata(CategorySystem, 100, []string{"check_delivery_channels", "review_original_alert"}, nil)
}

func (e *DeliveryFailure) Context() map[string]interface{} {
	return map[string]interface{}{
		"failed_type":     e.in.FailedType,
		"failed_category": string(e.in.FailedCategory),
		"failed_severity": string(e.in.FailedSeverity),
		"failed_title":    e.in.FailedTitle,
		"listener":        e.in.Listener,
		"attempts":        e.in.Attempts,
		"last_error":      e.in.LastError,
	}
}
