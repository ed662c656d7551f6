package alert

import (
	"fmt"
	"strings"
)

type HighValueSaleInput struct {
	SaleID          int64   `json:"sale_id"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	ClientName      string  `json:"client_name"`
	SalespersonID   int64   `json:"salesperson_id"`
	SalespersonName string  `json:"salesperson_name"`
	Threshold       float64 `json:"threshold"`
	DiscountPercent float64 `json:"discount_percent"`
	IsNewClient     bool    `json:"is_new_client"`
}

func (in HighValueSaleInput) thresholdMultiple() float64 {
	if in.Threshold <= 0 {
		return 0
	}
	return in.Amount / in.Threshold
}

type HighValueSale struct {
	base
	in HighValueSaleInput
}

func NewHighValueSale(in HighValueSaleInput, by *Actor) *HighValueSale {
	return &HighValueSale{base: newBase(highValueSaleSeverity(in), by), in: in}
}

func highValueSaleSeverity(in HighValueSaleInput) Severity {
	multiple := in.thresholdMultiple()
	switch {
	case in.DiscountPercent >= 50 && multiple >= 5:
		return SeverityCritical
	case multiple >= 10 || in.DiscountPercent >= 40:
		return SeverityHigh
	case multiple >= 3 || (in.IsNewClient && multiple >= 1):
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func (e *HighValueSale) Type() string       { return TypeHighValueSale }
func (e *HighValueSale) Category() Category { return CategoryBusiness }
func (e *HighValueSale) input() interface{} { return e.in }

// Fingerprint is per sale so two distinct sales by one salesperson are never
// folded into a single alert.
func (e *HighValueSale) Fingerprint() string {
	return fmt.Sprintf("%d|sale:%d", e.in.SalespersonID, e.in.SaleID)
}

func (e *HighValueSale) PreferenceCategory() string {
	return PreferenceSales
}

func (e *HighValueSale) RequiresApproval() bool {
	return e.in.DiscountPercent >= 30
}

func (e *HighValueSale) RiskScore() int {
	score := int(e.in.DiscountPercent)
	if e.in.IsNewClient {
		score += 15
	}
	if e.in.thresholdMultiple() >= 10 {
		score += 20
	}
	return clampScore(score)
}

func (e *HighValueSale) Title() string {
	switch e.severity {
	case SeverityCritical:
		return "High-Value Sale With Extreme Discount"
	case SeverityHigh:
		return "Exceptional Sale Closed"
	default:
		return "High-Value Sale Closed"
	}
}

func (e *HighValueSale) Description() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s closed a sale of %.2f %s with %s", e.in.SalespersonName, e.in.Amount, e.in.Currency, e.in.ClientName)
	if e.in.IsNewClient {
		b.WriteString(" (new client)")
	}
	b.WriteString(".")
	if e.in.Threshold > 0 {
		fmt.Fprintf(&b, " The amount is %.1fx the alert threshold.", e.in.thresholdMultiple())
	}
	if e.in.DiscountPercent > 0 {
		fmt.Fprintf(&b, " A %.0f%% discount was applied.", e.in.DiscountPercent)
	}
	if e.RequiresApproval() {
		b.WriteString(" Discount approval is required.")
	}
	return b.String()
}

func (e *HighValueSale) ActionURL() string {
	return fmt.Sprintf("/sales/%d", e.in.SaleID)
}

func (e *HighValueSale) EmailSubject() string {
	return subject(e.severity, e.Title())
}

func (e *HighValueSale) Metadata() map[string]interface{} {
	var actions []string
	if e.RequiresApproval() {
		actions = append(actions, "approve_discount")
	}
	if e.in.IsNewClient {
		actions = append(actions, "verify_client")
	}
	actions = append(actions, "congratulate_salesperson")
	return metadata(CategoryBusiness, e.RiskScore(), actions, map[string]interface{}{
		"threshold_multiple": round1(e.in.thresholdMultiple()),
	})
}

func (e *HighValueSale) Context() map[string]interface{} {
	return map[string]interface{}{
		"sale_id":          e.in.SaleID,
		"amount":           e.in.Amount,
		"currency":         e.in.Currency,
		"client_name":      e.in.ClientName,
		"salesperson_id":   e.in.SalespersonID,
		"salesperson_name": e.in.SalespersonName,
		"threshold":        e.in.Threshold,
		"discount_percent": e.in.DiscountPercent,
		"is_new_client":    e.in.IsNewClient,
	}
}

func (e *HighValueSale) SubjectUserID() int64 {
	return e.in.SalespersonID
}
