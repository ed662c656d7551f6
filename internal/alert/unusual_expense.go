package alert

import (
	"fmt"
	"strings"
)

type UnusualExpenseInput struct {
	ExpenseID       int64   `json:"expense_id"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	ExpenseCategory string  `json:"expense_category"`
	SubmitterID     int64   `json:"submitter_id"`
	SubmitterName   string  `json:"submitter_name"`
	AverageAmount   float64 `json:"average_amount"`
	ExpensesToday   int     `json:"expenses_today"`
	MissingReceipt  bool    `json:"missing_receipt"`
}

// Ratio compares the expense with the submitter's trailing average. Without
// history every expense is treated as average.
func (in UnusualExpenseInput) Ratio() float64 {
	if in.AverageAmount <= 0 {
		return 1
	}
	return in.Amount / in.AverageAmount
}

type UnusualExpense struct {
	base
	in UnusualExpenseInput
}

func NewUnusualExpense(in UnusualExpenseInput, by *Actor) *UnusualExpense {
	return &UnusualExpense{base: newBase(unusualExpenseSeverity(in), by), in: in}
}

func unusualExpenseSeverity(in UnusualExpenseInput) Severity {
	ratio := in.Ratio()
	switch {
	case ratio >= 20 && in.MissingReceipt:
		return SeverityCritical
	case ratio >= 10 || (in.MissingReceipt && ratio >= 5):
		return SeverityHigh
	case ratio >= 5 || in.ExpensesToday >= 10:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func (e *UnusualExpense) Type() string       { return TypeUnusualExpense }
func (e *UnusualExpense) Category() Category { return CategoryBusiness }
func (e *UnusualExpense) input() interface{} { return e.in }

func (e *UnusualExpense) Fingerprint() string {
	return fmt.Sprintf("%d|expense:%d", e.in.SubmitterID, e.in.ExpenseID)
}

func (e *UnusualExpense) PreferenceCategory() string {
	return PreferenceExpense
}

func (e *UnusualExpense) ShouldFreezeReimbursement() bool {
	return e.severity.AtLeast(SeverityHigh)
}

func (e *UnusualExpense) RiskScore() int {
	score := min(int(e.in.Ratio()*4), 60)
	if e.in.MissingReceipt {
		score += 25
	}
	if e.in.ExpensesToday >= 10 {
		score += 15
	}
	return clampScore(score)
}

func (e *UnusualExpense) Title() string {
	if e.severity.AtLeast(SeverityHigh) {
		return "Highly Unusual Expense"
	}
	return "Unusual Expense Submitted"
}

func (e *UnusualExpense) Description() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s submitted a %s expense of %.2f %s", e.in.SubmitterName, e.in.ExpenseCategory, e.in.Amount, e.in.Currency)
	if e.in.AverageAmount > 0 {
		fmt.Fprintf(&b, ", %.1fx their average of %.2f", e.in.Ratio(), e.in.AverageAmount)
	}
	b.WriteString(".")
	if e.in.MissingReceipt {
		b.WriteString(" No receipt was attached.")
	}
	if e.in.ExpensesToday >= 10 {
		fmt.Fprintf(&b, " This is expense number %d submitted today.", e.in.ExpensesToday)
	}
	return b.String()
}

func (e *UnusualExpense) ActionURL() string {
	return fmt.Sprintf("/expenses/%d", e.in.ExpenseID)
}

func (e *UnusualExpense) EmailSubject() string {
	return subject(e.severity, e.Title())
}

func (e *UnusualExpense) Metadata() map[string]interface{} {
	var actions []string
	if e.ShouldFreezeReimbursement() {
		actions = append(actions, "freeze_reimbursement")
	}
	if e.in.MissingReceipt {
		actions = append(actions, "request_receipt")
	}
	actions = append(actions, "review_expense")
	return metadata(CategoryBusiness, e.RiskScore(), actions, map[string]interface{}{
		"ratio_to_average": round1(e.in.Ratio()),
	})
}

func (e *UnusualExpense) Context() map[string]interface{} {
	return map[string]interface{}{
		"expense_id":       e.in.ExpenseID,
		"amount":           e.in.Amount,
		"currency":         e.in.Currency,
		"expense_category": e.in.ExpenseCategory,
		"submitter_id":     e.in.SubmitterID,
		"submitter_name":   e.in.SubmitterName,
		"average_amount":   e.in.AverageAmount,
		"expenses_today":   e.in.ExpensesToday,
		"missing_receipt":  e.in.MissingReceipt,
	}
}

func (e *UnusualExpense) SubjectUserID() int64 {
	return e.in.SubmitterID
}
