package alert

import (
	"fmt"
	"strings"
	"time"
)

type GoalFailedInput struct {
	GoalID              int64     `json:"goal_id"`
	GoalTitle           string    `json:"goal_title"`
	OwnerID             int64     `json:"owner_id"`
	OwnerName           string    `json:"owner_name"`
	TargetValue         float64   `json:"target_value"`
	AchievedValue       float64   `json:"achieved_value"`
	Deadline            time.Time `json:"deadline"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	IsCriticalGoal      bool      `json:"is_critical_goal"`
}

// AchievementPercent is the share of the target reached. A goal without a
// positive target counts as fully achieved.
func (in GoalFailedInput) AchievementPercent() float64 {
	if in.TargetValue <= 0 {
		return 100
	}
	return in.AchievedValue / in.TargetValue * 100
}

type GoalFailed struct {
	base
	in GoalFailedInput
}

func NewGoalFailed(in GoalFailedInput, by *Actor) *GoalFailed {
	return &GoalFailed{base: newBase(goalFailedSeverity(in), by), in: in}
}

func goalFailedSeverity(in GoalFailedInput) Severity {
	switch {
	case in.IsCriticalGoal && in.ConsecutiveFailures >= 3:
		return SeverityHigh
	case in.IsCriticalGoal || in.ConsecutiveFailures >= 3 || in.AchievementPercent() < 25:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func (e *GoalFailed) Type() string       { return TypeGoalFailed }
func (e *GoalFailed) Category() Category { return CategoryUserAction }
func (e *GoalFailed) input() interface{} { return e.in }

func (e *GoalFailed) Fingerprint() string {
	return fmt.Sprintf("goal:%d", e.in.GoalID)
}

func (e *GoalFailed) PreferenceCategory() string {
	return PreferenceGoal
}

func (e *GoalFailed) OwnerID() int64 {
	return e.in.OwnerID
}

func (e *GoalFailed) RequiresImmediateIntervention() bool {
	return e.in.IsCriticalGoal && e.in.ConsecutiveFailures >= 3
}

func (e *GoalFailed) ShouldReassignGoal() bool {
	return e.in.ConsecutiveFailures >= 3 && e.in.AchievementPercent() < 50
}

func (e *GoalFailed) RiskScore() int {
	score := int((100 - min(e.in.AchievementPercent(), 100)) / 2)
	if e.in.IsCriticalGoal {
		score += 25
	}
	score += min(e.in.ConsecutiveFailures*8, 25)
	return clampScore(score)
}

func (e *GoalFailed) Title() string {
	switch {
	case e.RequiresImmediateIntervention():
		return "Critical Goal Repeatedly Missed"
	case e.in.IsCriticalGoal:
		return "Critical Goal Missed"
	default:
		return "Goal Missed"
	}
}

func (e *GoalFailed) Description() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal %q owned by %s reached %.1f%% of its target (%.2f of %.2f) by the deadline %s.",
		e.in.GoalTitle, e.in.OwnerName, e.in.AchievementPercent(),
		e.in.AchievedValue, e.in.TargetValue, e.in.Deadline.Format("2006-01-02"))
	if e.in.ConsecutiveFailures > 1 {
		fmt.Fprintf(&b, " It has now failed %d consecutive periods.", e.in.ConsecutiveFailures)
	}
	if e.RequiresImmediateIntervention() {
		b.WriteString(" Immediate intervention is required.")
	}
	return b.String()
}

func (e *GoalFailed) ActionURL() string {
	return fmt.Sprintf("/goals/%d", e.in.GoalID)
}

func (e *GoalFailed) EmailSubject() string {
	return subject(e.severity, e.Title())
}

func (e *GoalFailed) Metadata() map[string]interface{} {
	var actions []string
	if e.RequiresImmediateIntervention() {
		actions = append(actions, "schedule_intervention")
	}
	if e.ShouldReassignGoal() {
		actions = append(actions, "reassign_goal")
	}
	actions = append(actions, "review_goal_plan")
	return metadata(CategoryUserAction, e.RiskScore(), actions, map[string]interface{}{
		"achievement_percent": round1(e.in.AchievementPercent()),
	})
}

func (e *GoalFailed) Context() map[string]interface{} {
	return map[string]interface{}{
		"goal_id":              e.in.GoalID,
		"goal_title":           e.in.GoalTitle,
		"owner_id":             e.in.OwnerID,
		"owner_name":           e.in.OwnerName,
		"target_value":         e.in.TargetValue,
		"achieved_value":       e.in.AchievedValue,
		"achievement_percent":  round1(e.in.AchievementPercent()),
		"deadline":             e.in.Deadline.UTC().Format(time.RFC3339),
		"consecutive_failures": e.in.ConsecutiveFailures,
		"is_critical_goal":     e.in.IsCriticalGoal,
	}
}

func (e *GoalFailed) SubjectUserID() int64 {
	return e.in.OwnerID
}
