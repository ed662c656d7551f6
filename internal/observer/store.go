package observer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bizpulse/pkg/metrics"
)

const serviceLabel = "observer"

// ExpenseHistory is the read model the expense observer compares against.
type ExpenseHistory struct {
	AverageAmount float64
	ExpensesToday int
}

type ExpenseStats interface {
	// History summarizes the submitter's expenses, excluding expenseID.
	History(ctx context.Context, submitterID, expenseID int64, now time.Time) (ExpenseHistory, error)
}

// OverdueGoal is an active goal whose deadline passed without a failure alert.
type OverdueGoal struct {
	ID                  int64
	Title               string
	OwnerID             int64
	OwnerName           string
	TargetValue         float64
	CurrentValue        float64
	Deadline            time.Time
	IsCritical          bool
	ConsecutiveFailures int
}

type GoalStore interface {
	Overdue(ctx context.Context, now time.Time, limit int) ([]OverdueGoal, error)
	MarkFailureAlerted(ctx context.Context, goalID int64, at time.Time) error
}

type PostgresStore struct {
	db            *sql.DB
	averageWindow time.Duration
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, averageWindow: 90 * 24 * time.Hour}
}

func observe(operation string, start time.Time, err error) {
	metrics.IncDatabaseQuery(serviceLabel, "postgres", operation, metrics.StatusLabel(err))
	metrics.ObserveDatabaseQueryDuration(serviceLabel, "postgres", operation, time.Since(start))
}

func (s *PostgresStore) History(ctx context.Context, submitterID, expenseID int64, now time.Time) (h ExpenseHistory, err error) {
	start := time.Now()
	defer func() { observe("expense_history", start, err) }()

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var avg sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT
			AVG(amount) FILTER (WHERE created_at >= $3),
			COUNT(*) FILTER (WHERE created_at >= $4)
		FROM expenses
		WHERE submitter_id = $1 AND id <> $2`,
		submitterID, expenseID, now.Add(-s.averageWindow), dayStart,
	).Scan(&avg, &h.ExpensesToday)
	if err != nil {
		return ExpenseHistory{}, fmt.Errorf("failed to query expense history: %w", err)
	}
	if avg.Valid {
		h.AverageAmount = avg.Float64
	}
	// The submitted expense itself counts towards today's total.
	h.ExpensesToday++
	return h, nil
}

func (s *PostgresStore) Overdue(ctx context.Context, now time.Time, limit int) (goals []OverdueGoal, err error) {
	start := time.Now()
	defer func() { observe("overdue_goals", start, err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.title, g.owner_id, u.name, g.target_value, g.current_value,
		       g.deadline, g.is_critical, g.consecutive_failures
		FROM goals g
		JOIN users u ON u.id = g.owner_id
		WHERE g.status = 'active'
		  AND g.failure_alerted_at IS NULL
		  AND g.deadline < $1
		  AND g.current_value < g.target_value
		ORDER BY g.deadline
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue goals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var g OverdueGoal
		if err := rows.Scan(&g.ID, &g.Title, &g.OwnerID, &g.OwnerName, &g.TargetValue, &g.CurrentValue,
			&g.Deadline, &g.IsCritical, &g.ConsecutiveFailures); err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// MarkFailureAlerted records the alert and counts the miss. It is a no-op for
// goals that were already marked by a concurrent sweep.
func (s *PostgresStore) MarkFailureAlerted(ctx context.Context, goalID int64, at time.Time) (err error) {
	start := time.Now()
	defer func() { observe("mark_goal_alerted", start, err) }()

	_, err = s.db.ExecContext(ctx, `
		UPDATE goals
		SET failure_alerted_at = $2, consecutive_failures = consecutive_failures + 1
		WHERE id = $1 AND failure_alerted_at IS NULL`, goalID, at)
	if err != nil {
		return fmt.Errorf("failed to mark goal %d: %w", goalID, err)
	}
	return nil
}
