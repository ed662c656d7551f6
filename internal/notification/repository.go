package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pkgerrors "bizpulse/pkg/errors"
	"bizpulse/pkg/metrics"
)

const serviceLabel = "notification"

var ErrNotFound = pkgerrors.ErrNotFound.WithDetail("message", "notification not found")

// Repository stores notifications. Every read and write is scoped by the
// owning user; one user can never touch another user's rows.
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	List(ctx context.Context, userID int64, filter ListFilter) ([]Notification, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
	MarkRead(ctx context.Context, userID, id int64) (*Notification, error)
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
	Delete(ctx context.Context, userID, id int64) error
}

type PreferenceRepository interface {
	Get(ctx context.Context, userID int64) (EmailPreference, error)
	Upsert(ctx context.Context, pref EmailPreference) (EmailPreference, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func observe(operation string, start time.Time, err error) {
	metrics.IncDatabaseQuery(serviceLabel, "postgres", operation, metrics.StatusLabel(err))
	metrics.ObserveDatabaseQueryDuration(serviceLabel, "postgres", operation, time.Since(start))
}

const notificationColumns = `id, user_id, type, title, message, data, read_at, created_at`

func scanNotification(row interface{ Scan(...interface{}) error }) (Notification, error) {
	var (
		n      Notification
		data   []byte
		readAt sql.NullTime
	)
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &data, &readAt, &n.CreatedAt); err != nil {
		return Notification{}, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return Notification{}, fmt.Errorf("failed to decode notification data: %w", err)
		}
	}
	if readAt.Valid {
		t := readAt.Time
		n.ReadAt = &t
	}
	return n, nil
}

func (r *PostgresRepository) Create(ctx context.Context, n *Notification) (err error) {
	start := time.Now()
	defer func() { observe("create_notification", start, err) }()

	if n.Data == nil {
		n.Data = map[string]interface{}{}
	}
	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("failed to encode notification data: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO notifications (user_id, type, title, message, data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		n.UserID, n.Type, n.Title, n.Message, data,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, userID int64, filter ListFilter) (_ []Notification, err error) {
	start := time.Now()
	defer func() { observe("list_notifications", start, err) }()

	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1`
	if filter.UnreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, userID, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]Notification, 0, filter.Limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) UnreadCount(ctx context.Context, userID int64) (count int, err error) {
	start := time.Now()
	defer func() { observe("unread_count", start, err) }()

	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead sets read_at once; marking an already read notification keeps the
// first timestamp.
func (r *PostgresRepository) MarkRead(ctx context.Context, userID, id int64) (_ *Notification, err error) {
	start := time.Now()
	defer func() { observe("mark_read", start, err) }()

	row := r.db.QueryRowContext(ctx, `
		UPDATE notifications SET read_at = COALESCE(read_at, NOW())
		WHERE id = $1 AND user_id = $2
		RETURNING `+notificationColumns,
		id, userID,
	)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound.WithCause(err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark notification read: %w", err)
	}
	return &n, nil
}

func (r *PostgresRepository) MarkAllRead(ctx context.Context, userID int64) (_ int64, err error) {
	start := time.Now()
	defer func() { observe("mark_all_read", start, err) }()

	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read_at = NOW() WHERE user_id = $1 AND read_at IS NULL`, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return res.RowsAffected()
}

// Delete removes the notification if it exists. A missing row is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, userID, id int64) (err error) {
	start := time.Now()
	defer func() { observe("delete_notification", start, err) }()

	if _, err = r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID,
	); err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	return nil
}

type PostgresPreferenceRepository struct {
	db *sql.DB
}

func NewPreferenceRepository(db *sql.DB) *PostgresPreferenceRepository {
	return &PostgresPreferenceRepository{db: db}
}

func (r *PostgresPreferenceRepository) Get(ctx context.Context, userID int64) (_ EmailPreference, err error) {
	start := time.Now()
	defer func() { observe("get_preference", start, err) }()

	p := EmailPreference{UserID: userID}
	err = r.db.QueryRowContext(ctx, `
		SELECT enabled, task, sales, expense, goal, content, updated_at
		FROM email_preferences WHERE user_id = $1`, userID,
	).Scan(&p.Enabled, &p.Task, &p.Sales, &p.Expense, &p.Goal, &p.Content, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultPreference(userID), nil
	}
	if err != nil {
		return EmailPreference{}, fmt.Errorf("failed to get email preference: %w", err)
	}
	return p, nil
}

func (r *PostgresPreferenceRepository) Upsert(ctx context.Context, p EmailPreference) (_ EmailPreference, err error) {
	start := time.Now()
	defer func() { observe("upsert_preference", start, err) }()

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO email_preferences (user_id, enabled, task, sales, expense, goal, content, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			enabled = EXCLUDED.enabled, task = EXCLUDED.task, sales = EXCLUDED.sales,
			expense = EXCLUDED.expense, goal = EXCLUDED.goal, content = EXCLUDED.content,
			updated_at = EXCLUDED.updated_at
		RETURNING updated_at`,
		p.UserID, p.Enabled, p.Task, p.Sales, p.Expense, p.Goal, p.Content,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return EmailPreference{}, fmt.Errorf("failed to save email preference: %w", err)
	}
	return p, nil
}
