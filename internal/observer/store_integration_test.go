//go:build integration

package observer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizpulse/internal/testutil"
)

func TestPostgresStoreExpenseHistory(t *testing.T) {
	db := testutil.Postgres(t)
	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC)

	var user int64
	require.NoError(t, db.QueryRow(`INSERT INTO users (name, email) VALUES ('Dana', 'dana@example.com') RETURNING id`).Scan(&user))

	insert := func(amount float64, at time.Time) int64 {
		var id int64
		require.NoError(t, db.QueryRow(
			`INSERT INTO expenses (submitter_id, amount, created_at) VALUES ($1, $2, $3) RETURNING id`,
			user, amount, at,
		).Scan(&id))
		return id
	}
	insert(100, now.AddDate(0, 0, -10))
	insert(300, now.AddDate(0, 0, -3))
	insert(5000, now.AddDate(0, 0, -200))
	insert(200, now.Add(-2*time.Hour))
	submitted := insert(2400, now)

	h, err := store.History(ctx, user, submitted, now)
	require.NoError(t, err)
	assert.InDelta(t, 200.0, h.AverageAmount, 0.001)
	assert.Equal(t, 2, h.ExpensesToday)

	empty, err := store.History(ctx, user+1000, 0, now)
	require.NoError(t, err)
	assert.Zero(t, empty.AverageAmount)
	assert.Equal(t, 1, empty.ExpensesToday)
}

func TestPostgresStoreOverdueGoals(t *testing.T) {
	db := testutil.Postgres(t)
	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	var owner int64
	require.NoError(t, db.QueryRow(`INSERT INTO users (name, email) VALUES ('Sam', 'sam@example.com') RETURNING id`).Scan(&owner))

	insert := func(title string, target, current float64, deadline time.Time, status string) {
		_, err := db.Exec(`
			INSERT INTO goals (owner_id, title, target_value, current_value, deadline, status)
			VALUES ($1, $2, $3, $4, $5, $6)`, owner, title, target, current, deadline, status)
		require.NoError(t, err)
	}
	insert("overdue", 100, 40, now.Add(-48*time.Hour), "active")
	insert("met", 100, 120, now.Add(-48*time.Hour), "active")
	insert("future", 100, 10, now.Add(48*time.Hour), "active")
	insert("archived", 100, 10, now.Add(-48*time.Hour), "archived")

	goals, err := store.Overdue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	g := goals[0]
	assert.Equal(t, "overdue", g.Title)
	assert.Equal(t, "Sam", g.OwnerName)
	assert.InDelta(t, 40.0, g.CurrentValue, 0.001)

	require.NoError(t, store.MarkFailureAlerted(ctx, g.ID, now))
	require.NoError(t, store.MarkFailureAlerted(ctx, g.ID, now))

	var failures int
	require.NoError(t, db.QueryRow(`SELECT consecutive_failures FROM goals WHERE id = $1`, g.ID).Scan(&failures))
	assert.Equal(t, 1, failures, "second mark is a no-op")

	goals, err = store.Overdue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, goals)
}
