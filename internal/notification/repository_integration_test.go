//go:build integration

package notification

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizpulse/internal/testutil"
	pkgerrors "bizpulse/pkg/errors"
)

func insertUser(t *testing.T, db *sql.DB, email string) int64 {
	t.Helper()
	var id int64
	err := db.QueryRow(`INSERT INTO users (name, email) VALUES ($1, $2) RETURNING id`, email, email).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestPostgresRepositoryLifecycle(t *testing.T) {
	db := testutil.Postgres(t)
	repo := NewRepository(db)
	ctx := context.Background()

	owner := insertUser(t, db, "owner@example.com")
	other := insertUser(t, db, "other@example.com")

	for i := 0; i < 3; i++ {
		n := &Notification{
			UserID:  owner,
			Type:    "security",
			Title:   "Failed logins",
			Message: "3 failed login attempts",
			Data:    map[string]interface{}{"severity": "HIGH"},
		}
		require.NoError(t, repo.Create(ctx, n))
		assert.NotZero(t, n.ID)
		assert.False(t, n.CreatedAt.IsZero())
	}

	items, err := repo.List(ctx, owner, ListFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "HIGH", items[0].Data["severity"])

	count, err := repo.UnreadCount(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	read, err := repo.MarkRead(ctx, owner, items[0].ID)
	require.NoError(t, err)
	require.True(t, read.IsRead())
	again, err := repo.MarkRead(ctx, owner, items[0].ID)
	require.NoError(t, err)
	assert.True(t, read.ReadAt.Equal(*again.ReadAt), "first read timestamp is kept")

	_, err = repo.MarkRead(ctx, other, items[1].ID)
	var appErr *pkgerrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, pkgerrors.ErrNotFound.Code, appErr.Code)

	unread, err := repo.List(ctx, owner, ListFilter{UnreadOnly: true, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	affected, err := repo.MarkAllRead(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)

	require.NoError(t, repo.Delete(ctx, other, items[2].ID))
	require.NoError(t, repo.Delete(ctx, owner, items[2].ID))
	require.NoError(t, repo.Delete(ctx, owner, items[2].ID))

	items, err = repo.List(ctx, owner, ListFilter{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestPostgresPreferenceRepository(t *testing.T) {
	db := testutil.Postgres(t)
	repo := NewPreferenceRepository(db)
	ctx := context.Background()
	user := insertUser(t, db, "prefs@example.com")

	p, err := repo.Get(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, DefaultPreference(user), p)

	p.Sales = false
	saved, err := repo.Upsert(ctx, p)
	require.NoError(t, err)
	assert.False(t, saved.UpdatedAt.IsZero())

	p, err = repo.Get(ctx, user)
	require.NoError(t, err)
	assert.True(t, p.Enabled)
	assert.False(t, p.Sales)
	assert.False(t, p.AllowsCategory("sales"))
}
