//go:build integration

package history

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizpulse/internal/testutil"
)

func TestMongoDBRepositoryInsertAndList(t *testing.T) {
	repo := NewRepository(testutil.Mongo(t))
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	entries := []Entry{
		{EventType: "SecurityFailedLoginEvent", Category: "Security", Severity: "HIGH", Status: "delivered"},
		{EventType: "BusinessHighValueSaleEvent", Category: "Business", Severity: "MEDIUM", Status: "rate_limited"},
		{EventType: "SecurityFailedLoginEvent", Category: "Security", Severity: "CRITICAL", Status: "failed", Error: "smtp down"},
	}
	for i := range entries {
		entries[i].ID = uuid.NewString()
		entries[i].HandledAt = base.Add(time.Duration(i) * time.Second)
		entries[i].OccurredAt = entries[i].HandledAt
		require.NoError(t, repo.Insert(ctx, entries[i]))
	}

	all, err := repo.List(ctx, Filter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, entries[2].ID, all[0].ID, "newest first")

	security, err := repo.List(ctx, Filter{Category: "Security", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, security, 2)

	failed, err := repo.List(ctx, Filter{Status: "failed", EventType: "SecurityFailedLoginEvent", Limit: 10})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "smtp down", failed[0].Error)

	limited, err := repo.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
