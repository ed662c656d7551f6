package observer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizpulse/internal/alert"
	"bizpulse/internal/logger"
)

type memoryGoals struct {
	goals   []OverdueGoal
	marked  map[int64]time.Time
	markErr error
}

func (m *memoryGoals) Overdue(_ context.Context, now time.Time, limit int) ([]OverdueGoal, error) {
	var out []OverdueGoal
	for _, g := range m.goals {
		if _, done := m.marked[g.ID]; done || !g.Deadline.Before(now) {
			continue
		}
		out = append(out, g)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memoryGoals) MarkFailureAlerted(_ context.Context, id int64, at time.Time) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.marked[id] = at
	return nil
}

func TestSweepRaisesEachOverdueGoalOnce(t *testing.T) {
	o, d, _ := newTestObservers(t, staticStats{})
	store := &memoryGoals{
		marked: map[int64]time.Time{},
		goals: []OverdueGoal{
			{ID: 1, Title: "Q1 revenue", OwnerID: 4, OwnerName: "Dana", TargetValue: 100, CurrentValue: 20,
				Deadline: fixedNow.Add(-24 * time.Hour), IsCritical: true, ConsecutiveFailures: 2},
			{ID: 2, Title: "Q2 revenue", OwnerID: 4, TargetValue: 100, CurrentValue: 20, Deadline: fixedNow.Add(24 * time.Hour)},
		},
	}
	sweeper := NewGoalSweeper(store, o, "*/15 * * * *", logger.NopLogger())

	raised, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, raised)
	assert.Equal(t, fixedNow, store.marked[1])

	require.Len(t, d.events, 1)
	event := d.events[0]
	assert.Equal(t, alert.TypeGoalFailed, event.Type())
	assert.Equal(t, 3, event.Context()["consecutive_failures"])
	assert.Equal(t, alert.SeverityHigh, event.Severity())
	assert.Nil(t, event.InitiatedBy())

	raised, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, raised)
	assert.Len(t, d.events, 1)
}

func TestSweepLeavesGoalUnmarkedOnDispatchFailure(t *testing.T) {
	o, d, _ := newTestObservers(t, staticStats{})
	d.err = errors.New("broker down")
	store := &memoryGoals{
		marked: map[int64]time.Time{},
		goals: []OverdueGoal{
			{ID: 1, TargetValue: 100, CurrentValue: 20, Deadline: fixedNow.Add(-time.Hour)},
		},
	}

	raised, err := NewGoalSweeper(store, o, "", logger.NopLogger()).Sweep(context.Background())
	require.Error(t, err)
	assert.Zero(t, raised)
	assert.Empty(t, store.marked)
}

func TestSweeperRunRejectsBadSchedule(t *testing.T) {
	o, _, _ := newTestObservers(t, staticStats{})
	sweeper := NewGoalSweeper(&memoryGoals{marked: map[int64]time.Time{}}, o, "not a schedule", logger.NopLogger())

	err := sweeper.Run(context.Background())
	require.Error(t, err)
}

func TestSweeperRunStopsWithContext(t *testing.T) {
	o, _, _ := newTestObservers(t, staticStats{})
	sweeper := NewGoalSweeper(&memoryGoals{marked: map[int64]time.Time{}}, o, "@every 1h", logger.NopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
