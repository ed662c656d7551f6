package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizpulse/internal/alert"
	"bizpulse/internal/directory"
	"bizpulse/internal/fanout"
)

type recordingChannel struct {
	delivered []int64
	direct    []string
	events    []alert.Event
	directErr error
}

func (c *recordingChannel) Deliver(_ context.Context, e alert.Event, r directory.User) (fanout.Result, error) {
	c.delivered = append(c.delivered, r.ID)
	c.events = append(c.events, e)
	return fanout.Result{}, nil
}

func (c *recordingChannel) SendDirect(_ context.Context, e alert.Event, address string) error {
	c.direct = append(c.direct, address)
	return c.directErr
}

func TestFanoutEscalator(t *testing.T) {
	channel := &recordingChannel{}
	esc := NewFanoutEscalator(DefaultListenerName, testDirectory(), channel, []string{"oncall@example.com"})

	failed := criticalEvent()
	err := esc.Escalate(context.Background(), failed, Outcome{
		Status:   StatusFailed,
		Attempts: 6,
		Err:      errors.New("smtp unavailable"),
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []int64{1, 2}, channel.delivered)
	assert.Equal(t, []string{"oncall@example.com"}, channel.direct)

	escalation := channel.events[0]
	assert.Equal(t, alert.TypeDeliveryFailure, escalation.Type())
	assert.Equal(t, alert.SeverityCritical, escalation.Severity())
	assert.Equal(t, alert.CategorySystem, escalation.Category())
	assert.Equal(t, failed.Type(), escalation.Context()["failed_type"])
	assert.Contains(t, escalation.Description(), "smtp unavailable")
}

func TestFanoutEscalatorErrors(t *testing.T) {
	channel := &recordingChannel{directErr: errors.New("mailbox full")}
	esc := NewFanoutEscalator(DefaultListenerName, testDirectory(), channel, []string{"oncall@example.com"})

	err := esc.Escalate(context.Background(), criticalEvent(), Outcome{Status: StatusFailed})
	assert.ErrorContains(t, err, "mailbox full")
	assert.Len(t, channel.delivered, 2, "admins are still reached")

	empty := NewFanoutEscalator(DefaultListenerName, &memoryDirectory{}, channel, nil)
	assert.Error(t, empty.Escalate(context.Background(), criticalEvent(), Outcome{Status: StatusFailed}))
}
