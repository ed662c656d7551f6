package alert

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrUnknownEventType = errors.New("unknown alert event type")

// Envelope is the queued form of an event. Only constructor inputs travel;
// severity and the derived getters are recomputed on decode, which yields
// the same values because they are pure.
type Envelope struct {
	Type        string          `json:"type"`
	OccurredAt  time.Time       `json:"occurred_at"`
	InitiatedBy *Actor          `json:"initiated_by"`
	Input       json.RawMessage `json:"input"`
}

type decoder func(raw json.RawMessage, by *Actor) (Event, error)

var decoders = map[string]decoder{}

func register[I any, E Event](eventType string, build func(I, *Actor) E) {
	decoders[eventType] = func(raw json.RawMessage, by *Actor) (Event, error) {
		var in I
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("failed to decode %s input: %w", eventType, err)
		}
		return build(in, by), nil
	}
}

func init() {
	register(TypeFailedLogin, NewFailedLogin)
	register(TypeAdminAccountModified, NewAdminAccountModified)
	register(TypeSuspiciousSession, NewSuspiciousSession)
	register(TypeBulkOperation, NewBulkOperation)
	register(TypeMassContentDeletion, NewMassContentDeletion)
	register(TypeGoalFailed, NewGoalFailed)
	register(TypeHighValueSale, NewHighValueSale)
	register(TypeUnusualExpense, NewUnusualExpense)
	register(TypeDeliveryFailure, NewDeliveryFailure)
}

func Encode(e Event) ([]byte, error) {
	input, err := json.Marshal(e.input())
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s input: %w", e.Type(), err)
	}
	return json.Marshal(Envelope{
		Type:        e.Type(),
		OccurredAt:  e.OccurredAt(),
		InitiatedBy: e.InitiatedBy(),
		Input:       input,
	})
}

func Decode(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode alert envelope: %w", err)
	}

	decode, ok := decoders[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, env.Type)
	}

	event, err := decode(env.Input, env.InitiatedBy)
	if err != nil {
		return nil, err
	}
	if !env.OccurredAt.IsZero() {
		event.setOccurredAt(env.OccurredAt)
	}
	return event, nil
}
