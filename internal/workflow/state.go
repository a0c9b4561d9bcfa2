package workflow

import (
	"context"
	"encoding/json"

	"lab-booking-backend/internal/store"
)

// State is the derived status of a slot. It is never stored.
type State int

const (
	StateFree State = iota
	StateDeactivated
	StateRequested
	StateBooked
)

func (s State) String() string {
	switch s {
	case StateDeactivated:
		return "deactivated"
	case StateRequested:
		return "requested"
	case StateBooked:
		return "booked"
	default:
		return "free"
	}
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// DeriveState computes the slot state from the three registries. When more
// than one holds a row the precedence is deactivated, booked, requested.
func (e *Engine) DeriveState(ctx context.Context, key SlotKey) (State, error) {
	if err := validateKey(key); err != nil {
		return StateFree, err
	}
	st, err := deriveState(ctx, e.store, key)
	if err != nil {
		return StateFree, storageFailure(err)
	}
	return st, nil
}

func deriveState(ctx context.Context, s store.Store, key SlotKey) (State, error) {
	d, err := lookup(s.FindDeactivation(ctx, key))
	if err != nil {
		return StateFree, err
	}
	if d != nil {
		return StateDeactivated, nil
	}
	b, err := lookup(s.FindBooking(ctx, key))
	if err != nil {
		return StateFree, err
	}
	if b != nil {
		return StateBooked, nil
	}
	n, err := s.CountRequests(ctx, key)
	if err != nil {
		return StateFree, err
	}
	if n > 0 {
		return StateRequested, nil
	}
	return StateFree, nil
}
