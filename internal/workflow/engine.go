// Package workflow owns every state transition of a (day, time, room) slot:
// booking, requesting, approval, rejection and deactivation.
package workflow

import (
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"lab-booking-backend/internal/model"
	"lab-booking-backend/internal/store"
)

// SlotKey identifies a bookable unit.
type SlotKey = store.SlotKey

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID   int64
	Username string
	Role     model.Role
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool { return a.Role == model.RoleAdmin }

// Notifier is told about new requests after they are committed. It must
// not block.
type Notifier interface {
	NotifyRequestCreated(req model.Request)
}

// Recorder counts operation outcomes.
type Recorder interface {
	ObserveOperation(op, result string)
}

// Outcome reports a successful transition and the slot state it left.
type Outcome struct {
	Message string `json:"message"`
	State   State  `json:"state"`
}

// Engine applies slot transitions against the store.
type Engine struct {
	store    store.Store
	notifier Notifier
	recorder Recorder
	logger   *zap.Logger
}

// NewEngine creates an engine. notifier and recorder may be nil.
func NewEngine(s store.Store, notifier Notifier, recorder Recorder, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:    s,
		notifier: notifier,
		recorder: recorder,
		logger:   logger.Named("workflow"),
	}
}

// finish records the outcome of op and normalises err.
func (e *Engine) finish(op string, err error) error {
	err = asError(err)
	result := "ok"
	if err != nil {
		result = KindOf(err).String()
		if KindOf(err) == KindStorageFailure {
			e.logger.Error("operation failed", zap.String("op", op), zap.Error(err))
		}
	}
	if e.recorder != nil {
		e.recorder.ObserveOperation(op, result)
	}
	return err
}

func validateKey(key SlotKey) error {
	if key.Day == "" || key.Time == "" || key.Room == "" {
		return newError(KindInvalidInput, "Missing required fields")
	}
	return nil
}

func validateActor(actor Actor) error {
	if actor.Username == "" {
		return newError(KindUnauthorized, "Authentication required")
	}
	return nil
}

// validDescription requires at least two characters once surrounding
// whitespace is trimmed.
func validDescription(description string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(description)) >= 2
}

func errDescription() *Error {
	return newError(KindInvalidInput, "Description must contain at least 2 characters")
}

// lookup wraps a store read, treating ErrNotFound as absence.
func lookup[T any](v *T, err error) (*T, error) {
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}
