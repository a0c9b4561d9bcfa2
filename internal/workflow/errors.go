package workflow

import "errors"

// Kind classifies a workflow failure.
type Kind int

const (
	KindInvalidInput Kind = iota + 1
	KindSlotDeactivated
	KindSlotBooked
	KindSlotTaken
	KindSlotContested
	KindNotFound
	KindUnauthorized
	KindStorageFailure
)

var kindNames = map[Kind]string{
	KindInvalidInput:    "invalid_input",
	KindSlotDeactivated: "slot_deactivated",
	KindSlotBooked:      "slot_booked",
	KindSlotTaken:       "slot_taken",
	KindSlotContested:   "slot_contested",
	KindNotFound:        "not_found",
	KindUnauthorized:    "unauthorized",
	KindStorageFailure:  "storage_failure",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error is returned by every Engine operation that fails. Message is safe
// to show to the caller; Err keeps the underlying cause, if any.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrSlotTaken)
// works whatever the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidInput    = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	ErrSlotDeactivated = &Error{Kind: KindSlotDeactivated, Message: "Slot is deactivated"}
	ErrSlotBooked      = &Error{Kind: KindSlotBooked, Message: "Slot already booked"}
	ErrSlotTaken       = &Error{Kind: KindSlotTaken, Message: "Slot booked by another user"}
	ErrSlotContested   = &Error{Kind: KindSlotContested, Message: "Slot already has a pending request from another user"}
	ErrNotFound        = &Error{Kind: KindNotFound, Message: "not found"}
	ErrUnauthorized    = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrStorageFailure  = &Error{Kind: KindStorageFailure, Message: "Storage failure"}
)

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func storageFailure(err error) *Error {
	return &Error{Kind: KindStorageFailure, Message: ErrStorageFailure.Message, Err: err}
}

// KindOf returns the kind carried by err, or KindStorageFailure for errors
// that did not originate in the engine.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorageFailure
}

// asError passes workflow errors through and classifies anything else as
// a storage failure.
func asError(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return storageFailure(err)
}
