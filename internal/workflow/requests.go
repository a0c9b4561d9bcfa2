package workflow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"lab-booking-backend/internal/model"
	"lab-booking-backend/internal/store"
)

// Decision actions accepted by DecideRequest.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// ToggleRequest submits a request for a free slot, or withdraws actor's own
// pending request for it.
func (e *Engine) ToggleRequest(ctx context.Context, actor Actor, key SlotKey, description string) (Outcome, error) {
	if err := validateActor(actor); err != nil {
		return Outcome{}, e.finish("toggle_request", err)
	}
	if err := validateKey(key); err != nil {
		return Outcome{}, e.finish("toggle_request", err)
	}
	if !validDescription(description) {
		return Outcome{}, e.finish("toggle_request", errDescription())
	}

	var (
		out     Outcome
		created *model.Request
	)
	err := e.store.Transact(ctx, func(tx store.Store) error {
		if err := checkRequestable(ctx, tx, key); err != nil {
			return err
		}

		mine, err := lookup(tx.FindUserRequest(ctx, actor.Username, key))
		if err != nil {
			return err
		}
		if mine != nil {
			if _, err := tx.DeleteUserRequests(ctx, actor.Username, key); err != nil {
				return err
			}
			out.Message = "Request cancelled"
			out.State, err = deriveState(ctx, tx, key)
			return err
		}

		req, err := submitRequest(ctx, tx, actor, key, description)
		if err != nil {
			return err
		}
		created = req
		out.Message = "Request submitted"
		out.State = StateRequested
		return nil
	})
	if err != nil {
		return Outcome{}, e.finish("toggle_request", err)
	}
	if created != nil {
		e.notify(*created)
	}
	return out, e.finish("toggle_request", nil)
}

// checkRequestable fails when the slot is deactivated or booked.
func checkRequestable(ctx context.Context, tx store.Store, key SlotKey) error {
	d, err := lookup(tx.FindDeactivation(ctx, key))
	if err != nil {
		return err
	}
	if d != nil {
		return ErrSlotDeactivated
	}
	b, err := lookup(tx.FindBooking(ctx, key))
	if err != nil {
		return err
	}
	if b != nil {
		return ErrSlotBooked
	}
	return nil
}

// submitRequest inserts a request unless someone else already holds one.
func submitRequest(ctx context.Context, tx store.Store, actor Actor, key SlotKey, description string) (*model.Request, error) {
	n, err := tx.CountRequests(ctx, key)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrSlotContested
	}
	req := &model.Request{
		Username:    actor.Username,
		Day:         key.Day,
		Time:        key.Time,
		RoomName:    key.Room,
		Description: description,
	}
	if err := tx.CreateRequest(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (e *Engine) notify(req model.Request) {
	if e.notifier == nil {
		return
	}
	e.notifier.NotifyRequestCreated(req)
}

// CancelRequest withdraws actor's pending request for the slot.
func (e *Engine) CancelRequest(ctx context.Context, actor Actor, key SlotKey) (Outcome, error) {
	if err := validateActor(actor); err != nil {
		return Outcome{}, e.finish("cancel_request", err)
	}
	if err := validateKey(key); err != nil {
		return Outcome{}, e.finish("cancel_request", err)
	}

	var out Outcome
	err := e.store.Transact(ctx, func(tx store.Store) error {
		n, err := tx.DeleteUserRequests(ctx, actor.Username, key)
		if err != nil {
			return err
		}
		if n == 0 {
			return newError(KindNotFound, "Request not found or not authorized to cancel")
		}
		out.Message = "Request cancelled successfully"
		out.State, err = deriveState(ctx, tx, key)
		return err
	})
	if err != nil {
		return Outcome{}, e.finish("cancel_request", err)
	}
	return out, e.finish("cancel_request", nil)
}

// Decision is the result of an admin decision on a request.
type Decision struct {
	Message      string        `json:"message"`
	AutoRejected int64         `json:"auto_rejected"`
	Request      model.Request `json:"request"`
}

// DecideRequest approves or rejects a pending request. Approval books the
// slot for the requester and removes every other request for the slot, all
// in one transaction.
func (e *Engine) DecideRequest(ctx context.Context, actor Actor, requestID int64, action string) (Decision, error) {
	if err := validateActor(actor); err != nil {
		return Decision{}, e.finish("decide_request", err)
	}
	if action != ActionApprove && action != ActionReject {
		return Decision{}, e.finish("decide_request", newError(KindInvalidInput, "Invalid action"))
	}

	var dec Decision
	err := e.store.Transact(ctx, func(tx store.Store) error {
		req, err := lookup(tx.FindRequest(ctx, requestID))
		if err != nil {
			return err
		}
		if req == nil {
			return newError(KindNotFound, "Request not found")
		}
		dec.Request = *req

		if action == ActionReject {
			if err := tx.DeleteRequest(ctx, req.ID); err != nil {
				return err
			}
			dec.Message = "Request rejected"
			return nil
		}

		key := SlotKey{Day: req.Day, Time: req.Time, Room: req.RoomName}
		b, err := lookup(tx.FindBooking(ctx, key))
		if err != nil {
			return err
		}
		if b != nil {
			return newError(KindSlotTaken, "Slot is already booked")
		}
		err = tx.CreateBooking(ctx, &model.Booking{
			Day: req.Day, Time: req.Time, RoomName: req.RoomName,
			Username: req.Username, Description: req.Description,
		})
		if errors.Is(err, store.ErrDuplicate) {
			return newError(KindSlotTaken, "Slot is already booked")
		}
		if err != nil {
			return err
		}
		dec.AutoRejected, err = tx.DeleteCompetingRequests(ctx, key, req.ID)
		if err != nil {
			return err
		}
		if err := tx.DeleteRequest(ctx, req.ID); err != nil {
			return err
		}
		dec.Message = approvalMessage(dec.AutoRejected)
		return nil
	})
	if err != nil {
		return Decision{}, e.finish("decide_request", err)
	}
	e.logger.Info(dec.Message,
		zap.String("by", actor.Username),
		zap.Int64("request_id", requestID),
		zap.String("action", action),
		zap.Int64("auto_rejected", dec.AutoRejected),
	)
	return dec, e.finish("decide_request", nil)
}

func approvalMessage(autoRejected int64) string {
	if autoRejected == 0 {
		return "Request approved and slot booked"
	}
	return fmt.Sprintf("Request approved and %d other request(s) for this slot were automatically rejected", autoRejected)
}

// PendingRequest is a request annotated with how many other requests share
// its day and time.
type PendingRequest struct {
	model.Request
	CompetingRequests int `json:"competing_requests"`
}

// ListRequests returns the room's pending requests ordered by day, time and id.
func (e *Engine) ListRequests(ctx context.Context, room string) ([]PendingRequest, error) {
	if room == "" {
		return nil, e.finish("list_requests", newError(KindInvalidInput, "Room name is required"))
	}
	reqs, err := e.store.ListRequestsByRoom(ctx, room)
	if err != nil {
		return nil, e.finish("list_requests", err)
	}

	type dayTime struct{ day, time string }
	counts := make(map[dayTime]int, len(reqs))
	for _, r := range reqs {
		counts[dayTime{r.Day, r.Time}]++
	}
	out := make([]PendingRequest, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, PendingRequest{
			Request:           r,
			CompetingRequests: counts[dayTime{r.Day, r.Time}] - 1,
		})
	}
	return out, e.finish("list_requests", nil)
}

// SlotTime is one entry of a batch request.
type SlotTime struct {
	Day  string `json:"day"`
	Time string `json:"time"`
}

// BatchOutcome reports what happened to one entry of a batch request.
type BatchOutcome struct {
	Day     string `json:"day"`
	Time    string `json:"time"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RequestSlots submits a request for each slot in room independently. It
// never cancels an existing request and a failing entry does not stop the
// rest.
func (e *Engine) RequestSlots(ctx context.Context, actor Actor, room string, slots []SlotTime, description string) ([]BatchOutcome, error) {
	if err := validateActor(actor); err != nil {
		return nil, e.finish("request_slots", err)
	}
	if room == "" || len(slots) == 0 {
		return nil, e.finish("request_slots", newError(KindInvalidInput, "Missing required fields"))
	}
	if !validDescription(description) {
		return nil, e.finish("request_slots", errDescription())
	}

	results := make([]BatchOutcome, 0, len(slots))
	var created []model.Request
	for _, slot := range slots {
		res := BatchOutcome{Day: slot.Day, Time: slot.Time}
		req, err := e.requestOne(ctx, actor, SlotKey{Day: slot.Day, Time: slot.Time, Room: room}, description)
		if err != nil {
			err = asError(err)
			res.Error = err.(*Error).Message
		} else {
			res.Success = true
			res.Message = "Request submitted"
			created = append(created, *req)
		}
		results = append(results, res)
	}
	for _, req := range created {
		e.notify(req)
	}
	return results, e.finish("request_slots", nil)
}

func (e *Engine) requestOne(ctx context.Context, actor Actor, key SlotKey, description string) (*model.Request, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	var created *model.Request
	err := e.store.Transact(ctx, func(tx store.Store) error {
		if err := checkRequestable(ctx, tx, key); err != nil {
			return err
		}
		mine, err := lookup(tx.FindUserRequest(ctx, actor.Username, key))
		if err != nil {
			return err
		}
		if mine != nil {
			return newError(KindSlotContested, "Request already pending")
		}
		created, err = submitRequest(ctx, tx, actor, key, description)
		return err
	})
	if err != nil {
		e.logger.Debug("batch entry rejected", zap.Any("slot", key), zap.Error(err))
		return nil, err
	}
	return created, nil
}
