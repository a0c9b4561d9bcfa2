package workflow

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"lab-booking-backend/internal/model"
	"lab-booking-backend/internal/store"
)

// ToggleDeactivation flips the deactivation of a slot. Bookings and
// requests on the slot are left untouched.
func (e *Engine) ToggleDeactivation(ctx context.Context, actor Actor, key SlotKey) (Outcome, error) {
	if err := validateActor(actor); err != nil {
		return Outcome{}, e.finish("toggle_deactivation", err)
	}
	if err := validateKey(key); err != nil {
		return Outcome{}, e.finish("toggle_deactivation", err)
	}

	var out Outcome
	err := e.store.Transact(ctx, func(tx store.Store) error {
		d, err := lookup(tx.FindDeactivation(ctx, key))
		if err != nil {
			return err
		}
		if d != nil {
			if err := tx.DeleteDeactivation(ctx, key); err != nil {
				return err
			}
			out.Message = "Slot activated successfully"
			out.State, err = deriveState(ctx, tx, key)
			return err
		}

		err = tx.CreateDeactivation(ctx, &model.Deactivation{
			Day: key.Day, Time: key.Time, RoomName: key.Room,
			DeactivatedBy: actor.Username,
		})
		if err != nil {
			return err
		}
		out.Message = "Slot deactivated successfully"
		out.State = StateDeactivated
		return nil
	})
	if errors.Is(err, store.ErrDuplicate) {
		// A concurrent toggle deactivated the slot first.
		out, err = Outcome{Message: "Slot deactivated successfully", State: StateDeactivated}, nil
	}
	if err != nil {
		return Outcome{}, e.finish("toggle_deactivation", err)
	}
	e.logger.Info(out.Message, zap.String("by", actor.Username), zap.Any("slot", key))
	return out, e.finish("toggle_deactivation", nil)
}

// ToggleBooking books a free slot for actor, or releases actor's own booking.
func (e *Engine) ToggleBooking(ctx context.Context, actor Actor, key SlotKey) (Outcome, error) {
	if err := validateActor(actor); err != nil {
		return Outcome{}, e.finish("toggle_booking", err)
	}
	if err := validateKey(key); err != nil {
		return Outcome{}, e.finish("toggle_booking", err)
	}

	var out Outcome
	err := e.store.Transact(ctx, func(tx store.Store) error {
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
		switch {
		case b == nil:
			err := tx.CreateBooking(ctx, &model.Booking{
				Day: key.Day, Time: key.Time, RoomName: key.Room,
				Username: actor.Username,
			})
			if errors.Is(err, store.ErrDuplicate) {
				return ErrSlotTaken
			}
			if err != nil {
				return err
			}
			out.Message = "Slot booked"
		case b.Username == actor.Username:
			if err := tx.DeleteBooking(ctx, key); err != nil {
				return err
			}
			out.Message = "Booking removed"
		default:
			return ErrSlotTaken
		}
		out.State, err = deriveState(ctx, tx, key)
		return err
	})
	if err != nil {
		return Outcome{}, e.finish("toggle_booking", err)
	}
	return out, e.finish("toggle_booking", nil)
}

// RemoveBooking deletes whatever booking holds the slot.
func (e *Engine) RemoveBooking(ctx context.Context, actor Actor, key SlotKey) (Outcome, error) {
	if err := validateActor(actor); err != nil {
		return Outcome{}, e.finish("remove_booking", err)
	}
	if err := validateKey(key); err != nil {
		return Outcome{}, e.finish("remove_booking", err)
	}

	var out Outcome
	err := e.store.Transact(ctx, func(tx store.Store) error {
		b, err := lookup(tx.FindBooking(ctx, key))
		if err != nil {
			return err
		}
		if b == nil {
			return newError(KindNotFound, "No booking found for this slot")
		}
		if err := tx.DeleteBooking(ctx, key); err != nil {
			return err
		}
		out.Message = "Booking removed successfully"
		out.State, err = deriveState(ctx, tx, key)
		return err
	})
	if err != nil {
		return Outcome{}, e.finish("remove_booking", err)
	}
	e.logger.Info("booking removed", zap.String("by", actor.Username), zap.Any("slot", key))
	return out, e.finish("remove_booking", nil)
}

// RoomSchedule is the booked and deactivated slots of one room.
type RoomSchedule struct {
	Bookings      []model.Booking      `json:"bookings"`
	Deactivations []model.Deactivation `json:"deactivations"`
}

// FetchBookings returns the room's bookings and deactivations.
func (e *Engine) FetchBookings(ctx context.Context, room string) (RoomSchedule, error) {
	if room == "" {
		return RoomSchedule{}, e.finish("fetch_bookings", newError(KindInvalidInput, "Room name is required"))
	}
	bookings, err := e.store.ListBookingsByRoom(ctx, room)
	if err != nil {
		return RoomSchedule{}, e.finish("fetch_bookings", err)
	}
	deacts, err := e.store.ListDeactivationsByRoom(ctx, room)
	if err != nil {
		return RoomSchedule{}, e.finish("fetch_bookings", err)
	}
	if bookings == nil {
		bookings = []model.Booking{}
	}
	if deacts == nil {
		deacts = []model.Deactivation{}
	}
	return RoomSchedule{Bookings: bookings, Deactivations: deacts}, e.finish("fetch_bookings", nil)
}
