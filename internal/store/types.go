package store

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when an insert hits a unique index.
	ErrDuplicate = errors.New("store: duplicate key")
)

// SlotKey identifies a bookable unit.
type SlotKey struct {
	Day  string
	Time string
	Room string
}

// cond matches every registry row for the key.
func (k SlotKey) cond() map[string]any {
	return map[string]any{"day": k.Day, "time": k.Time, "room_name": k.Room}
}

// mapErr translates gorm and driver errors into the store's sentinels.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case isDuplicate(err):
		return errors.Join(ErrDuplicate, err)
	}
	return err
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "duplicate key value") || // postgres
		strings.Contains(msg, "Duplicate entry") // mysql
}
