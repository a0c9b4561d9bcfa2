package model

import "time"

// Deactivation blocks a slot from being booked or requested.
type Deactivation struct {
	ID            int64     `gorm:"primaryKey" json:"-"`
	Day           string    `gorm:"size:16;not null;uniqueIndex:idx_deactivations_slot" json:"day"`
	Time          string    `gorm:"size:16;not null;uniqueIndex:idx_deactivations_slot" json:"time"`
	RoomName      string    `gorm:"size:128;not null;uniqueIndex:idx_deactivations_slot;index" json:"-"`
	DeactivatedBy string    `gorm:"size:64;not null" json:"deactivated_by"`
	CreatedAt     time.Time `gorm:"not null" json:"-"`
}

// Booking is a confirmed, exclusive hold on a slot.
type Booking struct {
	ID          int64     `gorm:"primaryKey" json:"-"`
	Day         string    `gorm:"size:16;not null;uniqueIndex:idx_bookings_slot" json:"day"`
	Time        string    `gorm:"size:16;not null;uniqueIndex:idx_bookings_slot" json:"time"`
	RoomName    string    `gorm:"size:128;not null;uniqueIndex:idx_bookings_slot;index" json:"-"`
	Username    string    `gorm:"size:64;not null;index" json:"username"`
	Description string    `gorm:"size:512" json:"description"`
	CreatedAt   time.Time `gorm:"not null" json:"-"`
}

// Request is a pending claim on a slot awaiting an admin decision.
// Several requests for the same slot may exist; approval removes the rest.
type Request struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	Username    string    `gorm:"size:64;not null;index" json:"username"`
	Day         string    `gorm:"size:16;not null;index:idx_requests_slot" json:"day"`
	Time        string    `gorm:"size:16;not null;index:idx_requests_slot" json:"time"`
	RoomName    string    `gorm:"size:128;not null;index:idx_requests_slot" json:"room_name"`
	Description string    `gorm:"size:512;not null" json:"description"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}
