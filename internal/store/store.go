package store

import (
	"context"

	"gorm.io/gorm"

	"lab-booking-backend/internal/model"
)

// SlotStore reads and writes the three slot registries.
type SlotStore interface {
	FindDeactivation(ctx context.Context, key SlotKey) (*model.Deactivation, error)
	CreateDeactivation(ctx context.Context, d *model.Deactivation) error
	DeleteDeactivation(ctx context.Context, key SlotKey) error
	ListDeactivationsByRoom(ctx context.Context, room string) ([]model.Deactivation, error)

	FindBooking(ctx context.Context, key SlotKey) (*model.Booking, error)
	CreateBooking(ctx context.Context, b *model.Booking) error
	DeleteBooking(ctx context.Context, key SlotKey) error
	ListBookingsByRoom(ctx context.Context, room string) ([]model.Booking, error)

	FindRequest(ctx context.Context, id int64) (*model.Request, error)
	FindRequestForSlot(ctx context.Context, key SlotKey) (*model.Request, error)
	FindUserRequest(ctx context.Context, username string, key SlotKey) (*model.Request, error)
	CreateRequest(ctx context.Context, r *model.Request) error
	DeleteRequest(ctx context.Context, id int64) error
	DeleteUserRequests(ctx context.Context, username string, key SlotKey) (int64, error)
	DeleteCompetingRequests(ctx context.Context, key SlotKey, keepID int64) (int64, error)
	CountRequests(ctx context.Context, key SlotKey) (int64, error)
	ListRequestsByRoom(ctx context.Context, room string) ([]model.Request, error)
}

// UserStore reads and writes accounts and their session token.
type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	SetSessionToken(ctx context.Context, userID int64, tokenHash string) error
	ClearSessionToken(ctx context.Context, tokenHash string) (bool, error)
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
	ListAdminEmails(ctx context.Context) ([]string, error)
}

// LabStore reads and writes labs.
type LabStore interface {
	ListLabs(ctx context.Context) ([]model.Lab, error)
	GetLab(ctx context.Context, name string) (*model.Lab, error)
	CreateLab(ctx context.Context, lab *model.Lab) error
}

// SubscriptionStore reads and writes browser push subscriptions.
type SubscriptionStore interface {
	UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint, username string) error
	ListAdminSubscriptions(ctx context.Context) ([]model.PushSubscription, error)
}

// Store defines the interface for all database operations.
type Store interface {
	SlotStore
	UserStore
	LabStore
	SubscriptionStore

	// Transact runs fn inside one database transaction. The Store passed to
	// fn is bound to the transaction; returning an error rolls it back.
	Transact(ctx context.Context, fn func(tx Store) error) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// Transact implements Store.
func (s *gormStore) Transact(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}
