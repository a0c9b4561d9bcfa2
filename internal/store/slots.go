package store

import (
	"context"
	"fmt"

	"lab-booking-backend/internal/model"
)

func (s *gormStore) FindDeactivation(ctx context.Context, key SlotKey) (*model.Deactivation, error) {
	var d model.Deactivation
	if err := s.db.WithContext(ctx).Where(key.cond()).First(&d).Error; err != nil {
		return nil, mapErr(err)
	}
	return &d, nil
}

func (s *gormStore) CreateDeactivation(ctx context.Context, d *model.Deactivation) error {
	if err := s.db.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("failed to create deactivation: %w", mapErr(err))
	}
	return nil
}

func (s *gormStore) DeleteDeactivation(ctx context.Context, key SlotKey) error {
	if err := s.db.WithContext(ctx).Where(key.cond()).Delete(&model.Deactivation{}).Error; err != nil {
		return fmt.Errorf("failed to delete deactivation: %w", err)
	}
	return nil
}

func (s *gormStore) ListDeactivationsByRoom(ctx context.Context, room string) ([]model.Deactivation, error) {
	var out []model.Deactivation
	err := s.db.WithContext(ctx).
		Where("room_name = ?", room).
		Order("day").Order("time").
		Find(&out).Error
	return out, err
}

func (s *gormStore) FindBooking(ctx context.Context, key SlotKey) (*model.Booking, error) {
	var b model.Booking
	if err := s.db.WithContext(ctx).Where(key.cond()).First(&b).Error; err != nil {
		return nil, mapErr(err)
	}
	return &b, nil
}

func (s *gormStore) CreateBooking(ctx context.Context, b *model.Booking) error {
	if err := s.db.WithContext(ctx).Create(b).Error; err != nil {
		return fmt.Errorf("failed to create booking: %w", mapErr(err))
	}
	return nil
}

func (s *gormStore) DeleteBooking(ctx context.Context, key SlotKey) error {
	if err := s.db.WithContext(ctx).Where(key.cond()).Delete(&model.Booking{}).Error; err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	return nil
}

func (s *gormStore) ListBookingsByRoom(ctx context.Context, room string) ([]model.Booking, error) {
	var out []model.Booking
	err := s.db.WithContext(ctx).
		Where("room_name = ?", room).
		Order("day").Order("time").
		Find(&out).Error
	return out, err
}

func (s *gormStore) FindRequest(ctx context.Context, id int64) (*model.Request, error) {
	var r model.Request
	if err := s.db.WithContext(ctx).First(&r, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

// FindRequestForSlot returns the oldest pending request for the key.
func (s *gormStore) FindRequestForSlot(ctx context.Context, key SlotKey) (*model.Request, error) {
	var r model.Request
	if err := s.db.WithContext(ctx).Where(key.cond()).Order("id").First(&r).Error; err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

func (s *gormStore) FindUserRequest(ctx context.Context, username string, key SlotKey) (*model.Request, error) {
	var r model.Request
	err := s.db.WithContext(ctx).
		Where(key.cond()).
		Where("username = ?", username).
		Order("id").
		First(&r).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

func (s *gormStore) CreateRequest(ctx context.Context, r *model.Request) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("failed to create request: %w", mapErr(err))
	}
	return nil
}

func (s *gormStore) DeleteRequest(ctx context.Context, id int64) error {
	if err := s.db.WithContext(ctx).Delete(&model.Request{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete request %d: %w", id, err)
	}
	return nil
}

func (s *gormStore) DeleteUserRequests(ctx context.Context, username string, key SlotKey) (int64, error) {
	res := s.db.WithContext(ctx).
		Where(key.cond()).
		Where("username = ?", username).
		Delete(&model.Request{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete requests of %s: %w", username, res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteCompetingRequests removes every request for the key except keepID
// and reports how many were removed.
func (s *gormStore) DeleteCompetingRequests(ctx context.Context, key SlotKey, keepID int64) (int64, error) {
	res := s.db.WithContext(ctx).
		Where(key.cond()).
		Where("id <> ?", keepID).
		Delete(&model.Request{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete competing requests: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *gormStore) CountRequests(ctx context.Context, key SlotKey) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Request{}).Where(key.cond()).Count(&n).Error
	return n, err
}

// ListRequestsByRoom returns the room's pending requests ordered by day, time and id.
func (s *gormStore) ListRequestsByRoom(ctx context.Context, room string) ([]model.Request, error) {
	var out []model.Request
	err := s.db.WithContext(ctx).
		Where("room_name = ?", room).
		Order("day").Order("time").Order("id").
		Find(&out).Error
	return out, err
}
