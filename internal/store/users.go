package store

import (
	"context"
	"fmt"

	"lab-booking-backend/internal/model"
)

func (s *gormStore) CreateUser(ctx context.Context, u *model.User) error {
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("failed to create user %s: %w", u.Username, mapErr(err))
	}
	return nil
}

func (s *gormStore) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (s *gormStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (s *gormStore) EmailExists(ctx context.Context, email string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetSessionToken replaces the user's live session.
func (s *gormStore) SetSessionToken(ctx context.Context, userID int64, tokenHash string) error {
	res := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Update("session_token", tokenHash)
	if res.Error != nil {
		return fmt.Errorf("failed to set session for user %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearSessionToken reports whether a session with the hash existed.
func (s *gormStore) ClearSessionToken(ctx context.Context, tokenHash string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.User{}).
		Where("session_token = ?", tokenHash).
		Update("session_token", nil)
	if res.Error != nil {
		return false, fmt.Errorf("failed to clear session: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// UpdatePassword stores the new hash and ends the live session.
func (s *gormStore) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	res := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Updates(map[string]any{
		"password_hash": passwordHash,
		"session_token": nil,
	})
	if res.Error != nil {
		return fmt.Errorf("failed to update password for user %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) ListAdminEmails(ctx context.Context) ([]string, error) {
	var emails []string
	err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("role = ? AND email <> ''", model.RoleAdmin).
		Order("id").
		Pluck("email", &emails).Error
	return emails, err
}
