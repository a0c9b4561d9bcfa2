package store

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"lab-booking-backend/internal/model"
)

// UpsertSubscription stores the subscription, rebinding an existing
// endpoint to the new keys and owner.
func (s *gormStore) UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "username"}),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).Where("endpoint = ?", endpoint).First(&sub).Error; err != nil {
		return nil, mapErr(err)
	}
	return &sub, nil
}

// DeleteSubscription removes the endpoint. An empty username skips the
// owner check, which the notification worker uses for expired endpoints.
func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint, username string) error {
	q := s.db.WithContext(ctx).Where("endpoint = ?", endpoint)
	if username != "" {
		q = q.Where("username = ?", username)
	}
	res := q.Delete(&model.PushSubscription{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete subscription: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAdminSubscriptions returns the subscriptions owned by admins.
func (s *gormStore) ListAdminSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	err := s.db.WithContext(ctx).
		Joins("JOIN users ON users.username = push_subscriptions.username").
		Where("users.role = ?", model.RoleAdmin).
		Find(&subs).Error
	return subs, err
}
