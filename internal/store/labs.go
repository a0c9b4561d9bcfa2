package store

import (
	"context"
	"fmt"

	"lab-booking-backend/internal/model"
)

func (s *gormStore) ListLabs(ctx context.Context) ([]model.Lab, error) {
	var labs []model.Lab
	err := s.db.WithContext(ctx).Order("name").Find(&labs).Error
	return labs, err
}

func (s *gormStore) GetLab(ctx context.Context, name string) (*model.Lab, error) {
	var lab model.Lab
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&lab).Error; err != nil {
		return nil, mapErr(err)
	}
	return &lab, nil
}

func (s *gormStore) CreateLab(ctx context.Context, lab *model.Lab) error {
	if err := s.db.WithContext(ctx).Create(lab).Error; err != nil {
		return fmt.Errorf("failed to create lab %s: %w", lab.Name, mapErr(err))
	}
	return nil
}
