package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeliveryStore keeps the delivery history
type DeliveryStore interface {
	RecordDelivery(ctx context.Context, entry *DeliveryLog) error
	ListDeliveries(ctx context.Context, userID uuid.UUID, limit int) ([]DeliveryLog, error)
}

// GormDeliveryStore implements DeliveryStore on gorm
type GormDeliveryStore struct {
	db *gorm.DB
}

func NewGormDeliveryStore(db *gorm.DB) *GormDeliveryStore {
	return &GormDeliveryStore{db: db}
}

func (s *GormDeliveryStore) RecordDelivery(ctx context.Context, entry *DeliveryLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

func (s *GormDeliveryStore) ListDeliveries(ctx context.Context, userID uuid.UUID, limit int) ([]DeliveryLog, error) {
	var out []DeliveryLog
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	return out, nil
}
