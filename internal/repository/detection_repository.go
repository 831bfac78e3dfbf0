package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"dermascan-gateway/internal/model"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type DetectionRepository struct {
	db *gorm.DB
}

func NewDetectionRepository(db *gorm.DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

func (r *DetectionRepository) Create(ctx context.Context, detection *model.Detection) error {
	if err := r.db.WithContext(ctx).Create(detection).Error; err != nil {
		return fmt.Errorf("create detection failed: %w", err)
	}
	return nil
}

// ListRecent returns the newest detections first.
func (r *DetectionRepository) ListRecent(ctx context.Context, limit int) ([]model.Detection, error) {
	limit = normalizeLimit(limit)

	var detections []model.Detection
	if err := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Limit(limit).Find(&detections).Error; err != nil {
		return nil, fmt.Errorf("list detections failed: %w", err)
	}
	return detections, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
