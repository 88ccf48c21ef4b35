package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"contracts-rag/internal/model"
)

type IngestEventRepository struct {
	db *gorm.DB
}

func NewIngestEventRepository(db *gorm.DB) *IngestEventRepository {
	return &IngestEventRepository{db: db}
}

func (r *IngestEventRepository) Create(ctx context.Context, event *model.IngestEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("create ingest event failed: %w", err)
	}
	return nil
}

// ListByUserID returns the user's most recent events, newest first.
func (r *IngestEventRepository) ListByUserID(ctx context.Context, userID uint, limit int) ([]model.IngestEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}

	var events []model.IngestEvent
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("occurred_at DESC, id DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list ingest events failed: %w", err)
	}
	return events, nil
}
