package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nexusholdings/nexus/internal/domain"
	"github.com/nexusholdings/nexus/internal/infra/database/models"
)

type ActivityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

func (r *ActivityRepository) Append(ctx context.Context, activity domain.Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now()
	}

	row := models.Activity{
		ID:         activity.ID,
		TargetType: activity.TargetType,
		TargetID:   activity.TargetID,
		ActorID:    activity.ActorID,
		ActionType: activity.ActionType,
		Details:    activity.Details,
		CreatedAt:  activity.CreatedAt.UTC(),
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *ActivityRepository) ListByTarget(ctx context.Context, targetType, targetID string, limit int) ([]domain.Activity, error) {
	var rows []models.Activity
	err := r.db.WithContext(ctx).
		Where("target_type = ? AND target_id = ?", targetType, targetID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	activities := make([]domain.Activity, 0, len(rows))
	for _, row := range rows {
		activities = append(activities, domain.Activity{
			ID:         row.ID,
			TargetType: row.TargetType,
			TargetID:   row.TargetID,
			ActorID:    row.ActorID,
			ActionType: row.ActionType,
			Details:    row.Details,
			CreatedAt:  row.CreatedAt,
		})
	}
	return activities, nil
}
