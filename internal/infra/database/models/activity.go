package models

import (
	"time"
)

type Activity struct {
	ID         string         `json:"id" gorm:"primaryKey;type:text"`
	TargetType string         `json:"targetType" gorm:"type:text;not null;index:idx_activity_target,priority:1"`
	TargetID   string         `json:"targetId" gorm:"type:text;not null;index:idx_activity_target,priority:2"`
	ActorID    string         `json:"actorId" gorm:"type:text"`
	ActionType string         `json:"actionType" gorm:"type:text;not null"`
	Details    map[string]any `json:"details" gorm:"type:text;serializer:json"`
	CreatedAt  time.Time      `json:"createdAt" gorm:"index"`
}
