package domain

import "time"

// Activity is an append-only audit entry about a proposal or an investor.
type Activity struct {
	ID         string         `json:"id"`
	TargetType string         `json:"targetType"`
	TargetID   string         `json:"targetId"`
	ActorID    string         `json:"actorId,omitempty"`
	ActionType string         `json:"actionType"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Channel is the pub/sub channel activity for the target is published on.
func (a Activity) Channel() string {
	return a.TargetType + ":" + a.TargetID
}
