package usecase

import (
	"context"

	"github.com/nexusholdings/nexus/internal/domain"
)

type ActivityUsecase struct {
	repo ActivityRepository
}

func NewActivityUsecase(repo ActivityRepository) *ActivityUsecase {
	return &ActivityUsecase{repo: repo}
}

// List returns the newest entries for a target first.
func (uc *ActivityUsecase) List(ctx context.Context, targetType, targetID string, limit int) ([]domain.Activity, error) {
	ctx, span := tracer.Start(ctx, "Activity.Usecase.List")
	defer span.End()

	if targetType != domain.ActivityTargetProposal && targetType != domain.ActivityTargetInvestor {
		return nil, domain.ValidationError{Field: "targetType", Reason: "unrecognized target"}
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return uc.repo.ListByTarget(ctx, targetType, targetID, limit)
}
