package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexusholdings/nexus/internal/domain"
	"github.com/nexusholdings/nexus/internal/usecase"
	"github.com/nexusholdings/nexus/internal/utils"
)

const defaultActivityTimeout = 5 * time.Second

// ActivityService persists and publishes audit entries in the background.
type ActivityService struct {
	repo      usecase.ActivityRepository
	publisher Publisher
	timeout   time.Duration
	now       func() time.Time
	pending   sync.WaitGroup
}

func NewActivityService(repo usecase.ActivityRepository, publisher Publisher, timeout time.Duration) *ActivityService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if timeout <= 0 {
		timeout = defaultActivityTimeout
	}
	return &ActivityService{
		repo:      repo,
		publisher: publisher,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Log returns immediately. Failures are logged and never reach the caller.
func (s *ActivityService) Log(ctx context.Context, activity domain.Activity) {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = s.now().UTC()
	}

	detached := context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(detached, s.timeout)
		defer cancel()
		s.write(ctx, activity)
	}()
}

func (s *ActivityService) write(ctx context.Context, activity domain.Activity) {
	ctx, span := tracer.Start(ctx, "Activity.Service.Log")
	defer span.End()

	if err := s.repo.Append(ctx, activity); err != nil {
		span.RecordError(err)
		utils.Error("failed to persist activity",
			utils.String("target", activity.Channel()),
			utils.String("action", activity.ActionType),
			utils.ErrorField(err),
		)
		return
	}

	if err := s.publisher.Publish(ctx, activity); err != nil {
		span.RecordError(err)
		utils.Warn("failed to publish activity",
			utils.String("target", activity.Channel()),
			utils.String("action", activity.ActionType),
			utils.ErrorField(err),
		)
	}
}

// Wait blocks until every pending entry has been written.
func (s *ActivityService) Wait() {
	s.pending.Wait()
}
