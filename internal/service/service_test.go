package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/nexusholdings/nexus/internal/domain"
	"github.com/nexusholdings/nexus/internal/utils"
)

func TestMain(m *testing.M) {
	utils.SetLogger(zap.NewNop())
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/redis/go-redis/v9/internal/pool.(*ConnPool).reaper"),
	)
}

func TestAuthServiceRoundTrip(t *testing.T) {
	auth := NewAuthService("secret", "nexus", time.Hour)

	token, err := auth.IssueToken("user-1")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	result, err := auth.AuthJwt(context.Background(), token)
	if err != nil {
		t.Fatalf("auth failed: %v", err)
	}
	if result.UserID != "user-1" {
		t.Fatalf("unexpected user %q", result.UserID)
	}
}

func TestAuthServiceRejectsForeignIssuer(t *testing.T) {
	foreign := NewAuthService("secret", "someone-else", time.Hour)
	token, err := foreign.IssueToken("user-1")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	auth := NewAuthService("secret", "nexus", time.Hour)
	if _, err := auth.AuthJwt(context.Background(), token); err == nil {
		t.Fatalf("expected issuer mismatch")
	}
	if _, err := auth.AuthJwt(context.Background(), "not-a-token"); err == nil {
		t.Fatalf("expected malformed token error")
	}
	if _, err := auth.IssueToken(""); err == nil {
		t.Fatalf("expected error for empty user")
	}
}

type memoryActivityRepo struct {
	mu      sync.Mutex
	entries []domain.Activity
	err     error
}

func (r *memoryActivityRepo) Append(ctx context.Context, activity domain.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, activity)
	return nil
}

func (r *memoryActivityRepo) ListByTarget(ctx context.Context, targetType, targetID string, limit int) ([]domain.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Activity(nil), r.entries...), nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []domain.Activity
	err       error
}

func (p *recordingPublisher) Publish(ctx context.Context, activity domain.Activity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, activity)
	return p.err
}

func TestActivityServicePersistsAndPublishes(t *testing.T) {
	repo := &memoryActivityRepo{}
	publisher := &recordingPublisher{}
	svc := NewActivityService(repo, publisher, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	svc.Log(ctx, domain.Activity{
		TargetType: domain.ActivityTargetProposal,
		TargetID:   "p1",
		ActorID:    "u1",
		ActionType: domain.ActivityVoted,
	})
	cancel()
	svc.Wait()

	if len(repo.entries) != 1 || len(publisher.published) != 1 {
		t.Fatalf("expected one persisted and one published entry, got %d/%d", len(repo.entries), len(publisher.published))
	}
	entry := repo.entries[0]
	if entry.ID == "" || entry.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp to be assigned, got %+v", entry)
	}
	if publisher.published[0].Channel() != "proposal:p1" {
		t.Fatalf("unexpected channel %q", publisher.published[0].Channel())
	}
}

func TestActivityServiceSwallowsFailures(t *testing.T) {
	repo := &memoryActivityRepo{err: errors.New("db down")}
	publisher := &recordingPublisher{}
	svc := NewActivityService(repo, publisher, time.Second)

	svc.Log(context.Background(), domain.Activity{TargetType: domain.ActivityTargetInvestor, TargetID: "u1", ActionType: domain.ActivityInvestmentRecorded})
	svc.Wait()

	if len(publisher.published) != 0 {
		t.Fatalf("expected nothing published when persistence fails")
	}

	repo.err = nil
	publisher.err = errors.New("broker down")
	svc.Log(context.Background(), domain.Activity{TargetType: domain.ActivityTargetInvestor, TargetID: "u1", ActionType: domain.ActivityInvestmentRecorded})
	svc.Wait()

	if len(repo.entries) != 1 {
		t.Fatalf("expected entry persisted despite publish failure")
	}
}

func TestSignalServiceRealtimeStops(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	defer rdb.Close()
	signal := NewSignalService(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	input := make(chan Subscription)
	output := make(chan domain.Activity)
	done := make(chan struct{})
	go func() {
		signal.Realtime(ctx, input, output)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("realtime did not stop after cancel")
	}

	done = make(chan struct{})
	go func() {
		signal.Realtime(context.Background(), input, output)
		close(done)
	}()
	close(input)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("realtime did not stop after input closed")
	}
}

func TestSignalServicePublishFailsWithoutRedis(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()

	err := NewSignalService(rdb).Publish(context.Background(), domain.Activity{TargetType: "proposal", TargetID: "p1"})
	if err == nil {
		t.Fatalf("expected publish error")
	}
}

func TestPrefixPatternEscapesGlobs(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"proposal:", "proposal:*"},
		{"proposal:p1", "proposal:p1*"},
		{"proposal:[a-z]", `proposal:\[a-z\]*`},
		{"proposal:*?", `proposal:\*\?*`},
		{`proposal:\`, `proposal:\\*`},
	}
	for _, tt := range tests {
		if got := PrefixPattern(tt.prefix); got != tt.want {
			t.Errorf("PrefixPattern(%q) = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}

func TestSubscriptionEmpty(t *testing.T) {
	if !(Subscription{}).Empty() {
		t.Fatalf("expected zero subscription to be empty")
	}
	if (Subscription{Channels: []string{"investor:u1"}}).Empty() {
		t.Fatalf("expected channel subscription to be non-empty")
	}
}
