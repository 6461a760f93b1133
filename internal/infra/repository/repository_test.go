package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nexusholdings/nexus/internal/domain"
	"github.com/nexusholdings/nexus/internal/infra/database"
	"github.com/nexusholdings/nexus/internal/usecase"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.NewSqlite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func seedProposal(t *testing.T, repo *ProposalRepository, id string, status domain.ProposalStatus, voteEndAt *time.Time) {
	t.Helper()
	now := time.Now().UTC()
	err := repo.Create(context.Background(), domain.Proposal{
		ID:           id,
		SubsidiaryID: "sub-1",
		Title:        "Issue new shares",
		Payload:      map[string]any{"shares": float64(1000)},
		Status:       status,
		VoteEndAt:    voteEndAt,
		CreatedBy:    "admin",
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
}

func testVote(proposalID, voterID string, choice domain.VoteChoice, weight float64) domain.Vote {
	return domain.Vote{
		ID:         fmt.Sprintf("%s-%s", proposalID, voterID),
		ProposalID: proposalID,
		VoterID:    voterID,
		Choice:     choice,
		Weight:     weight,
		Ownership:  domain.OwnershipSnapshot{SubsidiaryID: "sub-1", Shares: weight, Source: "holdings"},
		Acknowledgments: domain.Acknowledgments{
			ReviewedMaterials: true,
			UnderstandsRisks:  true,
		},
		CastAt: time.Now().UTC(),
	}
}

func TestInvestorProfileUpsertAndIncrement(t *testing.T) {
	repo := NewInvestorRepository(newTestDB(t))
	ctx := context.Background()

	if _, err := repo.GetProfile(ctx, "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := repo.IncrementTotalInvested(ctx, "u1", decimal.NewFromInt(10)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on increment, got %v", err)
	}

	_, err := repo.UpsertProfile(ctx, domain.InvestorProfile{
		UserID:              "u1",
		AccreditationStatus: domain.AccreditationNonAccredited,
		IsUSPerson:          false,
		ResidenceCountry:    "JP",
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	profile, err := repo.IncrementTotalInvested(ctx, "u1", decimal.RequireFromString("1500.25"))
	if err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if !profile.TotalInvested.Equal(decimal.RequireFromString("1500.25")) {
		t.Fatalf("expected 1500.25 got %s", profile.TotalInvested)
	}
	if profile.IsUSPerson {
		t.Fatalf("expected is_us_person to stay false")
	}

	updated, err := repo.UpsertProfile(ctx, domain.InvestorProfile{
		UserID:              "u1",
		AccreditationStatus: domain.AccreditationAccredited,
		IsUSPerson:          true,
		OnboardingStep:      3,
	})
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if updated.AccreditationStatus != domain.AccreditationAccredited || updated.OnboardingStep != 3 {
		t.Fatalf("unexpected profile %+v", updated)
	}
	if !updated.TotalInvested.Equal(decimal.RequireFromString("1500.25")) {
		t.Fatalf("upsert must not reset total invested, got %s", updated.TotalInvested)
	}
}

func TestConcurrentIncrementsAreAtomic(t *testing.T) {
	repo := NewInvestorRepository(newTestDB(t))
	ctx := context.Background()

	if _, err := repo.UpsertProfile(ctx, domain.InvestorProfile{UserID: "u1", AccreditationStatus: domain.AccreditationNonAccredited}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.IncrementTotalInvested(ctx, "u1", decimal.NewFromInt(100)); err != nil {
				t.Errorf("increment failed: %v", err)
			}
		}()
	}
	wg.Wait()

	profile, err := repo.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !profile.TotalInvested.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("expected 2000 got %s", profile.TotalInvested)
	}
}

func TestAccreditationLifecycle(t *testing.T) {
	repo := NewInvestorRepository(newTestDB(t))
	ctx := context.Background()

	latest, err := repo.LatestAccreditation(ctx, "u1")
	if err != nil || latest != nil {
		t.Fatalf("expected no accreditation, got %v %v", latest, err)
	}

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"a1", "a2"} {
		err := repo.CreateAccreditation(ctx, domain.AccreditationResponse{
			ID:             id,
			UserID:         "u1",
			ClaimedStatus:  domain.AccreditationNonAccredited,
			AnnualIncome:   decimal.NewFromInt(int64(50000 * (i + 1))),
			NetWorth:       decimal.NewFromInt(40000),
			VerifiedStatus: domain.VerifiedPending,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("create accreditation: %v", err)
		}
	}

	latest, err = repo.LatestAccreditation(ctx, "u1")
	if err != nil {
		t.Fatalf("latest failed: %v", err)
	}
	if latest == nil || latest.ID != "a2" || !latest.AnnualIncome.Equal(decimal.NewFromInt(100000)) {
		t.Fatalf("expected a2, got %+v", latest)
	}
	if latest.ClaimedStatus != domain.AccreditationNonAccredited {
		t.Fatalf("expected claimed status to round trip, got %s", latest.ClaimedStatus)
	}

	reviewed, err := repo.SetVerifiedStatus(ctx, "a2", domain.VerifiedVerified, "root", time.Now())
	if err != nil {
		t.Fatalf("set verified failed: %v", err)
	}
	if reviewed.VerifiedStatus != domain.VerifiedVerified || reviewed.ReviewedBy == nil || *reviewed.ReviewedBy != "root" {
		t.Fatalf("unexpected response %+v", reviewed)
	}

	if _, err := repo.SetVerifiedStatus(ctx, "a2", domain.VerifiedRejected, "root", time.Now()); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := repo.SetVerifiedStatus(ctx, "missing", domain.VerifiedRejected, "root", time.Now()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCastVoteUniqueAndTallied(t *testing.T) {
	repo := NewProposalRepository(newTestDB(t))
	ctx := context.Background()
	seedProposal(t, repo, "p1", domain.ProposalVoting, nil)

	proposal, err := repo.CastVote(ctx, testVote("p1", "v1", domain.VoteFor, 250))
	if err != nil {
		t.Fatalf("cast failed: %v", err)
	}
	if proposal.Tally.For != 250 {
		t.Fatalf("expected 250 got %v", proposal.Tally.For)
	}

	dup := testVote("p1", "v1", domain.VoteAgainst, 100)
	dup.ID = "another-id"
	_, err = repo.CastVote(ctx, dup)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	proposal, err = repo.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if proposal.Tally.For != 250 || proposal.Tally.Against != 0 {
		t.Fatalf("duplicate changed tally: %+v", proposal.Tally)
	}
	if proposal.Payload["shares"] != float64(1000) {
		t.Fatalf("payload not round-tripped: %+v", proposal.Payload)
	}

	voted, err := repo.HasVoted(ctx, "p1", "v1")
	if err != nil || !voted {
		t.Fatalf("expected has voted, got %v %v", voted, err)
	}

	votes, err := repo.ListVotes(ctx, "p1")
	if err != nil {
		t.Fatalf("list votes failed: %v", err)
	}
	if len(votes) != 1 || votes[0].Ownership.Shares != 250 || !votes[0].Acknowledgments.UnderstandsRisks || votes[0].Acknowledgments.AcceptsOutcome {
		t.Fatalf("unexpected votes %+v", votes)
	}
}

func TestCastVoteRejectedWhenNotVoting(t *testing.T) {
	repo := NewProposalRepository(newTestDB(t))
	ctx := context.Background()
	seedProposal(t, repo, "p1", domain.ProposalDraft, nil)

	_, err := repo.CastVote(ctx, testVote("p1", "v1", domain.VoteFor, 1))
	var conflict domain.ConflictError
	if !errors.As(err, &conflict) || conflict.Reason != usecase.ReasonNotOpenForVoting {
		t.Fatalf("expected not open conflict, got %v", err)
	}

	voted, _ := repo.HasVoted(ctx, "p1", "v1")
	if voted {
		t.Fatalf("vote must be rolled back")
	}

	if _, err := repo.CastVote(ctx, testVote("missing", "v1", domain.VoteFor, 1)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConcurrentVotesConserveTally(t *testing.T) {
	repo := NewProposalRepository(newTestDB(t))
	ctx := context.Background()
	seedProposal(t, repo, "p1", domain.ProposalVoting, nil)

	const voters = 25
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			choice := []domain.VoteChoice{domain.VoteFor, domain.VoteAgainst, domain.VoteAbstain}[i%3]
			if _, err := repo.CastVote(ctx, testVote("p1", fmt.Sprintf("v%d", i), choice, float64(i+1))); err != nil {
				t.Errorf("cast failed: %v", err)
			}
			// a second attempt by the same voter must never count
			_, _ = repo.CastVote(ctx, testVote("p1", fmt.Sprintf("v%d", i), choice, 1000))
		}(i)
	}
	wg.Wait()

	proposal, err := repo.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	expected := float64(voters * (voters + 1) / 2)
	if proposal.Tally.Total() != expected {
		t.Fatalf("expected total %v got %v", expected, proposal.Tally.Total())
	}
}

func TestProposalTransitions(t *testing.T) {
	repo := NewProposalRepository(newTestDB(t))
	ctx := context.Background()
	seedProposal(t, repo, "p1", domain.ProposalDraft, nil)

	if _, err := repo.Execute(ctx, "p1", "admin", time.Now()); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict executing draft, got %v", err)
	}
	p, _ := repo.Get(ctx, "p1")
	if p.Status != domain.ProposalDraft {
		t.Fatalf("status changed to %s", p.Status)
	}

	end := time.Now().UTC().Add(time.Hour)
	p, err := repo.OpenVoting(ctx, "p1", &end)
	if err != nil || p.Status != domain.ProposalVoting || p.VoteEndAt == nil {
		t.Fatalf("open voting failed: %+v %v", p, err)
	}

	if _, err := repo.Transition(ctx, "p1", domain.ProposalVoting, domain.ProposalExecuted); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict skipping approval, got %v", err)
	}

	if p, err = repo.Transition(ctx, "p1", domain.ProposalVoting, domain.ProposalApproved); err != nil || p.Status != domain.ProposalApproved {
		t.Fatalf("approve failed: %+v %v", p, err)
	}
	if _, err := repo.Transition(ctx, "p1", domain.ProposalVoting, domain.ProposalRejected); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected stale transition conflict, got %v", err)
	}

	p, err = repo.Execute(ctx, "p1", "admin", time.Now())
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if p.Status != domain.ProposalExecuted || p.ExecutedBy == nil || *p.ExecutedBy != "admin" || p.ExecutedAt == nil {
		t.Fatalf("unexpected executed proposal %+v", p)
	}
	if _, err := repo.Execute(ctx, "p1", "admin", time.Now()); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on second execute, got %v", err)
	}

	if _, err := repo.Transition(ctx, "missing", domain.ProposalVoting, domain.ProposalApproved); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListAndExpired(t *testing.T) {
	repo := NewProposalRepository(newTestDB(t))
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)
	seedProposal(t, repo, "expired", domain.ProposalVoting, &past)
	seedProposal(t, repo, "open", domain.ProposalVoting, &future)
	seedProposal(t, repo, "draft", domain.ProposalDraft, &past)

	expired, err := repo.ListExpiredVoting(ctx, time.Now())
	if err != nil {
		t.Fatalf("list expired failed: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "expired" {
		t.Fatalf("unexpected expired %+v", expired)
	}

	voting, err := repo.List(ctx, usecase.ProposalFilter{SubsidiaryID: "sub-1", Status: domain.ProposalVoting, Limit: 10})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(voting) != 2 {
		t.Fatalf("expected 2 voting proposals, got %d", len(voting))
	}
}

func TestActivityAppendAndList(t *testing.T) {
	repo := NewActivityRepository(newTestDB(t))
	ctx := context.Background()
	base := time.Now().UTC()

	for i, action := range []string{domain.ActivityCreated, domain.ActivityVotingOpened, domain.ActivityVoted} {
		err := repo.Append(ctx, domain.Activity{
			TargetType: domain.ActivityTargetProposal,
			TargetID:   "p1",
			ActorID:    "admin",
			ActionType: action,
			Details:    map[string]any{"step": float64(i)},
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	entries, err := repo.ListByTarget(ctx, domain.ActivityTargetProposal, "p1", 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 2 || entries[0].ActionType != domain.ActivityVoted || entries[0].Details["step"] != float64(2) {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestRolesAndHoldings(t *testing.T) {
	db := newTestDB(t)
	roles := NewRoleRepository(db)
	holdings := NewHoldingRepository(db)
	ctx := context.Background()

	if err := roles.GrantSubsidiaryAdmin(ctx, "admin", "sub-1"); err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	if err := roles.GrantSubsidiaryAdmin(ctx, "admin", "sub-1"); err != nil {
		t.Fatalf("second grant failed: %v", err)
	}
	if err := roles.GrantSuperAdmin(ctx, "root"); err != nil {
		t.Fatalf("grant super failed: %v", err)
	}

	if ok, _ := roles.IsSubsidiaryAdmin(ctx, "admin", "sub-1"); !ok {
		t.Fatalf("expected subsidiary admin")
	}
	if ok, _ := roles.IsSubsidiaryAdmin(ctx, "admin", "sub-2"); ok {
		t.Fatalf("unexpected admin of sub-2")
	}
	if ok, _ := roles.IsSuperAdmin(ctx, "admin"); ok {
		t.Fatalf("unexpected super admin")
	}
	if ok, _ := roles.IsSuperAdmin(ctx, "root"); !ok {
		t.Fatalf("expected super admin")
	}

	if err := holdings.SetShares(ctx, "sub-1", "v1", 250); err != nil {
		t.Fatalf("set shares failed: %v", err)
	}
	if err := holdings.SetShares(ctx, "sub-1", "v2", 750); err != nil {
		t.Fatalf("set shares failed: %v", err)
	}

	shares, total, err := holdings.Ownership(ctx, "sub-1", "v1")
	if err != nil || shares != 250 || total != 1000 {
		t.Fatalf("unexpected ownership %v/%v %v", shares, total, err)
	}
	shares, _, err = holdings.Ownership(ctx, "sub-1", "nobody")
	if err != nil || shares != 0 {
		t.Fatalf("expected zero shares, got %v %v", shares, err)
	}
}
