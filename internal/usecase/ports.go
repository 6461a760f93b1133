package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nexusholdings/nexus/internal/domain"
)

// InvestorRepository defines storage operations for investor profiles and
// accreditation responses.
type InvestorRepository interface {
	GetProfile(ctx context.Context, userID string) (domain.InvestorProfile, error)
	UpsertProfile(ctx context.Context, profile domain.InvestorProfile) (domain.InvestorProfile, error)
	LatestAccreditation(ctx context.Context, userID string) (*domain.AccreditationResponse, error)
	GetAccreditation(ctx context.Context, id string) (domain.AccreditationResponse, error)
	CreateAccreditation(ctx context.Context, response domain.AccreditationResponse) error
	SetVerifiedStatus(ctx context.Context, id string, status domain.VerifiedStatus, reviewer string, at time.Time) (domain.AccreditationResponse, error)
	// IncrementTotalInvested must add amount atomically relative to the stored value.
	IncrementTotalInvested(ctx context.Context, userID string, amount decimal.Decimal) (domain.InvestorProfile, error)
}

type ProposalFilter struct {
	SubsidiaryID string
	Status       domain.ProposalStatus
	Limit        int
}

// ProposalRepository defines storage operations for proposals and votes.
type ProposalRepository interface {
	Create(ctx context.Context, proposal domain.Proposal) error
	Get(ctx context.Context, id string) (domain.Proposal, error)
	List(ctx context.Context, filter ProposalFilter) ([]domain.Proposal, error)
	HasVoted(ctx context.Context, proposalID, voterID string) (bool, error)
	// CastVote inserts the vote and adds its weight to the matching tally in one
	// transaction. A duplicate (proposal, voter) or a proposal no longer in voting
	// yields a domain.ConflictError and changes nothing.
	CastVote(ctx context.Context, vote domain.Vote) (domain.Proposal, error)
	OpenVoting(ctx context.Context, id string, voteEndAt *time.Time) (domain.Proposal, error)
	Transition(ctx context.Context, id string, from, to domain.ProposalStatus) (domain.Proposal, error)
	Execute(ctx context.Context, id, executor string, at time.Time) (domain.Proposal, error)
	ListVotes(ctx context.Context, proposalID string) ([]domain.Vote, error)
	ListExpiredVoting(ctx context.Context, now time.Time) ([]domain.Proposal, error)
}

// ActivityRepository defines storage for the append-only audit log.
type ActivityRepository interface {
	Append(ctx context.Context, activity domain.Activity) error
	ListByTarget(ctx context.Context, targetType, targetID string, limit int) ([]domain.Activity, error)
}

// HoldingRepository resolves a holder's stake in a subsidiary.
type HoldingRepository interface {
	Ownership(ctx context.Context, subsidiaryID, holderID string) (shares float64, totalShares float64, err error)
}

// RoleChecker answers authorization questions for subsidiaries.
type RoleChecker interface {
	IsSubsidiaryAdmin(ctx context.Context, userID, subsidiaryID string) (bool, error)
	IsSuperAdmin(ctx context.Context, userID string) (bool, error)
}

// VoteWeightOracle snapshots a voter's ownership at cast time.
type VoteWeightOracle interface {
	CalculateVoteWeight(ctx context.Context, proposal domain.Proposal, voterID string) (domain.VoteWeight, error)
}

// ApprovalPolicy decides whether the current tallies approve a proposal.
type ApprovalPolicy interface {
	IsProposalApproved(ctx context.Context, proposal domain.Proposal) (bool, error)
}

// LimitEngine computes an investor's cap. A nil rule with a nil error means no
// limit could be determined.
type LimitEngine interface {
	CalculateInvestmentLimit(ctx context.Context, profile domain.InvestorProfile, accreditation domain.AccreditationResponse) (*domain.LimitRule, error)
}

// ActivityLogger is fire-and-forget: it never blocks or fails the caller.
type ActivityLogger interface {
	Log(ctx context.Context, activity domain.Activity)
}
