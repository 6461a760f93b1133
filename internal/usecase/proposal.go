package usecase

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nexusholdings/nexus/internal/domain"
	"github.com/nexusholdings/nexus/internal/metrics"
	"github.com/nexusholdings/nexus/internal/utils"
)

const (
	ReasonNotOpenForVoting   = "Proposal is not open for voting"
	ReasonAlreadyVoted       = "You have already voted on this proposal"
	ReasonOnlyApprovedExec   = "Only approved proposals can be executed"
	ReasonOnlyDraftOpen      = "Only draft proposals can be opened for voting"
	ReasonOnlyVotingFinalize = "Only proposals in voting can be finalized"
	ReasonNotSubsidiaryAdmin = "You are not an administrator of this subsidiary"
)

type ProposalInput struct {
	SubsidiaryID string
	Title        string
	Description  string
	ProposalType string
	Payload      map[string]any
	VoteEndAt    *time.Time
}

// AcknowledgmentInput holds the acknowledgments as submitted. A nil field was
// not submitted at all.
type AcknowledgmentInput struct {
	ReviewedMaterials *bool
	UnderstandsRisks  *bool
	AcceptsOutcome    *bool
}

// Resolve requires every acknowledgment to be present, true or false.
func (a AcknowledgmentInput) Resolve() (domain.Acknowledgments, error) {
	missing := []string{}
	if a.ReviewedMaterials == nil {
		missing = append(missing, "reviewedMaterials")
	}
	if a.UnderstandsRisks == nil {
		missing = append(missing, "understandsRisks")
	}
	if a.AcceptsOutcome == nil {
		missing = append(missing, "acceptsOutcome")
	}
	if len(missing) > 0 {
		return domain.Acknowledgments{}, domain.ValidationError{
			Field:  "acknowledgments",
			Reason: "missing " + strings.Join(missing, ", "),
		}
	}
	return domain.Acknowledgments{
		ReviewedMaterials: *a.ReviewedMaterials,
		UnderstandsRisks:  *a.UnderstandsRisks,
		AcceptsOutcome:    *a.AcceptsOutcome,
	}, nil
}

type VoteInput struct {
	Choice          domain.VoteChoice
	Acknowledgments AcknowledgmentInput
	SignatureData   *string
	Rationale       *string
}

type ProposalUsecase struct {
	proposals ProposalRepository
	roles     RoleChecker
	weights   VoteWeightOracle
	approval  ApprovalPolicy
	fallback  WeightFallback
	activity  ActivityLogger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewProposalUsecase(
	proposals ProposalRepository,
	roles RoleChecker,
	weights VoteWeightOracle,
	approval ApprovalPolicy,
	fallback WeightFallback,
	activity ActivityLogger,
	m *metrics.Metrics,
) *ProposalUsecase {
	return &ProposalUsecase{
		proposals: proposals,
		roles:     roles,
		weights:   weights,
		approval:  approval,
		fallback:  fallback,
		activity:  activity,
		metrics:   m,
		now:       time.Now,
	}
}

func (uc *ProposalUsecase) requireAdmin(ctx context.Context, actor, subsidiaryID string) error {
	ok, err := uc.roles.IsSubsidiaryAdmin(ctx, actor, subsidiaryID)
	if err != nil {
		return domain.DependencyError{Dependency: "role check", Err: err}
	}
	if ok {
		return nil
	}
	ok, err = uc.roles.IsSuperAdmin(ctx, actor)
	if err != nil {
		return domain.DependencyError{Dependency: "role check", Err: err}
	}
	if !ok {
		return domain.ForbiddenError{Reason: ReasonNotSubsidiaryAdmin}
	}
	return nil
}

func (uc *ProposalUsecase) logTransition(ctx context.Context, proposal domain.Proposal, actor, action string, details map[string]any) {
	uc.metrics.ObserveTransition(string(proposal.Status))
	uc.activity.Log(ctx, domain.Activity{
		TargetType: domain.ActivityTargetProposal,
		TargetID:   proposal.ID,
		ActorID:    actor,
		ActionType: action,
		Details:    details,
	})
}

func (uc *ProposalUsecase) CreateProposal(ctx context.Context, actor string, input ProposalInput) (domain.Proposal, error) {
	ctx, span := tracer.Start(ctx, "Proposal.Usecase.CreateProposal")
	defer span.End()

	if strings.TrimSpace(input.SubsidiaryID) == "" {
		return domain.Proposal{}, domain.ValidationError{Field: "subsidiaryId", Reason: "required"}
	}
	if strings.TrimSpace(input.Title) == "" {
		return domain.Proposal{}, domain.ValidationError{Field: "title", Reason: "required"}
	}

	if err := uc.requireAdmin(ctx, actor, input.SubsidiaryID); err != nil {
		span.RecordError(err)
		return domain.Proposal{}, err
	}

	now := uc.now().UTC()
	proposal := domain.Proposal{
		ID:           uuid.NewString(),
		SubsidiaryID: input.SubsidiaryID,
		Title:        input.Title,
		Description:  input.Description,
		ProposalType: input.ProposalType,
		Payload:      input.Payload,
		Status:       domain.ProposalDraft,
		VoteEndAt:    input.VoteEndAt,
		CreatedBy:    actor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uc.proposals.Create(ctx, proposal); err != nil {
		span.RecordError(err)
		return domain.Proposal{}, err
	}

	uc.logTransition(ctx, proposal, actor, domain.ActivityCreated, map[string]any{
		"title":        proposal.Title,
		"subsidiaryId": proposal.SubsidiaryID,
	})
	return proposal, nil
}

// OpenVoting moves a draft proposal to voting. A non-nil voteEndAt replaces the
// deadline set at creation.
func (uc *ProposalUsecase) OpenVoting(ctx context.Context, actor, id string, voteEndAt *time.Time) (domain.Proposal, error) {
	ctx, span := tracer.Start(ctx, "Proposal.Usecase.OpenVoting")
	defer span.End()

	proposal, err := uc.proposals.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return domain.Proposal{}, err
	}
	if err := uc.requireAdmin(ctx, actor, proposal.SubsidiaryID); err != nil {
		return domain.Proposal{}, err
	}
	if proposal.Status != domain.ProposalDraft {
		return domain.Proposal{}, domain.ConflictError{Reason: ReasonOnlyDraftOpen}
	}

	deadline := proposal.VoteEndAt
	if voteEndAt != nil {
		deadline = voteEndAt
	}
	if deadline != nil && !deadline.After(uc.now()) {
		return domain.Proposal{}, domain.ValidationError{Field: "voteEndAt", Reason: "must be in the future"}
	}

	opened, err := uc.proposals.OpenVoting(ctx, id, deadline)
	if err != nil {
		span.RecordError(err)
		return domain.Proposal{}, err
	}

	details := map[string]any{}
	if opened.VoteEndAt != nil {
		details["voteEndAt"] = opened.VoteEndAt.UTC().Format(time.RFC3339)
	}
	uc.logTransition(ctx, opened, actor, domain.ActivityVotingOpened, details)
	return opened, nil
}

// voteWeight asks the oracle and applies the fallback policy when it fails.
func (uc *ProposalUsecase) voteWeight(ctx context.Context, proposal domain.Proposal, voterID string) (domain.VoteWeight, error) {
	weight, err := uc.weights.CalculateVoteWeight(ctx, proposal, voterID)
	if err == nil && (weight.Weight < 0 || math.IsNaN(weight.Weight) || math.IsInf(weight.Weight, 0)) {
		err = errors.New("invalid vote weight")
	}
	if err == nil {
		return weight, nil
	}

	if !uc.fallback.Enabled {
		return domain.VoteWeight{}, domain.DependencyError{Dependency: "vote weight oracle", Err: err}
	}

	utils.Warn("vote weight oracle failed, applying fallback weight",
		utils.String("proposalId", proposal.ID),
		utils.String("voterId", voterID),
		utils.Float64("fallbackWeight", uc.fallback.Weight),
		utils.ErrorField(err),
	)
	uc.metrics.ObserveWeightFallback()

	return domain.VoteWeight{
		Weight: uc.fallback.Weight,
		Snapshot: domain.OwnershipSnapshot{
			SubsidiaryID: proposal.SubsidiaryID,
			Source:       "fallback",
			CapturedAt:   uc.now().UTC(),
		},
	}, nil
}

// CastVote records one weighted vote and, once the deadline has passed,
// approves the proposal when the approval policy holds.
func (uc *ProposalUsecase) CastVote(ctx context.Context, actor, id string, input VoteInput) (domain.VoteResult, error) {
	ctx, span := tracer.Start(ctx, "Proposal.Usecase.CastVote")
	defer span.End()
	span.SetAttributes(attribute.String("proposalId", id))

	if !input.Choice.Valid() {
		return domain.VoteResult{}, domain.ValidationError{Field: "voteChoice", Reason: "must be for, against or abstain"}
	}
	acks, err := input.Acknowledgments.Resolve()
	if err != nil {
		return domain.VoteResult{}, err
	}

	proposal, err := uc.proposals.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return domain.VoteResult{}, err
	}
	if proposal.Status != domain.ProposalVoting {
		return domain.VoteResult{}, domain.ConflictError{Reason: ReasonNotOpenForVoting}
	}

	voted, err := uc.proposals.HasVoted(ctx, id, actor)
	if err != nil {
		span.RecordError(err)
		return domain.VoteResult{}, err
	}
	if voted {
		return domain.VoteResult{}, domain.ConflictError{Reason: ReasonAlreadyVoted}
	}

	weight, err := uc.voteWeight(ctx, proposal, actor)
	if err != nil {
		span.RecordError(err)
		return domain.VoteResult{}, err
	}

	vote := domain.Vote{
		ID:              uuid.NewString(),
		ProposalID:      id,
		VoterID:         actor,
		Choice:          input.Choice,
		Weight:          weight.Weight,
		Ownership:       weight.Snapshot,
		Acknowledgments: acks,
		SignatureData:   input.SignatureData,
		Rationale:       input.Rationale,
		CastAt:          uc.now().UTC(),
	}

	// the store enforces uniqueness and the voting status again inside the transaction
	updated, err := uc.proposals.CastVote(ctx, vote)
	if err != nil {
		span.RecordError(err)
		return domain.VoteResult{}, err
	}

	uc.metrics.ObserveVote(string(vote.Choice))
	uc.activity.Log(ctx, domain.Activity{
		TargetType: domain.ActivityTargetProposal,
		TargetID:   id,
		ActorID:    actor,
		ActionType: domain.ActivityVoted,
		Details: map[string]any{
			"voteChoice": string(vote.Choice),
			"weight":     vote.Weight,
		},
	})

	if updated.DeadlinePassed(uc.now()) {
		updated = uc.approveIfPassing(ctx, updated, actor)
	}

	return domain.VoteResult{Vote: vote, Proposal: updated}, nil
}

// approveIfPassing transitions a voting proposal to approved when the policy
// holds. Failures are logged; the proposal is returned unchanged.
func (uc *ProposalUsecase) approveIfPassing(ctx context.Context, proposal domain.Proposal, actor string) domain.Proposal {
	approved, err := uc.approval.IsProposalApproved(ctx, proposal)
	if err != nil {
		utils.Warn("approval check failed",
			utils.String("proposalId", proposal.ID),
			utils.ErrorField(err),
		)
		return proposal
	}
	if !approved {
		return proposal
	}

	next, err := uc.proposals.Transition(ctx, proposal.ID, domain.ProposalVoting, domain.ProposalApproved)
	if err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			utils.Error("failed to approve proposal",
				utils.String("proposalId", proposal.ID),
				utils.ErrorField(err),
			)
		}
		return proposal
	}

	uc.logTransition(ctx, next, actor, domain.ActivityApproved, map[string]any{
		"votesFor":     next.Tally.For,
		"votesAgainst": next.Tally.Against,
		"votesAbstain": next.Tally.Abstain,
	})
	return next
}

// FinalizeProposal closes voting: approved when the policy holds, rejected otherwise.
func (uc *ProposalUsecase) FinalizeProposal(ctx context.Context, actor, id string) (domain.Proposal, error) {
	ctx, span := tracer.Start(ctx, "Proposal.Usecase.FinalizeProposal")
	defer span.End()

	proposal, err := uc.proposals.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return domain.Proposal{}, err
	}
	if err := uc.requireAdmin(ctx, actor, proposal.SubsidiaryID); err != nil {
		return domain.Proposal{}, err
	}
	if proposal.Status != domain.ProposalVoting {
		return domain.Proposal{}, domain.ConflictError{Reason: ReasonOnlyVotingFinalize}
	}

	approved, err := uc.approval.IsProposalApproved(ctx, proposal)
	if err != nil {
		span.RecordError(err)
		return domain.Proposal{}, domain.DependencyError{Dependency: "approval policy", Err: err}
	}

	target, action := domain.ProposalRejected, domain.ActivityRejected
	if approved {
		target, action = domain.ProposalApproved, domain.ActivityApproved
	}

	next, err := uc.proposals.Transition(ctx, id, domain.ProposalVoting, target)
	if err != nil {
		span.RecordError(err)
		return domain.Proposal{}, err
	}

	uc.logTransition(ctx, next, actor, action, map[string]any{
		"votesFor":     next.Tally.For,
		"votesAgainst": next.Tally.Against,
		"votesAbstain": next.Tally.Abstain,
	})
	return next, nil
}

// ExecuteProposal marks an approved proposal executed. Applying the change to
// the subsidiary's cap table happens outside this service.
func (uc *ProposalUsecase) ExecuteProposal(ctx context.Context, actor, id string) (domain.Proposal, error) {
	ctx, span := tracer.Start(ctx, "Proposal.Usecase.ExecuteProposal")
	defer span.End()

	proposal, err := uc.proposals.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return domain.Proposal{}, err
	}
	if err := uc.requireAdmin(ctx, actor, proposal.SubsidiaryID); err != nil {
		return domain.Proposal{}, err
	}
	if proposal.Status != domain.ProposalApproved {
		return domain.Proposal{}, domain.ConflictError{Reason: ReasonOnlyApprovedExec}
	}

	executed, err := uc.proposals.Execute(ctx, id, actor, uc.now().UTC())
	if err != nil {
		span.RecordError(err)
		return domain.Proposal{}, err
	}

	uc.logTransition(ctx, executed, actor, domain.ActivityExecuted, nil)
	return executed, nil
}

// SweepExpired approves voting proposals whose deadline has passed and whose
// tallies satisfy the approval policy. It never rejects.
func (uc *ProposalUsecase) SweepExpired(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "Proposal.Usecase.SweepExpired")
	defer span.End()

	expired, err := uc.proposals.ListExpiredVoting(ctx, uc.now().UTC())
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	approved := 0
	for _, proposal := range expired {
		if ctx.Err() != nil {
			return approved, ctx.Err()
		}
		next := uc.approveIfPassing(ctx, proposal, "")
		if next.Status == domain.ProposalApproved {
			approved++
		}
	}

	span.SetAttributes(attribute.Int("approved", approved))
	return approved, nil
}

func (uc *ProposalUsecase) Get(ctx context.Context, id string) (domain.Proposal, error) {
	ctx, span := tracer.Start(ctx, "Proposal.Usecase.Get")
	defer span.End()

	return uc.proposals.Get(ctx, id)
}

func (uc *ProposalUsecase) List(ctx context.Context, filter ProposalFilter) ([]domain.Proposal, error) {
	ctx, span := tracer.Start(ctx, "Proposal.Usecase.List")
	defer span.End()

	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.ValidationError{Field: "status", Reason: "unrecognized status"}
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 100
	}
	return uc.proposals.List(ctx, filter)
}

func (uc *ProposalUsecase) ListVotes(ctx context.Context, id string) ([]domain.Vote, error) {
	ctx, span := tracer.Start(ctx, "Proposal.Usecase.ListVotes")
	defer span.End()

	if _, err := uc.proposals.Get(ctx, id); err != nil {
		return nil, err
	}
	return uc.proposals.ListVotes(ctx, id)
}
