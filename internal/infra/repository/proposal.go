package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nexusholdings/nexus/internal/domain"
	"github.com/nexusholdings/nexus/internal/infra/database/models"
	"github.com/nexusholdings/nexus/internal/usecase"
)

var tallyColumns = map[domain.VoteChoice]string{
	domain.VoteFor:     "votes_for",
	domain.VoteAgainst: "votes_against",
	domain.VoteAbstain: "votes_abstain",
}

type ProposalRepository struct {
	db *gorm.DB
}

func NewProposalRepository(db *gorm.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

func proposalFromModel(m models.Proposal) domain.Proposal {
	return domain.Proposal{
		ID:           m.ID,
		SubsidiaryID: m.SubsidiaryID,
		Title:        m.Title,
		Description:  m.Description,
		ProposalType: m.ProposalType,
		Payload:      m.Payload,
		Status:       domain.ProposalStatus(m.Status),
		Tally: domain.Tally{
			For:     m.VotesFor,
			Against: m.VotesAgainst,
			Abstain: m.VotesAbstain,
		},
		VoteEndAt:  m.VoteEndAt,
		CreatedBy:  m.CreatedBy,
		ExecutedBy: m.ExecutedBy,
		ExecutedAt: m.ExecutedAt,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func voteFromModel(m models.Vote) domain.Vote {
	return domain.Vote{
		ID:         m.ID,
		ProposalID: m.ProposalID,
		VoterID:    m.VoterID,
		Choice:     domain.VoteChoice(m.Choice),
		Weight:     m.Weight,
		Ownership: domain.OwnershipSnapshot{
			SubsidiaryID:     m.Ownership.SubsidiaryID,
			Shares:           m.Ownership.Shares,
			TotalShares:      m.Ownership.TotalShares,
			OwnershipPercent: m.Ownership.OwnershipPercent,
			Source:           m.Ownership.Source,
			CapturedAt:       m.Ownership.CapturedAt,
		},
		Acknowledgments: domain.Acknowledgments{
			ReviewedMaterials: m.AckReviewedMaterials,
			UnderstandsRisks:  m.AckUnderstandsRisks,
			AcceptsOutcome:    m.AckAcceptsOutcome,
		},
		SignatureData: m.SignatureData,
		Rationale:     m.Rationale,
		CastAt:        m.CastAt,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func (r *ProposalRepository) Create(ctx context.Context, proposal domain.Proposal) error {
	row := models.Proposal{
		ID:           proposal.ID,
		SubsidiaryID: proposal.SubsidiaryID,
		Title:        proposal.Title,
		Description:  proposal.Description,
		ProposalType: proposal.ProposalType,
		Payload:      proposal.Payload,
		Status:       string(proposal.Status),
		VotesFor:     proposal.Tally.For,
		VotesAgainst: proposal.Tally.Against,
		VotesAbstain: proposal.Tally.Abstain,
		VoteEndAt:    utcPtr(proposal.VoteEndAt),
		CreatedBy:    proposal.CreatedBy,
		CreatedAt:    proposal.CreatedAt,
		UpdatedAt:    proposal.UpdatedAt,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func getProposal(tx *gorm.DB, id string) (models.Proposal, error) {
	var row models.Proposal
	err := tx.Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Proposal{}, domain.NotFoundError{Resource: "proposal"}
	}
	return row, err
}

func (r *ProposalRepository) Get(ctx context.Context, id string) (domain.Proposal, error) {
	row, err := getProposal(r.db.WithContext(ctx), id)
	if err != nil {
		return domain.Proposal{}, err
	}
	return proposalFromModel(row), nil
}

func (r *ProposalRepository) List(ctx context.Context, filter usecase.ProposalFilter) ([]domain.Proposal, error) {
	query := r.db.WithContext(ctx).Model(&models.Proposal{})
	if filter.SubsidiaryID != "" {
		query = query.Where("subsidiary_id = ?", filter.SubsidiaryID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []models.Proposal
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}

	proposals := make([]domain.Proposal, 0, len(rows))
	for _, row := range rows {
		proposals = append(proposals, proposalFromModel(row))
	}
	return proposals, nil
}

func (r *ProposalRepository) HasVoted(ctx context.Context, proposalID, voterID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Vote{}).
		Where("proposal_id = ? AND voter_id = ?", proposalID, voterID).
		Count(&count).Error
	return count > 0, err
}

// CastVote relies on the (proposal_id, voter_id) unique index rather than the
// caller's pre-check, and on a conditional relative update of the tally.
func (r *ProposalRepository) CastVote(ctx context.Context, vote domain.Vote) (domain.Proposal, error) {
	column, ok := tallyColumns[vote.Choice]
	if !ok {
		return domain.Proposal{}, domain.ValidationError{Field: "voteChoice", Reason: fmt.Sprintf("unknown choice %q", vote.Choice)}
	}

	row := models.Vote{
		ID:         vote.ID,
		ProposalID: vote.ProposalID,
		VoterID:    vote.VoterID,
		Choice:     string(vote.Choice),
		Weight:     vote.Weight,
		Ownership: models.OwnershipSnapshot{
			SubsidiaryID:     vote.Ownership.SubsidiaryID,
			Shares:           vote.Ownership.Shares,
			TotalShares:      vote.Ownership.TotalShares,
			OwnershipPercent: vote.Ownership.OwnershipPercent,
			Source:           vote.Ownership.Source,
			CapturedAt:       vote.Ownership.CapturedAt,
		},
		AckReviewedMaterials: vote.Acknowledgments.ReviewedMaterials,
		AckUnderstandsRisks:  vote.Acknowledgments.UnderstandsRisks,
		AckAcceptsOutcome:    vote.Acknowledgments.AcceptsOutcome,
		SignatureData:        vote.SignatureData,
		Rationale:            vote.Rationale,
		CastAt:               vote.CastAt.UTC(),
	}

	var proposal models.Proposal
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "proposal_id"}, {Name: "voter_id"}},
			DoNothing: true,
		}).Create(&row)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ConflictError{Reason: usecase.ReasonAlreadyVoted}
		}

		result = tx.Model(&models.Proposal{}).
			Where("id = ? AND status = ?", vote.ProposalID, string(domain.ProposalVoting)).
			Updates(map[string]any{
				column:       gorm.Expr(column+" + ?", vote.Weight),
				"updated_at": time.Now().UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			if _, err := getProposal(tx, vote.ProposalID); err != nil {
				return err
			}
			return domain.ConflictError{Reason: usecase.ReasonNotOpenForVoting}
		}

		var err error
		proposal, err = getProposal(tx, vote.ProposalID)
		return err
	})
	if err != nil {
		return domain.Proposal{}, err
	}
	return proposalFromModel(proposal), nil
}

// conditionalUpdate applies values only while the proposal is in from. A proposal
// that moved on meanwhile yields a ConflictError with reason.
func (r *ProposalRepository) conditionalUpdate(ctx context.Context, id string, from domain.ProposalStatus, values map[string]any, reason string) (domain.Proposal, error) {
	values["updated_at"] = time.Now().UTC()

	var proposal models.Proposal
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Proposal{}).
			Where("id = ? AND status = ?", id, string(from)).
			Updates(values)
		if result.Error != nil {
			return result.Error
		}

		var err error
		proposal, err = getProposal(tx, id)
		if err != nil {
			return err
		}
		if result.RowsAffected == 0 {
			return domain.ConflictError{Reason: reason}
		}
		return nil
	})
	if err != nil {
		return domain.Proposal{}, err
	}
	return proposalFromModel(proposal), nil
}

func (r *ProposalRepository) OpenVoting(ctx context.Context, id string, voteEndAt *time.Time) (domain.Proposal, error) {
	return r.conditionalUpdate(ctx, id, domain.ProposalDraft, map[string]any{
		"status":      string(domain.ProposalVoting),
		"vote_end_at": utcPtr(voteEndAt),
	}, usecase.ReasonOnlyDraftOpen)
}

func (r *ProposalRepository) Transition(ctx context.Context, id string, from, to domain.ProposalStatus) (domain.Proposal, error) {
	if !from.CanTransitionTo(to) {
		return domain.Proposal{}, domain.ConflictError{Reason: fmt.Sprintf("cannot move proposal from %s to %s", from, to)}
	}
	return r.conditionalUpdate(ctx, id, from, map[string]any{
		"status": string(to),
	}, fmt.Sprintf("Proposal is no longer %s", from))
}

func (r *ProposalRepository) Execute(ctx context.Context, id, executor string, at time.Time) (domain.Proposal, error) {
	return r.conditionalUpdate(ctx, id, domain.ProposalApproved, map[string]any{
		"status":      string(domain.ProposalExecuted),
		"executed_by": executor,
		"executed_at": at.UTC(),
	}, usecase.ReasonOnlyApprovedExec)
}

func (r *ProposalRepository) ListVotes(ctx context.Context, proposalID string) ([]domain.Vote, error) {
	var rows []models.Vote
	err := r.db.WithContext(ctx).
		Where("proposal_id = ?", proposalID).
		Order("cast_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	votes := make([]domain.Vote, 0, len(rows))
	for _, row := range rows {
		votes = append(votes, voteFromModel(row))
	}
	return votes, nil
}

func (r *ProposalRepository) ListExpiredVoting(ctx context.Context, now time.Time) ([]domain.Proposal, error) {
	var rows []models.Proposal
	err := r.db.WithContext(ctx).
		Where("status = ? AND vote_end_at IS NOT NULL AND vote_end_at < ?", string(domain.ProposalVoting), now.UTC()).
		Order("vote_end_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	proposals := make([]domain.Proposal, 0, len(rows))
	for _, row := range rows {
		proposals = append(proposals, proposalFromModel(row))
	}
	return proposals, nil
}
