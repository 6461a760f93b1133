package models

import (
	"time"
)

type Proposal struct {
	ID           string         `json:"id" gorm:"primaryKey;type:text"`
	SubsidiaryID string         `json:"subsidiaryId" gorm:"type:text;not null;index"`
	Title        string         `json:"title" gorm:"type:text;not null"`
	Description  string         `json:"description" gorm:"type:text"`
	ProposalType string         `json:"proposalType" gorm:"type:text"`
	Payload      map[string]any `json:"payload" gorm:"type:text;serializer:json"`
	Status       string         `json:"status" gorm:"type:text;not null;index"`
	VotesFor     float64        `json:"votesFor" gorm:"type:double precision;not null;default:0"`
	VotesAgainst float64        `json:"votesAgainst" gorm:"type:double precision;not null;default:0"`
	VotesAbstain float64        `json:"votesAbstain" gorm:"type:double precision;not null;default:0"`
	VoteEndAt    *time.Time     `json:"voteEndAt" gorm:"index"`
	CreatedBy    string         `json:"createdBy" gorm:"type:text;not null"`
	ExecutedBy   *string        `json:"executedBy" gorm:"type:text"`
	ExecutedAt   *time.Time     `json:"executedAt"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// OwnershipSnapshot is stored as JSON on the vote row.
type OwnershipSnapshot struct {
	SubsidiaryID     string    `json:"subsidiaryId"`
	Shares           float64   `json:"shares"`
	TotalShares      float64   `json:"totalShares"`
	OwnershipPercent float64   `json:"ownershipPercent"`
	Source           string    `json:"source"`
	CapturedAt       time.Time `json:"capturedAt"`
}

type Vote struct {
	ID                   string            `json:"id" gorm:"primaryKey;type:text"`
	ProposalID           string            `json:"proposalId" gorm:"type:text;not null;uniqueIndex:idx_votes_proposal_voter,priority:1"`
	VoterID              string            `json:"voterId" gorm:"type:text;not null;uniqueIndex:idx_votes_proposal_voter,priority:2"`
	Choice               string            `json:"voteChoice" gorm:"type:text;not null"`
	Weight               float64           `json:"weight" gorm:"type:double precision;not null"`
	Ownership            OwnershipSnapshot `json:"ownershipSnapshot" gorm:"type:text;serializer:json"`
	AckReviewedMaterials bool              `json:"reviewedMaterials" gorm:"not null"`
	AckUnderstandsRisks  bool              `json:"understandsRisks" gorm:"not null"`
	AckAcceptsOutcome    bool              `json:"acceptsOutcome" gorm:"not null"`
	SignatureData        *string           `json:"signatureData" gorm:"type:text"`
	Rationale            *string           `json:"rationale" gorm:"type:text"`
	CastAt               time.Time         `json:"castAt"`
}
