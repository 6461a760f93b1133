package domain

import (
	"time"
)

type ProposalStatus string

const (
	ProposalDraft    ProposalStatus = "draft"
	ProposalVoting   ProposalStatus = "voting"
	ProposalApproved ProposalStatus = "approved"
	ProposalExecuted ProposalStatus = "executed"
	ProposalRejected ProposalStatus = "rejected"
)

var proposalTransitions = map[ProposalStatus][]ProposalStatus{
	ProposalDraft:    {ProposalVoting},
	ProposalVoting:   {ProposalApproved, ProposalRejected},
	ProposalApproved: {ProposalExecuted},
}

func (s ProposalStatus) Valid() bool {
	switch s {
	case ProposalDraft, ProposalVoting, ProposalApproved, ProposalExecuted, ProposalRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether no transition leaves s.
func (s ProposalStatus) Terminal() bool {
	return s == ProposalExecuted || s == ProposalRejected
}

// CanTransitionTo reports whether next directly follows s in the lifecycle.
func (s ProposalStatus) CanTransitionTo(next ProposalStatus) bool {
	for _, allowed := range proposalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type VoteChoice string

const (
	VoteFor     VoteChoice = "for"
	VoteAgainst VoteChoice = "against"
	VoteAbstain VoteChoice = "abstain"
)

func (c VoteChoice) Valid() bool {
	return c == VoteFor || c == VoteAgainst || c == VoteAbstain
}

// Tally holds weighted sums, never counts.
type Tally struct {
	For     float64 `json:"for"`
	Against float64 `json:"against"`
	Abstain float64 `json:"abstain"`
}

func (t Tally) Total() float64 {
	return t.For + t.Against + t.Abstain
}

type Proposal struct {
	ID           string         `json:"id"`
	SubsidiaryID string         `json:"subsidiaryId"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	ProposalType string         `json:"proposalType,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
	Status       ProposalStatus `json:"status"`
	Tally        Tally          `json:"tally"`
	VoteEndAt    *time.Time     `json:"voteEndAt,omitempty"`
	CreatedBy    string         `json:"createdBy"`
	ExecutedBy   *string        `json:"executedBy,omitempty"`
	ExecutedAt   *time.Time     `json:"executedAt,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// DeadlinePassed reports whether voting has a deadline and now is past it.
func (p Proposal) DeadlinePassed(now time.Time) bool {
	return p.VoteEndAt != nil && now.After(*p.VoteEndAt)
}

// Acknowledgments are captured explicitly on every vote, true or false.
type Acknowledgments struct {
	ReviewedMaterials bool `json:"reviewedMaterials"`
	UnderstandsRisks  bool `json:"understandsRisks"`
	AcceptsOutcome    bool `json:"acceptsOutcome"`
}

// OwnershipSnapshot is the voter's stake at cast time. It is an audit artifact
// and never rewritten.
type OwnershipSnapshot struct {
	SubsidiaryID     string    `json:"subsidiaryId"`
	Shares           float64   `json:"shares"`
	TotalShares      float64   `json:"totalShares,omitempty"`
	OwnershipPercent float64   `json:"ownershipPercent,omitempty"`
	Source           string    `json:"source"`
	CapturedAt       time.Time `json:"capturedAt"`
}

// VoteWeight is what a vote weight oracle reports for one voter.
type VoteWeight struct {
	Weight   float64           `json:"weight"`
	Snapshot OwnershipSnapshot `json:"snapshot"`
}

type Vote struct {
	ID              string            `json:"id"`
	ProposalID      string            `json:"proposalId"`
	VoterID         string            `json:"voterId"`
	Choice          VoteChoice        `json:"voteChoice"`
	Weight          float64           `json:"weight"`
	Ownership       OwnershipSnapshot `json:"ownershipSnapshot"`
	Acknowledgments Acknowledgments   `json:"acknowledgments"`
	SignatureData   *string           `json:"signatureData,omitempty"`
	Rationale       *string           `json:"rationale,omitempty"`
	CastAt          time.Time         `json:"castAt"`
}

// VoteResult is returned from casting a vote: the vote and the proposal after tallying.
type VoteResult struct {
	Vote     Vote     `json:"vote"`
	Proposal Proposal `json:"proposal"`
}
