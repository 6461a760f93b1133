package domain

type ctxKey string

const (
	RequesterIdCtxKey ctxKey = "nx-requesterId"
)

// NoLimitSentinel is the maxInvestment reported for investors without a numeric cap.
const NoLimitSentinel int64 = 999_999_999_999

const (
	ActivityCreated      = "created"
	ActivityVotingOpened = "voting_opened"
	ActivityVoted        = "voted"
	ActivityApproved     = "approved"
	ActivityRejected     = "rejected"
	ActivityExecuted     = "executed"

	ActivityAccreditationSubmitted = "accreditation_submitted"
	ActivityAccreditationReviewed  = "accreditation_reviewed"
	ActivityInvestmentRecorded     = "investment_recorded"
)

const (
	ActivityTargetProposal = "proposal"
	ActivityTargetInvestor = "investor"
)
