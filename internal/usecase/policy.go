package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nexusholdings/nexus/internal/domain"
	"github.com/nexusholdings/nexus/policy"
)

var (
	nonAccreditedFloor       = decimal.NewFromInt(5000)
	domesticRate             = decimal.RequireFromString("0.10")
	internationalRate        = decimal.RequireFromString("0.05")
	noLimit                  = decimal.NewFromInt(domain.NoLimitSentinel)
	legalRefNonAccredited    = "17 CFR 230.251(d)(2)(i)(C)"
	legalRefAccredited       = "17 CFR 230.501(a)"
	legalRefQualifiedPurchsr = "15 U.S.C. 80a-2(a)(51)"
)

// ReferenceLimitEngine implements the non-accredited cap locally. Accredited
// investors and qualified purchasers get the no-limit sentinel.
type ReferenceLimitEngine struct{}

func NewReferenceLimitEngine() *ReferenceLimitEngine {
	return &ReferenceLimitEngine{}
}

func (e *ReferenceLimitEngine) CalculateInvestmentLimit(ctx context.Context, profile domain.InvestorProfile, accreditation domain.AccreditationResponse) (*domain.LimitRule, error) {
	switch profile.AccreditationStatus {
	case domain.AccreditationAccredited:
		return &domain.LimitRule{
			MaxInvestment:  noLimit,
			Description:    "No investment limit for accredited investors",
			LegalReference: legalRefAccredited,
		}, nil
	case domain.AccreditationQualifiedPurchaser:
		return &domain.LimitRule{
			MaxInvestment:  noLimit,
			Description:    "No investment limit for qualified purchasers",
			LegalReference: legalRefQualifiedPurchsr,
		}, nil
	case domain.AccreditationNonAccredited:
	default:
		return nil, nil
	}

	base := decimal.Min(accreditation.AnnualIncome, accreditation.NetWorth)
	if base.IsNegative() {
		base = decimal.Zero
	}

	if profile.International() {
		return &domain.LimitRule{
			MaxInvestment:  base.Mul(internationalRate).Round(2),
			Description:    "5% of the lesser of annual income or net worth",
			LegalReference: legalRefNonAccredited,
		}, nil
	}

	return &domain.LimitRule{
		MaxInvestment:  decimal.Max(nonAccreditedFloor, base.Mul(domesticRate)).Round(2),
		Description:    "Greater of $5,000 or 10% of the lesser of annual income or net worth",
		LegalReference: legalRefNonAccredited,
	}, nil
}

// HoldingWeightOracle weights a vote by the voter's shares in the proposal's
// subsidiary. A voter without shares gets weight 0, not an error.
type HoldingWeightOracle struct {
	holdings HoldingRepository
	now      func() time.Time
}

func NewHoldingWeightOracle(holdings HoldingRepository) *HoldingWeightOracle {
	return &HoldingWeightOracle{holdings: holdings, now: time.Now}
}

func (o *HoldingWeightOracle) CalculateVoteWeight(ctx context.Context, proposal domain.Proposal, voterID string) (domain.VoteWeight, error) {
	shares, total, err := o.holdings.Ownership(ctx, proposal.SubsidiaryID, voterID)
	if err != nil {
		return domain.VoteWeight{}, err
	}
	if shares < 0 {
		shares = 0
	}

	snapshot := domain.OwnershipSnapshot{
		SubsidiaryID: proposal.SubsidiaryID,
		Shares:       shares,
		TotalShares:  total,
		Source:       "holdings",
		CapturedAt:   o.now().UTC(),
	}
	if total > 0 {
		snapshot.OwnershipPercent = shares / total * 100
	}

	return domain.VoteWeight{Weight: shares, Snapshot: snapshot}, nil
}

// WeightFallback is applied when the vote weight oracle fails. With Enabled
// false the vote fails instead.
type WeightFallback struct {
	Enabled bool
	Weight  float64
}

// DefaultWeightFallback weights a vote as 1 when the oracle is unavailable.
func DefaultWeightFallback() WeightFallback {
	return WeightFallback{Enabled: true, Weight: 1}
}

// DocumentApprovalPolicy evaluates the "approve" action of a policy document
// against the proposal's weighted tallies.
type DocumentApprovalPolicy struct {
	document policy.PolicyDocument
	params   map[string]any
}

func NewDocumentApprovalPolicy(document policy.PolicyDocument, quorum float64) *DocumentApprovalPolicy {
	return &DocumentApprovalPolicy{
		document: document,
		params:   map[string]any{"quorum": quorum},
	}
}

func (p *DocumentApprovalPolicy) IsProposalApproved(ctx context.Context, proposal domain.Proposal) (bool, error) {
	rctx := policy.RequestContext{
		Proposal: map[string]any{
			"id":           proposal.ID,
			"subsidiaryId": proposal.SubsidiaryID,
			"proposalType": proposal.ProposalType,
			"status":       string(proposal.Status),
		},
		Tally: map[string]any{
			"for":     proposal.Tally.For,
			"against": proposal.Tally.Against,
			"abstain": proposal.Tally.Abstain,
			"total":   proposal.Tally.Total(),
		},
		Params: p.params,
	}
	return policy.Decide(p.document, rctx, "approve")
}
