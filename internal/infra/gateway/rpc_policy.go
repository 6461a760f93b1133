package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nexusholdings/nexus/client"
	"github.com/nexusholdings/nexus/internal/domain"
)

// RPCPolicyGateway delegates role checks, vote weights, approval and limits to
// stored procedures behind the RPC endpoint.
type RPCPolicyGateway struct {
	client *client.Client
	now    func() time.Time
}

func NewRPCPolicyGateway(cl *client.Client) *RPCPolicyGateway {
	return &RPCPolicyGateway{client: cl, now: time.Now}
}

func (g *RPCPolicyGateway) IsSubsidiaryAdmin(ctx context.Context, userID, subsidiaryID string) (bool, error) {
	return g.client.IsSubsidiaryAdmin(ctx, userID, subsidiaryID)
}

func (g *RPCPolicyGateway) IsSuperAdmin(ctx context.Context, userID string) (bool, error) {
	return g.client.IsSuperAdmin(ctx, userID)
}

func (g *RPCPolicyGateway) CalculateVoteWeight(ctx context.Context, proposal domain.Proposal, voterID string) (domain.VoteWeight, error) {
	weight, err := g.client.CalculateVoteWeight(ctx, proposal.ID, voterID)
	if err != nil {
		return domain.VoteWeight{}, err
	}
	return domain.VoteWeight{
		Weight: weight,
		Snapshot: domain.OwnershipSnapshot{
			SubsidiaryID: proposal.SubsidiaryID,
			Shares:       weight,
			Source:       "rpc",
			CapturedAt:   g.now().UTC(),
		},
	}, nil
}

func (g *RPCPolicyGateway) IsProposalApproved(ctx context.Context, proposal domain.Proposal) (bool, error) {
	return g.client.IsProposalApproved(ctx, proposal.ID)
}

func (g *RPCPolicyGateway) CalculateInvestmentLimit(ctx context.Context, profile domain.InvestorProfile, accreditation domain.AccreditationResponse) (*domain.LimitRule, error) {
	row, err := g.client.CalculateInvestmentLimit(ctx, profile.UserID, accreditation.AnnualIncome.String(), accreditation.NetWorth.String())
	if err != nil {
		return nil, err
	}
	if row == nil || row.MaxInvestment == "" {
		return nil, nil
	}

	maxInvestment, err := decimal.NewFromString(row.MaxInvestment.String())
	if err != nil {
		return nil, fmt.Errorf("invalid max_investment %q: %w", row.MaxInvestment, err)
	}
	return &domain.LimitRule{
		MaxInvestment:  maxInvestment,
		Description:    row.LimitDescription,
		LegalReference: row.LegalReference,
	}, nil
}
