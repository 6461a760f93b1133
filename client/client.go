package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultTimeout = 3 * time.Second
	userAgent      = "nexus/1.0"
)

// Client calls stored procedures exposed over a PostgREST compatible RPC endpoint.
type Client struct {
	http *resty.Client
}

type Options struct {
	Timeout time.Duration
	Retries int
}

func New(baseURL, apiKey string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.Retries).
		SetHeader("User-Agent", userAgent).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if apiKey != "" {
		httpClient.SetHeader("apikey", apiKey)
		httpClient.SetAuthToken(apiKey)
	}

	return &Client{http: httpClient}
}

// Call invokes function with params and decodes the JSON result into response.
func (c *Client) Call(ctx context.Context, function string, params any, response any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(params).
		Post("/rpc/" + function)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", function, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s: unexpected status code: %d", function, resp.StatusCode())
	}

	if err := json.Unmarshal(resp.Body(), response); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", function, err)
	}
	return nil
}

func (c *Client) IsSubsidiaryAdmin(ctx context.Context, userID, subsidiaryID string) (bool, error) {
	var ok bool
	err := c.Call(ctx, "is_subsidiary_admin", map[string]any{
		"p_user_id":       userID,
		"p_subsidiary_id": subsidiaryID,
	}, &ok)
	return ok, err
}

func (c *Client) IsSuperAdmin(ctx context.Context, userID string) (bool, error) {
	var ok bool
	err := c.Call(ctx, "is_super_admin", map[string]any{
		"p_user_id": userID,
	}, &ok)
	return ok, err
}

func (c *Client) CalculateVoteWeight(ctx context.Context, proposalID, voterID string) (float64, error) {
	var weight *float64
	err := c.Call(ctx, "calculate_vote_weight", map[string]any{
		"p_proposal_id": proposalID,
		"p_voter_id":    voterID,
	}, &weight)
	if err != nil {
		return 0, err
	}
	if weight == nil {
		return 0, fmt.Errorf("calculate_vote_weight returned no weight")
	}
	return *weight, nil
}

func (c *Client) IsProposalApproved(ctx context.Context, proposalID string) (bool, error) {
	var ok *bool
	err := c.Call(ctx, "is_proposal_approved", map[string]any{
		"p_proposal_id": proposalID,
	}, &ok)
	if err != nil {
		return false, err
	}
	if ok == nil {
		return false, fmt.Errorf("is_proposal_approved returned no result")
	}
	return *ok, nil
}

// InvestmentLimit is one row of calculate_investment_limit.
type InvestmentLimit struct {
	MaxInvestment    json.Number `json:"max_investment"`
	LimitDescription string      `json:"limit_description"`
	LegalReference   string      `json:"legal_reference"`
}

// CalculateInvestmentLimit returns nil when the function yields no row.
func (c *Client) CalculateInvestmentLimit(ctx context.Context, investorID, annualIncome, netWorth string) (*InvestmentLimit, error) {
	var raw json.RawMessage
	err := c.Call(ctx, "calculate_investment_limit", map[string]any{
		"p_investor_id":   investorID,
		"p_annual_income": json.Number(annualIncome),
		"p_net_worth":     json.Number(netWorth),
	}, &raw)
	if err != nil {
		return nil, err
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] == '[' {
		var rows []InvestmentLimit
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("calculate_investment_limit: %w", err)
		}
		if len(rows) == 0 {
			return nil, nil
		}
		return &rows[0], nil
	}

	var row InvestmentLimit
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("calculate_investment_limit: %w", err)
	}
	return &row, nil
}
