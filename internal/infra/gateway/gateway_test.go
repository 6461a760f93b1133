package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nexusholdings/nexus/client"
	"github.com/nexusholdings/nexus/internal/domain"
	"github.com/nexusholdings/nexus/internal/utils"
)

func newRPCServer(t *testing.T, responses map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if r.Header.Get("apikey") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var params map[string]any
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			t.Errorf("invalid body: %v", err)
		}

		fn := strings.TrimPrefix(r.URL.Path, "/rpc/")
		body, ok := responses[fn]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRPCPolicyGateway(t *testing.T) {
	srv := newRPCServer(t, map[string]string{
		"is_subsidiary_admin":        "true",
		"is_super_admin":             "false",
		"calculate_vote_weight":      "250",
		"is_proposal_approved":       "true",
		"calculate_investment_limit": `[{"max_investment": 5000, "limit_description": "Reg A", "legal_reference": "17 CFR 230.251(d)(2)(i)(C)"}]`,
	})
	gw := NewRPCPolicyGateway(client.New(srv.URL, "secret", client.Options{}))
	ctx := context.Background()

	if ok, err := gw.IsSubsidiaryAdmin(ctx, "u1", "sub-1"); err != nil || !ok {
		t.Fatalf("expected admin, got %v %v", ok, err)
	}
	if ok, err := gw.IsSuperAdmin(ctx, "u1"); err != nil || ok {
		t.Fatalf("expected non super admin, got %v %v", ok, err)
	}

	weight, err := gw.CalculateVoteWeight(ctx, domain.Proposal{ID: "p1", SubsidiaryID: "sub-1"}, "u1")
	if err != nil || weight.Weight != 250 || weight.Snapshot.Source != "rpc" {
		t.Fatalf("unexpected weight %+v %v", weight, err)
	}

	if ok, err := gw.IsProposalApproved(ctx, domain.Proposal{ID: "p1"}); err != nil || !ok {
		t.Fatalf("expected approved, got %v %v", ok, err)
	}

	rule, err := gw.CalculateInvestmentLimit(ctx, domain.InvestorProfile{UserID: "u1"}, domain.AccreditationResponse{
		AnnualIncome: decimal.NewFromInt(50000),
		NetWorth:     decimal.NewFromInt(40000),
	})
	if err != nil {
		t.Fatalf("limit failed: %v", err)
	}
	if rule == nil || !rule.MaxInvestment.Equal(decimal.NewFromInt(5000)) || rule.Description != "Reg A" {
		t.Fatalf("unexpected rule %+v", rule)
	}
}

func TestRPCPolicyGatewayEmptyAndErrors(t *testing.T) {
	srv := newRPCServer(t, map[string]string{
		"calculate_investment_limit": `[]`,
		"calculate_vote_weight":      `null`,
	})
	gw := NewRPCPolicyGateway(client.New(srv.URL, "secret", client.Options{}))
	ctx := context.Background()

	rule, err := gw.CalculateInvestmentLimit(ctx, domain.InvestorProfile{UserID: "u1"}, domain.AccreditationResponse{})
	if err != nil || rule != nil {
		t.Fatalf("expected no rule, got %+v %v", rule, err)
	}

	if _, err := gw.CalculateVoteWeight(ctx, domain.Proposal{ID: "p1"}, "u1"); err == nil {
		t.Fatalf("expected error for null weight")
	}
	if _, err := gw.IsProposalApproved(ctx, domain.Proposal{ID: "p1"}); err == nil {
		t.Fatalf("expected error for unknown function")
	}

	unauthorized := NewRPCPolicyGateway(client.New(srv.URL, "wrong", client.Options{}))
	if _, err := unauthorized.IsSuperAdmin(ctx, "u1"); err == nil {
		t.Fatalf("expected error for rejected key")
	}
}

type countingRoles struct {
	calls atomic.Int32
	err   error
}

func (c *countingRoles) IsSubsidiaryAdmin(ctx context.Context, userID, subsidiaryID string) (bool, error) {
	c.calls.Add(1)
	return subsidiaryID == "sub-1", c.err
}

func (c *countingRoles) IsSuperAdmin(ctx context.Context, userID string) (bool, error) {
	c.calls.Add(1)
	return false, c.err
}

func TestCachedRoleChecker(t *testing.T) {
	inner := &countingRoles{}
	roles := NewCachedRoleChecker(inner, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := roles.IsSubsidiaryAdmin(ctx, "u1", "sub-1")
		if err != nil || !ok {
			t.Fatalf("expected admin, got %v %v", ok, err)
		}
	}
	if inner.calls.Load() != 1 {
		t.Fatalf("expected one upstream call, got %d", inner.calls.Load())
	}

	if ok, _ := roles.IsSubsidiaryAdmin(ctx, "u1", "sub-2"); ok {
		t.Fatalf("expected non admin for sub-2")
	}
	if inner.calls.Load() != 2 {
		t.Fatalf("expected separate cache entry per subsidiary")
	}
}

func TestCachedRoleCheckerDoesNotCacheErrors(t *testing.T) {
	inner := &countingRoles{err: errors.New("down")}
	roles := NewCachedRoleChecker(inner, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := roles.IsSuperAdmin(ctx, "u1"); err == nil {
			t.Fatalf("expected error")
		}
	}
	if inner.calls.Load() != 2 {
		t.Fatalf("expected errors to bypass cache, got %d calls", inner.calls.Load())
	}
}

type staticLimitEngine struct {
	calls int
}

func (s *staticLimitEngine) CalculateInvestmentLimit(ctx context.Context, profile domain.InvestorProfile, accreditation domain.AccreditationResponse) (*domain.LimitRule, error) {
	s.calls++
	return &domain.LimitRule{MaxInvestment: decimal.NewFromInt(5000), LegalReference: "ref"}, nil
}

func TestCachedLimitEngineFallsThroughWhenCacheDown(t *testing.T) {
	utils.SetLogger(zap.NewNop())

	inner := &staticLimitEngine{}
	mc := memcache.New("127.0.0.1:1")
	mc.Timeout = 100 * time.Millisecond
	engine := NewCachedLimitEngine(inner, mc, time.Minute)

	rule, err := engine.CalculateInvestmentLimit(context.Background(), domain.InvestorProfile{UserID: "u1"}, domain.AccreditationResponse{ID: "a1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rule == nil || !rule.MaxInvestment.Equal(decimal.NewFromInt(5000)) || inner.calls != 1 {
		t.Fatalf("expected rule from inner engine, got %+v after %d calls", rule, inner.calls)
	}
}

func TestLimitCacheKey(t *testing.T) {
	profile := domain.InvestorProfile{UserID: "u1", AccreditationStatus: domain.AccreditationNonAccredited, IsUSPerson: true}
	accreditation := domain.AccreditationResponse{ID: "a1", AnnualIncome: decimal.NewFromInt(50000), NetWorth: decimal.NewFromInt(40000)}

	first := limitCacheKey(profile, accreditation)
	if first != limitCacheKey(profile, accreditation) {
		t.Fatalf("expected stable key")
	}
	if len(first) > 250 || strings.ContainsAny(first, " \n") {
		t.Fatalf("invalid memcache key %q", first)
	}

	profile.IsUSPerson = false
	if first == limitCacheKey(profile, accreditation) {
		t.Fatalf("expected key to change with residency")
	}
}
