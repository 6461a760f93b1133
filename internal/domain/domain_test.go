package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestProposalTransitions(t *testing.T) {
	allowed := map[[2]ProposalStatus]bool{
		{ProposalDraft, ProposalVoting}:      true,
		{ProposalVoting, ProposalApproved}:   true,
		{ProposalVoting, ProposalRejected}:   true,
		{ProposalApproved, ProposalExecuted}: true,
	}
	all := []ProposalStatus{ProposalDraft, ProposalVoting, ProposalApproved, ProposalExecuted, ProposalRejected}

	for _, from := range all {
		for _, to := range all {
			got := from.CanTransitionTo(to)
			if got != allowed[[2]ProposalStatus{from, to}] {
				t.Fatalf("%s -> %s: expected %v got %v", from, to, !got, got)
			}
		}
	}

	if !ProposalExecuted.Terminal() || !ProposalRejected.Terminal() || ProposalApproved.Terminal() {
		t.Fatalf("unexpected terminal states")
	}
}

func TestDeadlinePassed(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	before := now.Add(-time.Second)
	after := now.Add(time.Second)

	if (Proposal{}).DeadlinePassed(now) {
		t.Fatalf("nil deadline must never pass")
	}
	if !(Proposal{VoteEndAt: &before}).DeadlinePassed(now) {
		t.Fatalf("expected passed deadline")
	}
	if (Proposal{VoteEndAt: &after}).DeadlinePassed(now) {
		t.Fatalf("expected open deadline")
	}
}

func TestNewInvestmentLimitFloor(t *testing.T) {
	rule := LimitRule{MaxInvestment: decimal.NewFromInt(5000), LegalReference: "ref"}

	cases := []struct {
		total     int64
		remaining int64
	}{
		{0, 5000},
		{3000, 2000},
		{5000, 0},
		{9000, 0},
		{-100, 5000},
	}

	for _, tc := range cases {
		limit := NewInvestmentLimit(rule, decimal.NewFromInt(tc.total))
		if !limit.RemainingCapacity.Equal(decimal.NewFromInt(tc.remaining)) {
			t.Fatalf("total %d: expected remaining %d got %s", tc.total, tc.remaining, limit.RemainingCapacity)
		}
		if limit.RemainingCapacity.IsNegative() || limit.RemainingCapacity.GreaterThan(limit.MaxInvestment) {
			t.Fatalf("total %d: remaining %s out of bounds", tc.total, limit.RemainingCapacity)
		}
	}
}

func TestFormatUSD(t *testing.T) {
	cases := map[string]string{
		"5000":                 "$5,000.00",
		"2000.5":               "$2,000.50",
		"0":                    "$0.00",
		"1234567":              "$1,234,567.00",
		"999999999999.99":      "$999,999,999,999.99",
		"12345678901234567.89": "$12,345,678,901,234,567.89",
		"0.005":                "$0.01",
		"1999.999":             "$2,000.00",
		"-1234.5":              "-$1,234.50",
	}
	for in, expected := range cases {
		if got := FormatUSD(decimal.RequireFromString(in)); got != expected {
			t.Fatalf("%s: expected %s got %s", in, expected, got)
		}
	}
}

func TestFormatUSDIsExact(t *testing.T) {
	sum := decimal.RequireFromString("0.1").Add(decimal.RequireFromString("0.2"))
	if got := FormatUSD(sum); got != "$0.30" {
		t.Fatalf("expected $0.30 got %s", got)
	}
	precise := decimal.RequireFromString("9007199254740993.01")
	if got := FormatUSD(precise); got != "$9,007,199,254,740,993.01" {
		t.Fatalf("expected exact digits past float64 precision, got %s", got)
	}
}

func TestInternational(t *testing.T) {
	if (InvestorProfile{IsUSPerson: true}).International() {
		t.Fatalf("US person without country is domestic")
	}
	if !(InvestorProfile{IsUSPerson: true, ResidenceCountry: "FR"}).International() {
		t.Fatalf("US person abroad is international")
	}
	if !(InvestorProfile{IsUSPerson: false, ResidenceCountry: "US"}).International() {
		t.Fatalf("non-US person is international")
	}
}

func TestErrorMatching(t *testing.T) {
	wrapped := fmt.Errorf("wrap: %w", ConflictError{Reason: "dup"})
	if !errors.Is(wrapped, ErrConflict) {
		t.Fatalf("expected conflict match")
	}
	if errors.Is(wrapped, ErrNotFound) {
		t.Fatalf("unexpected not found match")
	}

	cause := errors.New("timeout")
	dep := DependencyError{Dependency: "rpc", Err: cause}
	if !errors.Is(dep, ErrDependency) || !errors.Is(dep, cause) {
		t.Fatalf("expected dependency error to match itself and its cause")
	}
}
