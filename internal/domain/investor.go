package domain

import (
	"math/big"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

type AccreditationStatus string

const (
	AccreditationUnknown            AccreditationStatus = "unknown"
	AccreditationNonAccredited      AccreditationStatus = "non_accredited"
	AccreditationAccredited         AccreditationStatus = "accredited"
	AccreditationQualifiedPurchaser AccreditationStatus = "qualified_purchaser"
)

func (s AccreditationStatus) Valid() bool {
	switch s {
	case AccreditationUnknown, AccreditationNonAccredited, AccreditationAccredited, AccreditationQualifiedPurchaser:
		return true
	default:
		return false
	}
}

// Uncapped reports whether the status carries no numeric investment cap.
func (s AccreditationStatus) Uncapped() bool {
	return s == AccreditationAccredited || s == AccreditationQualifiedPurchaser
}

type VerifiedStatus string

const (
	VerifiedPending       VerifiedStatus = "pending"
	VerifiedVerified      VerifiedStatus = "verified"
	VerifiedRejected      VerifiedStatus = "rejected"
	VerifiedNeedsMoreInfo VerifiedStatus = "needs_more_info"
)

// Reviewable reports whether a reviewer may set a response to s.
func (s VerifiedStatus) Reviewable() bool {
	return s == VerifiedVerified || s == VerifiedRejected || s == VerifiedNeedsMoreInfo
}

// InvestorProfile is owned by the investor. TotalInvested only moves through
// confirmed investment events.
type InvestorProfile struct {
	UserID              string              `json:"userId"`
	AccreditationStatus AccreditationStatus `json:"accreditationStatus"`
	ResidenceState      string              `json:"residenceState,omitempty"`
	ResidenceCountry    string              `json:"residenceCountry,omitempty"`
	IsUSPerson          bool                `json:"isUsPerson"`
	TotalInvested       decimal.Decimal     `json:"totalInvested"`
	OnboardingStep      int                 `json:"onboardingStep"`
	UpdatedAt           time.Time           `json:"updatedAt"`
}

// International reports whether the investor falls under the non-domestic cap.
func (p InvestorProfile) International() bool {
	if !p.IsUSPerson {
		return true
	}
	return p.ResidenceCountry != "" && p.ResidenceCountry != "US"
}

// AccreditationResponse is immutable once created except for VerifiedStatus.
// ClaimedStatus is the profile status the reviewer verified against.
type AccreditationResponse struct {
	ID             string              `json:"id"`
	UserID         string              `json:"userId"`
	ClaimedStatus  AccreditationStatus `json:"claimedStatus"`
	AnnualIncome   decimal.Decimal     `json:"annualIncome"`
	JointIncome    decimal.Decimal     `json:"jointIncome"`
	NetWorth       decimal.Decimal     `json:"netWorth"`
	VerifiedStatus VerifiedStatus      `json:"verifiedStatus"`
	ReviewedBy     *string             `json:"reviewedBy,omitempty"`
	ReviewedAt     *time.Time          `json:"reviewedAt,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
}

// Covers reports whether a verified response still vouches for profile.
func (a AccreditationResponse) Covers(profile InvestorProfile) bool {
	return a.VerifiedStatus == VerifiedVerified && a.ClaimedStatus == profile.AccreditationStatus
}

// LimitRule is what a limit rule engine returns for an investor.
type LimitRule struct {
	MaxInvestment  decimal.Decimal `json:"maxInvestment"`
	Description    string          `json:"description"`
	LegalReference string          `json:"legalReference"`
}

// InvestmentLimit is derived on demand and never stored.
type InvestmentLimit struct {
	MaxInvestment     decimal.Decimal `json:"maxInvestment"`
	RemainingCapacity decimal.Decimal `json:"remainingCapacity"`
	Description       string          `json:"description,omitempty"`
	LegalReference    string          `json:"legalReference"`
}

// NewInvestmentLimit derives capacity from a rule. RemainingCapacity stays within
// [0, MaxInvestment]; cap overruns are absorbed here rather than reported.
func NewInvestmentLimit(rule LimitRule, totalInvested decimal.Decimal) InvestmentLimit {
	remaining := rule.MaxInvestment.Sub(totalInvested)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	if remaining.GreaterThan(rule.MaxInvestment) {
		remaining = rule.MaxInvestment
	}
	return InvestmentLimit{
		MaxInvestment:     rule.MaxInvestment,
		RemainingCapacity: remaining,
		Description:       rule.Description,
		LegalReference:    rule.LegalReference,
	}
}

type Eligibility struct {
	Allowed bool             `json:"allowed"`
	Reason  string           `json:"reason,omitempty"`
	Limit   *InvestmentLimit `json:"limit,omitempty"`
}

type InvestorStatus struct {
	Profile       InvestorProfile        `json:"profile"`
	Accreditation *AccreditationResponse `json:"accreditation,omitempty"`
	Limit         *InvestmentLimit       `json:"limit,omitempty"`
}

// FormatUSD renders an amount as "$1,234.56" without passing through float64.
func FormatUSD(amount decimal.Decimal) string {
	fixed := amount.StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	whole, cents, _ := strings.Cut(fixed, ".")
	n, ok := new(big.Int).SetString(whole, 10)
	if !ok {
		return sign + "$" + fixed
	}
	return sign + "$" + humanize.BigComma(n) + "." + cents
}
