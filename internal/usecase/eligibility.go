package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nexusholdings/nexus/internal/domain"
	"github.com/nexusholdings/nexus/internal/metrics"
)

var tracer = otel.Tracer("usecase")

const (
	ReasonVerificationRequired = "Accreditation verification required before investing."
	ReasonPendingReview        = "Your accreditation is pending review."
	ReasonNotVerified          = "Your accreditation has not been verified."
	ReasonLimitUndetermined    = "Unable to determine your investment limit."
	ReasonStatusChanged        = "Your accreditation status changed since it was verified. Please resubmit for review."
	reasonExceedsCapacity      = "Amount exceeds your remaining investment capacity of %s."
)

// ProfileInput carries the investor-editable profile fields. Nil fields are left unchanged.
type ProfileInput struct {
	AccreditationStatus *domain.AccreditationStatus
	ResidenceState      *string
	ResidenceCountry    *string
	IsUSPerson          *bool
	OnboardingStep      *int
}

type AccreditationInput struct {
	AnnualIncome decimal.Decimal
	JointIncome  decimal.Decimal
	NetWorth     decimal.Decimal
}

type EligibilityUsecase struct {
	investors InvestorRepository
	limits    LimitEngine
	roles     RoleChecker
	activity  ActivityLogger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewEligibilityUsecase(
	investors InvestorRepository,
	limits LimitEngine,
	roles RoleChecker,
	activity ActivityLogger,
	m *metrics.Metrics,
) *EligibilityUsecase {
	return &EligibilityUsecase{
		investors: investors,
		limits:    limits,
		roles:     roles,
		activity:  activity,
		metrics:   m,
		now:       time.Now,
	}
}

// profile returns the stored profile, or an unknown-status profile when the
// investor has never saved one.
func (uc *EligibilityUsecase) profile(ctx context.Context, userID string) (domain.InvestorProfile, error) {
	profile, err := uc.investors.GetProfile(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.InvestorProfile{
			UserID:              userID,
			AccreditationStatus: domain.AccreditationUnknown,
			IsUSPerson:          true,
			TotalInvested:       decimal.Zero,
		}, nil
	}
	return profile, err
}

func (uc *EligibilityUsecase) limit(ctx context.Context, profile domain.InvestorProfile, accreditation domain.AccreditationResponse) (*domain.InvestmentLimit, error) {
	rule, err := uc.limits.CalculateInvestmentLimit(ctx, profile, accreditation)
	if err != nil {
		return nil, domain.DependencyError{Dependency: "investment limit engine", Err: err}
	}
	if rule == nil {
		return nil, nil
	}
	limit := domain.NewInvestmentLimit(*rule, profile.TotalInvested)
	return &limit, nil
}

// Evaluate decides whether userID may invest amount now. It reads state only.
func (uc *EligibilityUsecase) Evaluate(ctx context.Context, userID string, amount decimal.Decimal) (domain.Eligibility, error) {
	ctx, span := tracer.Start(ctx, "Eligibility.Usecase.Evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("userId", userID))

	if !amount.IsPositive() {
		return domain.Eligibility{}, domain.ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}

	result, err := uc.evaluate(ctx, userID, amount)
	if err != nil {
		span.RecordError(err)
		return domain.Eligibility{}, err
	}

	uc.metrics.ObserveEligibility(result.Allowed)
	return result, nil
}

func (uc *EligibilityUsecase) evaluate(ctx context.Context, userID string, amount decimal.Decimal) (domain.Eligibility, error) {
	profile, err := uc.profile(ctx, userID)
	if err != nil {
		return domain.Eligibility{}, err
	}
	if profile.AccreditationStatus == domain.AccreditationUnknown || !profile.AccreditationStatus.Valid() {
		return domain.Eligibility{Reason: ReasonVerificationRequired}, nil
	}

	accreditation, err := uc.investors.LatestAccreditation(ctx, userID)
	if err != nil {
		return domain.Eligibility{}, err
	}
	if accreditation == nil {
		return domain.Eligibility{Reason: ReasonNotVerified}, nil
	}
	switch accreditation.VerifiedStatus {
	case domain.VerifiedVerified:
	case domain.VerifiedPending:
		return domain.Eligibility{Reason: ReasonPendingReview}, nil
	default:
		return domain.Eligibility{Reason: ReasonNotVerified}, nil
	}
	if !accreditation.Covers(profile) {
		return domain.Eligibility{Reason: ReasonStatusChanged}, nil
	}

	limit, err := uc.limit(ctx, profile, *accreditation)
	if err != nil {
		return domain.Eligibility{}, err
	}
	if limit == nil {
		return domain.Eligibility{Reason: ReasonLimitUndetermined}, nil
	}

	if amount.GreaterThan(limit.RemainingCapacity) {
		return domain.Eligibility{
			Reason: fmt.Sprintf(reasonExceedsCapacity, domain.FormatUSD(limit.RemainingCapacity)),
			Limit:  limit,
		}, nil
	}

	return domain.Eligibility{Allowed: true, Limit: limit}, nil
}

// Status reports the profile, the latest accreditation response and, when the
// response is verified for the current profile status, the current limit.
func (uc *EligibilityUsecase) Status(ctx context.Context, userID string) (domain.InvestorStatus, error) {
	ctx, span := tracer.Start(ctx, "Eligibility.Usecase.Status")
	defer span.End()

	profile, err := uc.profile(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return domain.InvestorStatus{}, err
	}

	accreditation, err := uc.investors.LatestAccreditation(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return domain.InvestorStatus{}, err
	}

	status := domain.InvestorStatus{Profile: profile, Accreditation: accreditation}
	if accreditation == nil || !accreditation.Covers(profile) {
		return status, nil
	}
	if profile.AccreditationStatus == domain.AccreditationUnknown {
		return status, nil
	}

	status.Limit, err = uc.limit(ctx, profile, *accreditation)
	if err != nil {
		span.RecordError(err)
		return domain.InvestorStatus{}, err
	}
	return status, nil
}

// RecordInvestment adds a confirmed commitment to the investor's running total.
// Call it only once the investment is committed.
func (uc *EligibilityUsecase) RecordInvestment(ctx context.Context, userID string, amount decimal.Decimal) (domain.InvestorProfile, error) {
	ctx, span := tracer.Start(ctx, "Eligibility.Usecase.RecordInvestment")
	defer span.End()

	if !amount.IsPositive() {
		return domain.InvestorProfile{}, domain.ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}

	profile, err := uc.investors.IncrementTotalInvested(ctx, userID, amount)
	if err != nil {
		span.RecordError(err)
		return domain.InvestorProfile{}, err
	}

	uc.metrics.ObserveInvestment()
	uc.activity.Log(ctx, domain.Activity{
		TargetType: domain.ActivityTargetInvestor,
		TargetID:   userID,
		ActorID:    userID,
		ActionType: domain.ActivityInvestmentRecorded,
		Details: map[string]any{
			"amount":        amount.String(),
			"totalInvested": profile.TotalInvested.String(),
		},
	})

	return profile, nil
}

// UpdateProfile applies investor-editable fields. TotalInvested is never touched here.
// A changed AccreditationStatus is not trusted until a new response claiming it
// is verified.
func (uc *EligibilityUsecase) UpdateProfile(ctx context.Context, userID string, input ProfileInput) (domain.InvestorProfile, error) {
	ctx, span := tracer.Start(ctx, "Eligibility.Usecase.UpdateProfile")
	defer span.End()

	if input.AccreditationStatus != nil && !input.AccreditationStatus.Valid() {
		return domain.InvestorProfile{}, domain.ValidationError{Field: "accreditationStatus", Reason: "unrecognized status"}
	}
	if input.OnboardingStep != nil && *input.OnboardingStep < 0 {
		return domain.InvestorProfile{}, domain.ValidationError{Field: "onboardingStep", Reason: "must not be negative"}
	}

	profile, err := uc.profile(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return domain.InvestorProfile{}, err
	}

	if input.AccreditationStatus != nil {
		profile.AccreditationStatus = *input.AccreditationStatus
	}
	if input.ResidenceState != nil {
		profile.ResidenceState = *input.ResidenceState
	}
	if input.ResidenceCountry != nil {
		profile.ResidenceCountry = *input.ResidenceCountry
	}
	if input.IsUSPerson != nil {
		profile.IsUSPerson = *input.IsUSPerson
	}
	if input.OnboardingStep != nil {
		profile.OnboardingStep = *input.OnboardingStep
	}
	profile.UpdatedAt = uc.now().UTC()

	return uc.investors.UpsertProfile(ctx, profile)
}

// SubmitAccreditation records a new self-reported response awaiting review. The
// response claims the profile's current accreditation status.
func (uc *EligibilityUsecase) SubmitAccreditation(ctx context.Context, userID string, input AccreditationInput) (domain.AccreditationResponse, error) {
	ctx, span := tracer.Start(ctx, "Eligibility.Usecase.SubmitAccreditation")
	defer span.End()

	for field, value := range map[string]decimal.Decimal{
		"annualIncome": input.AnnualIncome,
		"jointIncome":  input.JointIncome,
		"netWorth":     input.NetWorth,
	} {
		if value.IsNegative() {
			return domain.AccreditationResponse{}, domain.ValidationError{Field: field, Reason: "must not be negative"}
		}
	}

	profile, err := uc.profile(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return domain.AccreditationResponse{}, err
	}

	response := domain.AccreditationResponse{
		ID:             uuid.NewString(),
		UserID:         userID,
		ClaimedStatus:  profile.AccreditationStatus,
		AnnualIncome:   input.AnnualIncome,
		JointIncome:    input.JointIncome,
		NetWorth:       input.NetWorth,
		VerifiedStatus: domain.VerifiedPending,
		CreatedAt:      uc.now().UTC(),
	}
	if err := uc.investors.CreateAccreditation(ctx, response); err != nil {
		span.RecordError(err)
		return domain.AccreditationResponse{}, err
	}

	uc.activity.Log(ctx, domain.Activity{
		TargetType: domain.ActivityTargetInvestor,
		TargetID:   userID,
		ActorID:    userID,
		ActionType: domain.ActivityAccreditationSubmitted,
		Details: map[string]any{
			"accreditationId": response.ID,
			"claimedStatus":   string(response.ClaimedStatus),
		},
	})

	return response, nil
}

// ReviewAccreditation sets the verified status of a pending or needs-more-info
// response. Only super admins review.
func (uc *EligibilityUsecase) ReviewAccreditation(ctx context.Context, reviewer, id string, status domain.VerifiedStatus) (domain.AccreditationResponse, error) {
	ctx, span := tracer.Start(ctx, "Eligibility.Usecase.ReviewAccreditation")
	defer span.End()

	if !status.Reviewable() {
		return domain.AccreditationResponse{}, domain.ValidationError{Field: "verifiedStatus", Reason: "must be verified, rejected or needs_more_info"}
	}

	ok, err := uc.roles.IsSuperAdmin(ctx, reviewer)
	if err != nil {
		span.RecordError(err)
		return domain.AccreditationResponse{}, domain.DependencyError{Dependency: "role check", Err: err}
	}
	if !ok {
		return domain.AccreditationResponse{}, domain.ForbiddenError{Reason: "Only administrators can review accreditations"}
	}

	current, err := uc.investors.GetAccreditation(ctx, id)
	if err != nil {
		span.RecordError(err)
		return domain.AccreditationResponse{}, err
	}
	if current.VerifiedStatus != domain.VerifiedPending && current.VerifiedStatus != domain.VerifiedNeedsMoreInfo {
		return domain.AccreditationResponse{}, domain.ConflictError{Reason: "Accreditation has already been reviewed"}
	}

	updated, err := uc.investors.SetVerifiedStatus(ctx, id, status, reviewer, uc.now().UTC())
	if err != nil {
		span.RecordError(err)
		return domain.AccreditationResponse{}, err
	}

	uc.activity.Log(ctx, domain.Activity{
		TargetType: domain.ActivityTargetInvestor,
		TargetID:   updated.UserID,
		ActorID:    reviewer,
		ActionType: domain.ActivityAccreditationReviewed,
		Details: map[string]any{
			"accreditationId": id,
			"verifiedStatus":  string(status),
		},
	})

	return updated, nil
}
