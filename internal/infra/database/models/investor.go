package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvestorProfile struct {
	UserID              string          `json:"userId" gorm:"primaryKey;type:text"`
	AccreditationStatus string          `json:"accreditationStatus" gorm:"type:text;not null;default:unknown"`
	ResidenceState      string          `json:"residenceState" gorm:"type:text"`
	ResidenceCountry    string          `json:"residenceCountry" gorm:"type:text"`
	IsUSPerson          bool            `json:"isUsPerson" gorm:"not null"`
	TotalInvested       decimal.Decimal `json:"totalInvested" gorm:"type:numeric;not null;default:0"`
	OnboardingStep      int             `json:"onboardingStep" gorm:"not null;default:0"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

type AccreditationResponse struct {
	ID             string          `json:"id" gorm:"primaryKey;type:text"`
	UserID         string          `json:"userId" gorm:"type:text;not null;index:idx_accreditation_user_created,priority:1"`
	ClaimedStatus  string          `json:"claimedStatus" gorm:"type:text;not null;default:unknown"`
	AnnualIncome   decimal.Decimal `json:"annualIncome" gorm:"type:numeric;not null;default:0"`
	JointIncome    decimal.Decimal `json:"jointIncome" gorm:"type:numeric;not null;default:0"`
	NetWorth       decimal.Decimal `json:"netWorth" gorm:"type:numeric;not null;default:0"`
	VerifiedStatus string          `json:"verifiedStatus" gorm:"type:text;not null;default:pending"`
	ReviewedBy     *string         `json:"reviewedBy" gorm:"type:text"`
	ReviewedAt     *time.Time      `json:"reviewedAt"`
	CreatedAt      time.Time       `json:"createdAt" gorm:"index:idx_accreditation_user_created,priority:2"`
}
