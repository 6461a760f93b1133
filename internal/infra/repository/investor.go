package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nexusholdings/nexus/internal/domain"
	"github.com/nexusholdings/nexus/internal/infra/database/models"
)

type InvestorRepository struct {
	db *gorm.DB
}

func NewInvestorRepository(db *gorm.DB) *InvestorRepository {
	return &InvestorRepository{db: db}
}

func profileFromModel(m models.InvestorProfile) domain.InvestorProfile {
	return domain.InvestorProfile{
		UserID:              m.UserID,
		AccreditationStatus: domain.AccreditationStatus(m.AccreditationStatus),
		ResidenceState:      m.ResidenceState,
		ResidenceCountry:    m.ResidenceCountry,
		IsUSPerson:          m.IsUSPerson,
		TotalInvested:       m.TotalInvested,
		OnboardingStep:      m.OnboardingStep,
		UpdatedAt:           m.UpdatedAt,
	}
}

func accreditationFromModel(m models.AccreditationResponse) domain.AccreditationResponse {
	return domain.AccreditationResponse{
		ID:             m.ID,
		UserID:         m.UserID,
		ClaimedStatus:  domain.AccreditationStatus(m.ClaimedStatus),
		AnnualIncome:   m.AnnualIncome,
		JointIncome:    m.JointIncome,
		NetWorth:       m.NetWorth,
		VerifiedStatus: domain.VerifiedStatus(m.VerifiedStatus),
		ReviewedBy:     m.ReviewedBy,
		ReviewedAt:     m.ReviewedAt,
		CreatedAt:      m.CreatedAt,
	}
}

func (r *InvestorRepository) GetProfile(ctx context.Context, userID string) (domain.InvestorProfile, error) {
	var profile models.InvestorProfile
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.InvestorProfile{}, domain.NotFoundError{Resource: "investor profile"}
	}
	if err != nil {
		return domain.InvestorProfile{}, err
	}
	return profileFromModel(profile), nil
}

// UpsertProfile writes every investor-editable column. total_invested keeps its
// stored value on update.
func (r *InvestorRepository) UpsertProfile(ctx context.Context, profile domain.InvestorProfile) (domain.InvestorProfile, error) {
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = time.Now().UTC()
	}
	row := models.InvestorProfile{
		UserID:              profile.UserID,
		AccreditationStatus: string(profile.AccreditationStatus),
		ResidenceState:      profile.ResidenceState,
		ResidenceCountry:    profile.ResidenceCountry,
		IsUSPerson:          profile.IsUSPerson,
		TotalInvested:       decimal.Zero,
		OnboardingStep:      profile.OnboardingStep,
		UpdatedAt:           profile.UpdatedAt,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"accreditation_status",
				"residence_state",
				"residence_country",
				"is_us_person",
				"onboarding_step",
				"updated_at",
			}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
		return tx.Where("user_id = ?", profile.UserID).Take(&row).Error
	})
	if err != nil {
		return domain.InvestorProfile{}, err
	}
	return profileFromModel(row), nil
}

// LatestAccreditation returns nil when the investor never submitted a response.
func (r *InvestorRepository) LatestAccreditation(ctx context.Context, userID string) (*domain.AccreditationResponse, error) {
	var rows []models.AccreditationResponse
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	response := accreditationFromModel(rows[0])
	return &response, nil
}

func (r *InvestorRepository) GetAccreditation(ctx context.Context, id string) (domain.AccreditationResponse, error) {
	var row models.AccreditationResponse
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.AccreditationResponse{}, domain.NotFoundError{Resource: "accreditation response"}
	}
	if err != nil {
		return domain.AccreditationResponse{}, err
	}
	return accreditationFromModel(row), nil
}

func (r *InvestorRepository) CreateAccreditation(ctx context.Context, response domain.AccreditationResponse) error {
	row := models.AccreditationResponse{
		ID:             response.ID,
		UserID:         response.UserID,
		ClaimedStatus:  string(response.ClaimedStatus),
		AnnualIncome:   response.AnnualIncome,
		JointIncome:    response.JointIncome,
		NetWorth:       response.NetWorth,
		VerifiedStatus: string(response.VerifiedStatus),
		CreatedAt:      response.CreatedAt,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// SetVerifiedStatus is the only mutation of a stored response and applies only
// while it awaits review.
func (r *InvestorRepository) SetVerifiedStatus(ctx context.Context, id string, status domain.VerifiedStatus, reviewer string, at time.Time) (domain.AccreditationResponse, error) {
	var row models.AccreditationResponse
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.AccreditationResponse{}).
			Where("id = ? AND verified_status IN ?", id, []string{string(domain.VerifiedPending), string(domain.VerifiedNeedsMoreInfo)}).
			Updates(map[string]any{
				"verified_status": string(status),
				"reviewed_by":     reviewer,
				"reviewed_at":     at.UTC(),
			})
		if result.Error != nil {
			return result.Error
		}

		err := tx.Where("id = ?", id).Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.NotFoundError{Resource: "accreditation response"}
		}
		if err != nil {
			return err
		}
		if result.RowsAffected == 0 {
			return domain.ConflictError{Reason: "Accreditation has already been reviewed"}
		}
		return nil
	})
	if err != nil {
		return domain.AccreditationResponse{}, err
	}
	return accreditationFromModel(row), nil
}

// IncrementTotalInvested adds amount in a single relative UPDATE.
func (r *InvestorRepository) IncrementTotalInvested(ctx context.Context, userID string, amount decimal.Decimal) (domain.InvestorProfile, error) {
	var row models.InvestorProfile
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.InvestorProfile{}).
			Where("user_id = ?", userID).
			Updates(map[string]any{
				"total_invested": gorm.Expr("total_invested + ?", amount),
				"updated_at":     time.Now().UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.NotFoundError{Resource: "investor profile"}
		}
		return tx.Where("user_id = ?", userID).Take(&row).Error
	})
	if err != nil {
		return domain.InvestorProfile{}, err
	}
	return profileFromModel(row), nil
}
