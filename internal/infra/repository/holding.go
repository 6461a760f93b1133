package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nexusholdings/nexus/internal/infra/database/models"
)

type HoldingRepository struct {
	db *gorm.DB
}

func NewHoldingRepository(db *gorm.DB) *HoldingRepository {
	return &HoldingRepository{db: db}
}

// Ownership returns the holder's shares and the subsidiary's total shares
// outstanding. A holder without a row owns zero shares.
func (r *HoldingRepository) Ownership(ctx context.Context, subsidiaryID, holderID string) (float64, float64, error) {
	var shares float64
	var total float64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var holding models.Holding
		err := tx.Where("subsidiary_id = ? AND holder_id = ?", subsidiaryID, holderID).Take(&holding).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		shares = holding.Shares

		return tx.Model(&models.Holding{}).
			Where("subsidiary_id = ?", subsidiaryID).
			Select("COALESCE(SUM(shares), 0)").
			Scan(&total).Error
	})
	return shares, total, err
}

// SetShares records the holder's current position, replacing any previous one.
func (r *HoldingRepository) SetShares(ctx context.Context, subsidiaryID, holderID string, shares float64) error {
	holding := models.Holding{SubsidiaryID: subsidiaryID, HolderID: holderID, Shares: shares}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subsidiary_id"}, {Name: "holder_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"shares"}),
	}).Create(&holding).Error
}
