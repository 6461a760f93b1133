package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nexusholdings/nexus/internal/infra/database/models"
)

// RoleRepository answers role checks from the admin_roles table.
type RoleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) IsSubsidiaryAdmin(ctx context.Context, userID, subsidiaryID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.AdminRole{}).
		Where("user_id = ? AND subsidiary_id = ? AND role = ?", userID, subsidiaryID, models.RoleSubsidiaryAdmin).
		Count(&count).Error
	return count > 0, err
}

func (r *RoleRepository) IsSuperAdmin(ctx context.Context, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.AdminRole{}).
		Where("user_id = ? AND role = ?", userID, models.RoleSuperAdmin).
		Count(&count).Error
	return count > 0, err
}

// GrantSubsidiaryAdmin is idempotent.
func (r *RoleRepository) GrantSubsidiaryAdmin(ctx context.Context, userID, subsidiaryID string) error {
	return r.grant(ctx, models.AdminRole{UserID: userID, SubsidiaryID: subsidiaryID, Role: models.RoleSubsidiaryAdmin})
}

func (r *RoleRepository) GrantSuperAdmin(ctx context.Context, userID string) error {
	return r.grant(ctx, models.AdminRole{UserID: userID, Role: models.RoleSuperAdmin})
}

func (r *RoleRepository) grant(ctx context.Context, role models.AdminRole) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&role).Error
}
