package database

import (
	"gorm.io/gorm"

	"github.com/nexusholdings/nexus/internal/infra/database/models"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.InvestorProfile{},
		&models.AccreditationResponse{},
		&models.Proposal{},
		&models.Vote{},
		&models.Activity{},
		&models.AdminRole{},
		&models.Holding{},
	)
}
