package models

const (
	RoleSubsidiaryAdmin = "subsidiary_admin"
	RoleSuperAdmin      = "super_admin"
)

// AdminRole grants Role to UserID. Super admin rows carry an empty SubsidiaryID.
type AdminRole struct {
	UserID       string `json:"userId" gorm:"primaryKey;type:text"`
	SubsidiaryID string `json:"subsidiaryId" gorm:"primaryKey;type:text"`
	Role         string `json:"role" gorm:"primaryKey;type:text"`
}

type Holding struct {
	SubsidiaryID string  `json:"subsidiaryId" gorm:"primaryKey;type:text"`
	HolderID     string  `json:"holderId" gorm:"primaryKey;type:text"`
	Shares       float64 `json:"shares" gorm:"type:double precision;not null;default:0"`
}
