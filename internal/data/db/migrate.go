package db

import (
	types "github.com/yungbote/datasetagg/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.Dataset{},
		&types.Observation{},
		&types.Calculation{},
	)
}
