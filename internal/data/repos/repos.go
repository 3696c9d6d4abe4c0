package repos

import (
	"github.com/yungbote/datasetagg/internal/data/repos/datasets"
	"github.com/yungbote/datasetagg/internal/platform/logger"
	"gorm.io/gorm"
)

type DatasetRepo = datasets.DatasetRepo
type ObservationRepo = datasets.ObservationRepo
type CalculationRepo = datasets.CalculationRepo

func NewDatasetRepo(db *gorm.DB, baseLog *logger.Logger) DatasetRepo {
	return datasets.NewDatasetRepo(db, baseLog)
}
func NewObservationRepo(db *gorm.DB, baseLog *logger.Logger) ObservationRepo {
	return datasets.NewObservationRepo(db, baseLog)
}
func NewCalculationRepo(db *gorm.DB, baseLog *logger.Logger) CalculationRepo {
	return datasets.NewCalculationRepo(db, baseLog)
}
