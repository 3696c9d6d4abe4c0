package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/datasetagg/internal/data/repos"
	"github.com/yungbote/datasetagg/internal/platform/logger"
)

type Repos struct {
	Datasets     repos.DatasetRepo
	Observations repos.ObservationRepo
	Calculations repos.CalculationRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Datasets:     repos.NewDatasetRepo(db, log),
		Observations: repos.NewObservationRepo(db, log),
		Calculations: repos.NewCalculationRepo(db, log),
	}
}
