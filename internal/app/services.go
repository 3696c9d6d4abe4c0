package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/datasetagg/internal/aggregator"
	"github.com/yungbote/datasetagg/internal/config"
	"github.com/yungbote/datasetagg/internal/data/aggregates"
	"github.com/yungbote/datasetagg/internal/formula"
	"github.com/yungbote/datasetagg/internal/locks"
	"github.com/yungbote/datasetagg/internal/platform/logger"
	"github.com/yungbote/datasetagg/internal/services"
)

type Services struct {
	Store        *aggregates.Store
	Calculations services.CalculationService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg config.Config, reposet Repos, locker locks.Locker, hooks aggregates.MetricsHooks) Services {
	log.Info("Wiring services...")
	store := aggregates.NewStore(aggregates.BaseDeps{
		DB:    db,
		Log:   log,
		Hooks: hooks,
	})
	calcs := services.NewCalculationService(services.CalculationServiceDeps{
		Log:   log,
		Store: store,
		Calcs: reposet.Calculations,
		Aggregator: aggregator.Deps{
			Locker:   locker,
			Resolver: formula.NewResolver(),
			Hooks:    hooks,
		},
		MaxConcurrency: cfg.MaxConcurrency,
	})
	return Services{Store: store, Calculations: calcs}
}
