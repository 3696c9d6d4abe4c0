package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/datasetagg/internal/config"
	"github.com/yungbote/datasetagg/internal/data/aggregates"
	"github.com/yungbote/datasetagg/internal/data/db"
	"github.com/yungbote/datasetagg/internal/locks"
	"github.com/yungbote/datasetagg/internal/observability"
	"github.com/yungbote/datasetagg/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      config.Config
	Repos    Repos
	Services Services
	Metrics  *observability.Metrics

	dbService    *db.Service
	redis        *goredis.Client
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

// New wires a ready App from cfg. The caller owns Close.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Sync()
		return nil, err
	}

	dbService, err := db.NewService(db.Options{
		Driver:        cfg.DB.Driver,
		DSN:           cfg.DB.DSN,
		MaxOpenConns:  cfg.DB.MaxOpenConns,
		SlowThreshold: cfg.DB.SlowThreshold,
	}, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init db: %w", err)
	}
	theDB := dbService.DB()
	if err := db.AutoMigrateAll(theDB); err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, fmt.Errorf("db automigrate: %w", err)
	}

	a := &App{Log: log, DB: theDB, Cfg: cfg, dbService: dbService}

	a.otelShutdown = observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.Otel.Enabled,
		ServiceName: cfg.Otel.ServiceName,
		Environment: cfg.Otel.Environment,
		Endpoint:    cfg.Otel.Endpoint,
		Headers:     cfg.Otel.Headers,
		Insecure:    cfg.Otel.Insecure,
		SampleRatio: cfg.Otel.SampleRatio,
	})
	a.Metrics = observability.Init(log, cfg.Metrics.Enabled)
	a.Metrics.SetScrapeInterval(cfg.Metrics.ScrapeInterval)

	locker, err := a.wireLocker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	hooks := aggregates.NewObservabilityHooks(a.Metrics)
	a.Repos = wireRepos(theDB, log)
	a.Services = wireServices(theDB, log, cfg, a.Repos, locker, hooks)

	log.Info("app wired",
		"db_driver", dbService.Driver(),
		"distributed_locks", a.redis != nil,
		"metrics", a.Metrics != nil,
		"max_concurrency", cfg.MaxConcurrency,
	)
	return a, nil
}

// wireLocker uses Redis leases when an address is configured so several
// processes can share one database; otherwise an in-process keyed mutex.
func (a *App) wireLocker(ctx context.Context) (locks.Locker, error) {
	if a.Cfg.Redis.Addr == "" {
		return locks.NewKeyedMutex(), nil
	}
	rdb, err := locks.DialRedis(ctx, a.Cfg.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("init redis locker: %w", err)
	}
	a.redis = rdb
	return locks.NewRedisLocker(rdb, a.Log, locks.RedisOptions{
		Prefix: a.Cfg.Lock.Prefix,
		TTL:    a.Cfg.Lock.TTL,
		Poll:   a.Cfg.Lock.Poll,
	}), nil
}

// Start runs the background collectors and the metrics endpoint until Close.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Metrics != nil {
		a.Metrics.StartServer(ctx, a.Log, a.Cfg.Metrics.Addr)
		a.Metrics.StartDBCollector(ctx, a.Log, a.DB)
		if a.redis != nil {
			a.Metrics.StartRedisCollector(ctx, a.Log, a.redis)
		}
	}
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(context.Background()); err != nil && a.Log != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.dbService != nil {
		_ = a.dbService.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
