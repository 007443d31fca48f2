package main

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/institute-timetable/internal/repository"
	"github.com/noah-isme/institute-timetable/internal/service"
	"github.com/noah-isme/institute-timetable/pkg/cache"
	"github.com/noah-isme/institute-timetable/pkg/config"
	"github.com/noah-isme/institute-timetable/pkg/database"
)

// stack holds the connections and services shared by serve and generate.
type stack struct {
	db         *sqlx.DB
	redis      *redis.Client
	metrics    *service.MetricsService
	timetables *service.TimetableService
}

func newStack(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*stack, error) {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	var metrics *service.MetricsService
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
	}

	timetableRepo := repository.NewTimetableRepository(db)
	registry := service.NewRegistryService(repository.NewRegistryRepository(db), timetableRepo, metrics, logr)
	materializer := service.NewMaterializer(timetableRepo, db, logr)
	cacheSvc := service.NewCacheService(
		repository.NewCacheRepository(redisClient, logr),
		metrics,
		cfg.Cache.TTL,
		logr,
		cfg.Cache.Enabled && redisClient != nil,
	)

	timetables := service.NewTimetableService(
		registry,
		materializer,
		timetableRepo,
		repository.NewRunLockRepository(redisClient),
		service.NewExportService(logr, nil, nil),
		cacheSvc,
		metrics,
		validator.New(),
		logr,
		service.TimetableServiceConfig{
			LabsFirst:        cfg.Scheduler.LabsFirst,
			RespectExisting:  cfg.Scheduler.RespectExisting,
			RunTimeout:       cfg.Scheduler.RunTimeout,
			LockTTL:          cfg.Scheduler.LockTTL,
			MaxBatchesPerRun: cfg.Scheduler.MaxBatchesPerRun,
			CacheTTL:         cfg.Cache.TTL,
		},
	)

	return &stack{db: db, redis: redisClient, metrics: metrics, timetables: timetables}, nil
}

func (s *stack) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	_ = s.db.Close()
}

// redisPinger adapts the Redis client to the health check contract.
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

const shutdownTimeout = 10 * time.Second
