package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/institute-timetable/api/swagger"
	"github.com/noah-isme/institute-timetable/internal/handler"
	"github.com/noah-isme/institute-timetable/internal/middleware"
	"github.com/noah-isme/institute-timetable/internal/service"
	"github.com/noah-isme/institute-timetable/migrations"
	"github.com/noah-isme/institute-timetable/pkg/config"
	"github.com/noah-isme/institute-timetable/pkg/database"
	"github.com/noah-isme/institute-timetable/pkg/logger"
	corsmiddleware "github.com/noah-isme/institute-timetable/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/institute-timetable/pkg/middleware/requestid"
)

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "apply the schema before serving")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logr, err := bootstrap()
	if err != nil {
		return err
	}
	defer logr.Sync() //nolint:errcheck

	deps, err := newStack(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer deps.Close()

	if migrateOnStart {
		if err := database.Migrate(ctx, deps.db, migrations.FS, logr); err != nil {
			return err
		}
	}

	var runs *service.GenerationJobService
	if cfg.Scheduler.Enabled {
		runs = service.NewGenerationJobService(deps.timetables, validator.New(), logr, service.GenerationJobConfig{
			Workers:   cfg.Scheduler.Workers,
			StatusTTL: cfg.Scheduler.JobTTL,
		})
		runs.Start(ctx)
		defer runs.Stop()
	}

	router := newRouter(cfg, logr, deps, runs)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps *stack, runs *service.GenerationJobService) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))

	checks := map[string]handler.Pinger{"postgres": deps.db}
	if deps.redis != nil {
		checks["redis"] = redisPinger{client: deps.redis}
	}
	metricsHandler := handler.NewMetricsHandler(deps.metrics, checks)
	r.GET("/health", metricsHandler.Health)
	if cfg.Metrics.Enabled {
		r.GET("/metrics", metricsHandler.Prometheus)
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	if cfg.Scheduler.Enabled {
		handler.NewTimetableHandler(deps.timetables, runs).Register(r.Group(cfg.APIPrefix))
	}
	return r
}
