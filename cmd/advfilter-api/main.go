package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/advanced-filters-api/api/swagger"
	"github.com/noah-isme/advanced-filters-api/internal/entity"
	"github.com/noah-isme/advanced-filters-api/internal/handler"
	internalmiddleware "github.com/noah-isme/advanced-filters-api/internal/middleware"
	"github.com/noah-isme/advanced-filters-api/internal/repository"
	"github.com/noah-isme/advanced-filters-api/internal/service"
	"github.com/noah-isme/advanced-filters-api/pkg/cache"
	"github.com/noah-isme/advanced-filters-api/pkg/config"
	"github.com/noah-isme/advanced-filters-api/pkg/database"
	"github.com/noah-isme/advanced-filters-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/advanced-filters-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/advanced-filters-api/pkg/middleware/requestid"
	"github.com/noah-isme/advanced-filters-api/pkg/query"
)

// @title Advanced Filters API
// @version 1.0.0
// @description Saved admin changelist filters
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	entities, err := entity.Load(cfg.Entities.File)
	if err != nil {
		logr.Fatal("failed to load entities", zap.String("file", cfg.Entities.File), zap.Error(err))
	}
	logr.Info("entities registered", zap.Strings("labels", entities.Labels()))

	checks := map[string]handler.Pinger{"postgres": db}

	var cacheRepo service.CacheRepository
	if cfg.Filters.LookupCacheEnabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer client.Close() //nolint:errcheck
		cacheRepo = repository.NewCacheRepository(client, logr)
		checks["redis"] = redisPinger(client)
	}

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Filters.LookupCacheTTL, logr, cfg.Filters.LookupCacheEnabled)
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
	})

	userRepo := repository.NewUserRepository(db)
	filterSvc := service.NewAdvancedFilterService(
		repository.NewAdvancedFilterRepository(db),
		userRepo,
		entities,
		repository.NewRecordRepository(db),
		cacheSvc,
		metricsSvc,
		validator.New(),
		logr,
		service.AdvancedFilterConfig{
			EditByUser:     cfg.Filters.EditByUser,
			QueryFormat:    query.Format(cfg.Filters.QueryFormat),
			MaxQueryLength: cfg.Filters.MaxQueryLength,
			APIPrefix:      cfg.APIPrefix,
		},
	)

	filterHandler := handler.NewAdvancedFilterHandler(filterSvc)
	changelistHandler := handler.NewChangelistHandler(filterSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	protected := []gin.HandlerFunc{
		internalmiddleware.JWT(authSvc),
		internalmiddleware.RequireStaff(),
		internalmiddleware.WithResponseMeta(),
	}

	api := r.Group(cfg.APIPrefix, protected...)
	{
		api.GET("/metrics/summary", metricsHandler.Summary)

		filters := api.Group("/advanced-filters")
		filters.GET("", filterHandler.List)
		filters.POST("", filterHandler.Create)
		filters.PUT("/order", filterHandler.Reorder)
		filters.GET("/:id", filterHandler.Get)
		filters.PUT("/:id", filterHandler.Update)
		filters.DELETE("/:id", filterHandler.Delete)
	}

	// Changelists live at the admin paths saved filters link to.
	admin := r.Group("/admin/:app/:model", protected...)
	{
		admin.GET("/", internalmiddleware.AuditFilterUse(userRepo, service.AFilterParam, logr), changelistHandler.List)
		admin.GET("/lookups", changelistHandler.Lookups)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "edit_by_user", cfg.Filters.EditByUser)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func redisPinger(client *redis.Client) handler.PingFunc {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
