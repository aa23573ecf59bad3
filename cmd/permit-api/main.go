package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/umscc/permit-api/api/swagger"
	"github.com/umscc/permit-api/internal/handler"
	"github.com/umscc/permit-api/internal/middleware"
	"github.com/umscc/permit-api/internal/models"
	"github.com/umscc/permit-api/internal/repository"
	"github.com/umscc/permit-api/internal/service"
	"github.com/umscc/permit-api/pkg/cache"
	"github.com/umscc/permit-api/pkg/config"
	"github.com/umscc/permit-api/pkg/database"
	"github.com/umscc/permit-api/pkg/export"
	"github.com/umscc/permit-api/pkg/logger"
	corsmiddleware "github.com/umscc/permit-api/pkg/middleware/cors"
	reqidmiddleware "github.com/umscc/permit-api/pkg/middleware/requestid"
	"github.com/umscc/permit-api/pkg/storage"
)

// @title UMSCC Permit API
// @version 1.0.0
// @description Borehole water permit application and review workflow for the Upper Manyame Sub-Catchment Council
// @BasePath /api/v1
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	fileStore, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init document storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)

	validate := validator.New()

	applicationRepo := repository.NewApplicationRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "umscc-permit-api",
	})
	permitSvc := service.NewPermitService(applicationRepo, cfg.Permits, logr)
	workflowSvc := service.NewWorkflowService(applicationRepo, permitSvc, logr,
		service.WithWorkflowCache(cacheSvc),
		service.WithWorkflowMetrics(metricsSvc),
	)
	applicationSvc := service.NewApplicationService(applicationRepo, cacheSvc, validate, logr)
	documentSvc := service.NewDocumentService(applicationRepo, fileStore, signer, logr, service.DocumentServiceConfig{
		MaxFileSize:  cfg.Documents.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Documents.AllowedMIMEs,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	applicationHandler := handler.NewApplicationHandler(applicationSvc, workflowSvc)
	documentHandler := handler.NewDocumentHandler(documentSvc)
	permitHandler := handler.NewPermitHandler(applicationSvc, permitSvc, export.NewPermitPDFRenderer())
	userHandler := handler.NewUserHandler(userSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	authed.POST("/auth/logout", authHandler.Logout)

	apps := authed.Group("/applications")
	apps.POST("", middleware.RequireRoles(models.RolePermittingOfficer), applicationHandler.Create)
	apps.GET("", applicationHandler.List)
	apps.GET("/:id", applicationHandler.Get)
	apps.DELETE("/:id", middleware.RequireRoles(models.RoleICT), applicationHandler.Delete)
	apps.POST("/:id/actions", applicationHandler.Action)
	apps.GET("/:id/actions", applicationHandler.AvailableActions)
	apps.POST("/:id/comments", applicationHandler.AddComment)
	apps.GET("/:id/activity", applicationHandler.Activity)
	apps.POST("/:id/documents", documentHandler.Upload)
	apps.GET("/:id/documents", documentHandler.List)
	apps.GET("/:id/permit", permitHandler.Get)
	apps.GET("/:id/permit/pdf", permitHandler.Download)

	authed.POST("/documents/:documentId/signed-url", documentHandler.SignedURL)
	api.GET("/documents/download", documentHandler.Download)

	users := authed.Group("/users", middleware.RequireRoles(models.RoleICT))
	users.POST("", userHandler.Create)
	users.GET("", userHandler.List)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
