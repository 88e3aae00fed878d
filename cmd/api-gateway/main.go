package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/campus-key-api/api/swagger"
	"github.com/noah-isme/campus-key-api/internal/handler"
	"github.com/noah-isme/campus-key-api/internal/middleware"
	"github.com/noah-isme/campus-key-api/internal/models"
	"github.com/noah-isme/campus-key-api/internal/qr"
	"github.com/noah-isme/campus-key-api/internal/realtime"
	"github.com/noah-isme/campus-key-api/internal/repository"
	"github.com/noah-isme/campus-key-api/internal/service"
	"github.com/noah-isme/campus-key-api/pkg/cache"
	"github.com/noah-isme/campus-key-api/pkg/config"
	"github.com/noah-isme/campus-key-api/pkg/database"
	"github.com/noah-isme/campus-key-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-key-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-key-api/pkg/middleware/requestid"
)

// @title Campus Key API
// @version 1.0.0
// @description Physical key management with QR handoff and realtime updates
// @BasePath /
// @schemes http

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
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Redis only backs the token ledger; without it tokens fall back
		// to signature expiry alone.
		logr.Sugar().Warnw("redis unavailable, handoff token ledger disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	validate := validator.New()

	keyRepo := repository.NewKeyRepository(db)
	userRepo := repository.NewUserRepository(db)
	ledger := repository.NewTokenLedger(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	hub := realtime.NewHub(cfg.Realtime, logr, metricsSvc)
	auditSink := realtime.NewAuditSink(hub, logr)
	defer auditSink.Close()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	keySvc := service.NewKeyService(keyRepo, hub, metricsSvc, validate, logr)
	qrSvc := service.NewQRService(qr.NewCodec(cfg.QR.SigningSecret), ledger, keySvc, keyRepo, userRepo, metricsSvc, cfg.QR, logr)
	exportSvc := service.NewExportService(keyRepo, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	keyHandler := handler.NewKeyHandler(keySvc)
	qrHandler := handler.NewQRHandler(qrSvc)
	wsHandler := handler.NewWSHandler(hub, authSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	r.GET("/ws", wsHandler.Connect)

	keys := api.Group("/keys", middleware.JWT(authSvc))
	{
		keys.GET("", keyHandler.List)
		keys.GET("/my-taken", keyHandler.MyTaken)
		if cfg.Exports.Enabled {
			keys.GET("/export",
				middleware.RequireRoles(models.RoleSecurity, models.RoleAdmin),
				exportHandler.Keys)
		}
		keys.GET("/:id", keyHandler.Get)
		keys.POST("/:id/take", keyHandler.Take)
		keys.POST("/:id/return", keyHandler.Return)
		keys.POST("/:id/collective-return",
			middleware.RequireRoles(models.RoleSecurity, models.RoleAdmin),
			keyHandler.CollectiveReturn)
		keys.POST("/:id/toggle-frequent", keyHandler.ToggleFrequent)

		keys.POST("", middleware.RequireRoles(models.RoleAdmin), keyHandler.Create)
		keys.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), keyHandler.Update)
		keys.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), keyHandler.Delete)
	}

	qrGroup := api.Group("/qr", middleware.JWT(authSvc))
	{
		qrGroup.POST("/request-token", qrHandler.GenerateRequest)
		qrGroup.POST("/return-token", qrHandler.GenerateReturn)
		qrGroup.POST("/batch-return-token", qrHandler.GenerateBatchReturn)
		qrGroup.DELETE("/tokens/:id", qrHandler.Cancel)
		qrGroup.POST("/validate", qrHandler.Validate)

		scans := qrGroup.Group("/scan", middleware.RequireRoles(models.RoleSecurity, models.RoleAdmin))
		{
			scans.POST("/request", qrHandler.ScanRequest)
			scans.POST("/return", qrHandler.ScanReturn)
			scans.POST("/batch-return", qrHandler.ScanBatchReturn)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
