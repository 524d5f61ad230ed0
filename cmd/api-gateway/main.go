package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/estate-auth-api/api/swagger"
	"github.com/noah-isme/estate-auth-api/internal/handler"
	"github.com/noah-isme/estate-auth-api/internal/middleware"
	"github.com/noah-isme/estate-auth-api/internal/models"
	"github.com/noah-isme/estate-auth-api/internal/repository"
	"github.com/noah-isme/estate-auth-api/internal/service"
	"github.com/noah-isme/estate-auth-api/pkg/cache"
	"github.com/noah-isme/estate-auth-api/pkg/config"
	"github.com/noah-isme/estate-auth-api/pkg/database"
	"github.com/noah-isme/estate-auth-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/estate-auth-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/estate-auth-api/pkg/middleware/requestid"
)

// @title Estate Auth API
// @version 1.0.0
// @description Authentication and session security for the property marketplace
// @BasePath /api/v1
// @schemes http https
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, registration throttle disabled", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, "estate-auth:")

	metricsSvc := service.NewMetricsService()
	auditSvc := service.NewSecurityAuditService(logr, auditRepo, service.AuditConfig{
		Persist:    cfg.Audit.PersistEnabled,
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
	})
	auditSvc.Start(ctx)
	defer auditSvc.Stop()

	tokenSvc := service.NewTokenService(service.TokenConfig{
		Secret:     cfg.JWT.Secret,
		Issuer:     cfg.JWT.Issuer,
		AccessTTL:  cfg.JWT.AccessTokenTTL,
		RefreshTTL: cfg.JWT.RefreshTokenTTL,
	})
	tracker := service.NewAttemptTracker(cfg.Security.MaxLoginAttempts, cfg.Security.LockoutDuration())
	userCache := service.NewUserCache(userRepo, metricsSvc, service.UserCacheConfig{
		MaxEntries: cfg.Cache.MaxEntries,
		WriteTTL:   cfg.Cache.WriteTTL,
		AccessTTL:  cfg.Cache.AccessTTL,
	})

	var throttle *service.RegistrationThrottle
	if cacheRepo.Enabled() {
		throttle = service.NewRegistrationThrottle(cacheRepo, cfg.Security.RegistrationMaxPerWindow, cfg.Security.RegistrationWindow, logr)
	}

	authSvc := service.NewAuthService(service.AuthServiceParams{
		Store:     userRepo,
		Tokens:    tokenSvc,
		Tracker:   tracker,
		Cache:     userCache,
		Throttle:  throttle,
		Audit:     auditSvc,
		Metrics:   metricsSvc,
		Validator: validator.New(),
		Logger:    logr,
		Config: service.AuthConfig{
			BcryptCost:     cfg.Security.BcryptCost,
			PasswordPolicy: service.DefaultPasswordPolicy(cfg.Security.PasswordMinLength),
		},
	})
	authenticator := middleware.NewAuthenticator(tokenSvc, userCache, auditSvc, metricsSvc, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	accountHandler := handler.NewAccountHandler(authSvc, nil)
	if cfg.Audit.PersistEnabled {
		accountHandler = handler.NewAccountHandler(authSvc, auditRepo)
	}
	metricsHandler := handler.NewMetricsHandler(metricsSvc, map[string]handler.Pinger{
		"database": userRepo,
		"redis":    cacheRepo,
	})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.ForwardedByClientIP = cfg.Security.TrustForwardedForHeader
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, "/metrics"))
	r.Use(authenticator.Handler())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", middleware.RequireAuth(), authHandler.Logout)
	auth.GET("/me", middleware.RequireAuth(), authHandler.Me)
	auth.POST("/change-password", middleware.RequireAuth(), authHandler.ChangePassword)

	admin := api.Group("/admin", middleware.RequirePermission(auditSvc, models.PermissionUserManage))
	admin.PATCH("/users/status", accountHandler.SetStatus)
	admin.DELETE("/users/:email", accountHandler.Delete)
	admin.GET("/audit", accountHandler.AuditTrail)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
