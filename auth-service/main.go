package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"familyportal-backend/auth-service/handlers"
	"familyportal-backend/auth-service/services"
	_ "familyportal-backend/docs"
	"familyportal-backend/shared/clients"
	"familyportal-backend/shared/config"
	"familyportal-backend/shared/database"
	"familyportal-backend/shared/logger"
	"familyportal-backend/shared/utils/cache"
	"familyportal-backend/shared/utils/ratelimit"
)

// newAttemptStore picks the counter backend from ATTEMPT_STORE. The returned
// check reports backend health for /health.
func newAttemptStore(ctx context.Context, cfg *config.Config, db *gorm.DB) (ratelimit.Store, func(context.Context) error, func(), error) {
	switch cfg.AttemptStore {
	case "redis":
		client, err := cache.NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		check := func(ctx context.Context) error { return cache.Ping(ctx, client) }
		return ratelimit.NewRedisStore(client), check, func() { client.Close() }, nil
	case "database", "postgres":
		check := func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
		return ratelimit.NewGormStore(db), check, func() {}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown ATTEMPT_STORE %q", cfg.AttemptStore)
	}
}

func main() {
	log, err := logger.New(os.Getenv("APP_ENV"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	config.LoadConfig()
	cfg := config.GetConfig()

	// Initialize database
	if err := database.InitDatabase(); err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer database.CloseDatabase()
	db := database.GetDB()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, storeHealth, closeStore, err := newAttemptStore(ctx, cfg, db)
	if err != nil {
		log.Fatal("failed to initialize attempt store", zap.Error(err))
	}
	defer closeStore()
	log.Info("attempt store ready", zap.String("backend", cfg.AttemptStore))

	limiter := ratelimit.NewLimiter(store)
	limiter.StartCleanup(ctx, time.Duration(cfg.AttemptCleanupMinutes)*time.Minute, log)

	securityGate := services.GateSettings{MaxAttempts: cfg.SecurityMaxAttempts, BlockMinutes: cfg.SecurityBlockMinutes}
	loginGate := services.GateSettings{MaxAttempts: cfg.LoginMaxAttempts, BlockMinutes: cfg.LoginBlockMinutes}

	notifier := clients.NewNotificationClient(cfg.NotificationServiceURL, cfg.InternalAPIToken, log)
	alerter := services.NewAdminAlerter(db, notifier, cfg.FrontendURL, log)

	portal := services.NewPortalService(db, limiter, securityGate, alerter, log)
	logins := services.NewLoginService(db, limiter, loginGate, log)

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(logger.GinMiddleware(log), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handlers.RegisterRoutes(router,
		handlers.NewAuthHandler(logins, log),
		handlers.NewSecurityHandler(portal, handlers.CookieSettings{
			Name:   cfg.PortalCookieName,
			Secure: cfg.CookieSecure,
		}, log),
		handlers.RouteConfig{
			Limiter:    limiter,
			Security:   securityGate,
			Login:      loginGate,
			CookieName: cfg.PortalCookieName,
		})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := storeHealth(pingCtx); err != nil {
			log.Warn("attempt store unhealthy", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"service": "auth",
				"store":   cfg.AttemptStore,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "auth",
			"store":   cfg.AttemptStore,
		})
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	port := config.ServicePort(cfg.AuthServiceURL, "8001")
	srv := &http.Server{Addr: ":" + port, Handler: router}

	go func() {
		log.Info("auth service starting", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("auth service stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down auth service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
