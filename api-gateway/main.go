package main

import (
	"context"
	"errors"
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

	"familyportal-backend/api-gateway/middleware"
	"familyportal-backend/api-gateway/routes"
	_ "familyportal-backend/docs"
	"familyportal-backend/shared/config"
	"familyportal-backend/shared/logger"
	"familyportal-backend/shared/utils/cache"
)

func main() {
	log, err := logger.New(os.Getenv("APP_ENV"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Load configuration
	config.LoadConfig()
	cfg := config.GetConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	proxy, err := routes.NewProxy(map[string]string{
		"auth":         cfg.AuthServiceURL,
		"notification": cfg.NotificationServiceURL,
	}, log)
	if err != nil {
		log.Fatal("invalid service configuration", zap.Error(err))
	}

	limitCfg := middleware.NewRateLimitConfig(cfg)
	var counter middleware.RequestCounter
	switch cfg.GatewayLimiterStore {
	case "redis":
		client, err := cache.NewRedisClient(ctx, cfg)
		if err != nil {
			log.Fatal("failed to connect rate limit store", zap.Error(err))
		}
		defer client.Close()
		counter = middleware.NewRedisRateLimiter(client, limitCfg)
	case "memory":
		memory := middleware.NewRateLimiter(limitCfg)
		memory.StartCleanup(ctx, 5*time.Minute)
		counter = memory
	default:
		log.Fatal("unknown RATE_LIMIT_STORE", zap.String("store", cfg.GatewayLimiterStore))
	}
	log.Info("edge rate limiter ready", zap.String("store", cfg.GatewayLimiterStore))

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
	router.Use(middleware.GlobalRateLimitMiddleware(counter, limitCfg, log))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "gateway"})
	})

	proxy.Register(router)

	// Swagger documentation UI, development only
	router.GET("/swagger/*any", func(c *gin.Context) {
		if gin.Mode() == gin.DebugMode {
			ginSwagger.WrapHandler(swaggerFiles.Handler)(c)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"message": "Swagger documentation not available in production"})
	})

	port := config.ServicePort(cfg.APIGatewayURL, "8000")
	srv := &http.Server{Addr: ":" + port, Handler: router}

	go func() {
		log.Info("api gateway starting", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("api gateway stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down api gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
