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

	_ "familyportal-backend/docs"
	notificationConfig "familyportal-backend/notification-service/config"
	"familyportal-backend/notification-service/handlers"
	"familyportal-backend/notification-service/services"
	"familyportal-backend/notification-service/workers"
	"familyportal-backend/shared/config"
	"familyportal-backend/shared/database"
	"familyportal-backend/shared/logger"
)

func main() {
	log, err := logger.New(os.Getenv("APP_ENV"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	config.LoadConfig()
	cfg := notificationConfig.LoadNotificationConfig()

	// Initialize database
	if err := database.InitDatabase(); err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer database.CloseDatabase()
	db := database.GetDB()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	templates := services.NewTemplateService(cfg.FrontendURL)
	hub := services.NewHub([]string{cfg.FrontendURL}, log)

	var push services.PushSender
	if cfg.Delivery.PushEnabled {
		push = services.NewWebPushSender(cfg.Config)
	} else {
		log.Warn("VAPID keys missing, push delivery disabled")
	}

	var emailSender services.EmailSender
	if cfg.Delivery.EmailEnabled {
		emailSender = services.NewEmailService(cfg.Config, log)
	} else {
		log.Warn("email delivery disabled")
	}

	fanout := services.NewFanoutService(db, push, emailSender, hub, templates, services.FanoutOptions{
		PushConcurrency:  cfg.Delivery.PushConcurrency,
		EmailConcurrency: cfg.Delivery.EmailConcurrency,
		DispatchTimeout:  cfg.Delivery.DispatchTimeout,
	}, log)
	digest := services.NewDigestService(db, emailSender, templates, cfg.Digest.Window, cfg.Delivery.EmailConcurrency, log)

	var digestWorker *workers.DigestWorker
	if cfg.Digest.Enabled && emailSender != nil {
		digestWorker = workers.NewDigestWorker(digest, 10*time.Minute, log)
		if err := digestWorker.Start(cfg.Digest.Schedule); err != nil {
			log.Fatal("failed to start digest worker", zap.Error(err))
		}
	}

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

	publicKey := ""
	if cfg.Delivery.PushEnabled {
		publicKey = cfg.VAPIDPublicKey
	}
	handlers.RegisterRoutes(router, handlers.Handlers{
		Feed:        handlers.NewFeedHandler(services.NewFeedService(db), log),
		Preferences: handlers.NewPreferenceHandler(services.NewPreferenceService(db), log),
		Push:        handlers.NewPushHandler(services.NewSubscriptionService(db), publicKey, log),
		Dispatch:    handlers.NewDispatchHandler(fanout, digest, log),
		WebSocket:   handlers.NewWebSocketHandler(hub, log),
	}, cfg.InternalAPIToken)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":     "notification-service",
			"status":      "healthy",
			"push":        cfg.Delivery.PushEnabled,
			"email":       cfg.Delivery.EmailEnabled,
			"connections": hub.ConnectionCount(),
		})
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	port := config.ServicePort(cfg.NotificationServiceURL, "8004")
	srv := &http.Server{Addr: ":" + port, Handler: router}

	go func() {
		log.Info("notification service starting", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("notification service stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down notification service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	if digestWorker != nil {
		digestWorker.Stop(shutdownCtx)
	}

	// Let in-flight fan-outs finish before the database closes
	done := make(chan struct{})
	go func() {
		fanout.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn("pending notification deliveries abandoned")
	}
}
