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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/deepmed-api/internal/config"
	authHandler "github.com/jwalitptl/deepmed-api/internal/handler/auth"
	"github.com/jwalitptl/deepmed-api/internal/handler/health"
	patientHandler "github.com/jwalitptl/deepmed-api/internal/handler/patient"
	placesHandler "github.com/jwalitptl/deepmed-api/internal/handler/places"
	promHandler "github.com/jwalitptl/deepmed-api/internal/handler/prometheus"
	"github.com/jwalitptl/deepmed-api/internal/middleware"
	"github.com/jwalitptl/deepmed-api/internal/repository/postgres"
	"github.com/jwalitptl/deepmed-api/internal/router"
	authService "github.com/jwalitptl/deepmed-api/internal/service/auth"
	patientService "github.com/jwalitptl/deepmed-api/internal/service/patient"
	placesService "github.com/jwalitptl/deepmed-api/internal/service/places"
	"github.com/jwalitptl/deepmed-api/internal/service/prediction"
	"github.com/jwalitptl/deepmed-api/pkg/auth"
	"github.com/jwalitptl/deepmed-api/pkg/logger"
	"github.com/jwalitptl/deepmed-api/pkg/metrics"
	"github.com/jwalitptl/deepmed-api/pkg/security"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Log.JSON,
	})
	log.Logger = *appLogger.Zerolog()

	if err := middleware.RegisterValidators(); err != nil {
		log.Fatal().Err(err).Msg("failed to register validators")
	}

	// Initialize database
	ctx := context.Background()
	connector := postgres.NewConnector(cfg.Database)
	db, err := connector.DB(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer connector.Close()

	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics("deepmed", "api", registry)

	// Initialize repositories
	baseRepo := postgres.NewBaseRepository(db, appMetrics)
	patientRepo := postgres.NewPatientRepository(baseRepo)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)

	// Initialize services
	predictor := prediction.NewClient(cfg.LLM, appLogger, appMetrics)
	patientSvc := patientService.NewService(patientRepo, outboxRepo, predictor, appLogger)
	placesSvc := placesService.NewService(cfg.Places, appLogger, appMetrics)

	if cfg.LLM.APIKey == "" {
		log.Warn().Msg("DEEPMED_API_KEY is not set, every prediction will be the fallback")
	}

	// Initialize handlers
	handlers := router.Handlers{
		Patient: patientHandler.NewHandler(patientSvc),
		Places:  placesHandler.NewHandler(placesSvc),
		Health:  health.NewHandler(db),
		Metrics: promHandler.New(registry),
	}

	var authMiddleware *middleware.AuthMiddleware
	if cfg.Admin.Enabled() {
		jwtSvc := auth.NewJWTService(cfg.Admin.JWTSecret, time.Duration(cfg.Admin.ExpiryHours)*time.Hour)
		authSvc := authService.NewService(cfg.Admin, security.NewBcryptHasher(0), jwtSvc, appLogger)
		handlers.Auth = authHandler.NewHandler(authSvc)
		authMiddleware = middleware.NewAuthMiddleware(authSvc)
	} else {
		log.Info().Msg("admin API disabled, set JWT_SECRET and ADMIN_PASSWORD_HASH to enable it")
	}

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.CORS.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	if len(cfg.CORS.AllowedMethods) > 0 {
		corsConfig.AllowMethods = cfg.CORS.AllowedMethods
	}
	if len(cfg.CORS.AllowedHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.CORS.AllowedHeaders
	}

	// Setup router
	r := router.NewRouter(handlers, authMiddleware, router.RouterConfig{
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
		RateBurst:        cfg.RateLimit.Burst,
		CORSConfig:       corsConfig,
		MaxBodyBytes:     cfg.Server.MaxBodyBytes,
	})
	r.Setup()

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
