package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/vetconnect/internal/auth"
	"github.com/BradenHooton/vetconnect/internal/background"
	"github.com/BradenHooton/vetconnect/internal/config"
	"github.com/BradenHooton/vetconnect/internal/database"
	"github.com/BradenHooton/vetconnect/internal/handlers"
	"github.com/BradenHooton/vetconnect/internal/metrics"
	middlewareCustom "github.com/BradenHooton/vetconnect/internal/middleware"
	"github.com/BradenHooton/vetconnect/internal/ratelimit"
	"github.com/BradenHooton/vetconnect/internal/realtime"
	"github.com/BradenHooton/vetconnect/internal/repositories"
	"github.com/BradenHooton/vetconnect/internal/routes"
	"github.com/BradenHooton/vetconnect/internal/services"
	"github.com/BradenHooton/vetconnect/internal/storage"
	pkghttp "github.com/BradenHooton/vetconnect/pkg/http"
	pkglogger "github.com/BradenHooton/vetconnect/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Server.SlogLevel()}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	m := metrics.New()

	// Redis is optional: it shares limiter state and realtime events across replicas
	var (
		limiterStore ratelimit.Store
		memoryStore  *ratelimit.MemoryStore
		bridge       realtime.Bridge
	)
	if cfg.Redis.URL != "" {
		client, err := connectRedis(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer client.Close()

		limiterStore = ratelimit.NewRedisStore(client)
		bridge = realtime.NewRedisBridge(client, cfg.Redis.KeyPrefix+"realtime", logger)
		logger.Info("redis enabled for rate limiting and realtime fan-out")
	} else {
		memoryStore = ratelimit.NewMemoryStore(ratelimit.SystemClock)
		limiterStore = memoryStore
		logger.Warn("REDIS_URL not set, rate limiter state is per process")
	}
	limiter := ratelimit.NewLimiter(limiterStore, ratelimit.SystemClock, logger)

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	profileRepo := repositories.NewProfileRepository(db)
	revokeRepo := repositories.NewTokenRevocationRepository(db)
	otpRepo := repositories.NewEmailOTPRepository(db)
	factorRepo := repositories.NewMFAFactorRepository(db.Pool)
	animalRepo := repositories.NewAnimalRepository(db)
	consultationRepo := repositories.NewConsultationRepository(db)
	messageRepo := repositories.NewMessageRepository(db)
	portfolioRepo := repositories.NewPortfolioRepository(db)

	// Initialize token manager with composite signing on the per-user TokenKey
	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
		cfg.Auth.MFATokenExpiry,
	)
	tokenManager.SetUserRepo(userRepo)

	totpManager, err := auth.NewTOTPManager(cfg.Auth.TOTPEncryptionKey, cfg.Auth.TOTPIssuer)
	if err != nil {
		logger.Error("failed to initialize TOTP manager", slog.Any("error", err))
		os.Exit(1)
	}

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	})
	auditLogger := pkglogger.NewAuditLogger(logger)

	var mailer services.OTPSender
	if cfg.Email.Enabled {
		mailer, err = services.NewAWSSESEmailService(ctx, cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		mailer = services.NewLogOTPSender(logger)
	}

	objectStore, err := storage.NewS3Store(ctx, storage.S3Config{
		Region:       cfg.Storage.AWSRegion,
		Endpoint:     cfg.Storage.Endpoint,
		UsePathStyle: cfg.Storage.UsePathStyle,
	})
	if err != nil {
		logger.Error("failed to initialize object storage", slog.Any("error", err))
		os.Exit(1)
	}
	uploader := storage.NewUploader(objectStore, storage.Config{
		BucketPrefix:    cfg.Storage.BucketPrefix,
		MaxFileBytes:    cfg.Storage.MaxUploadBytes,
		SignedURLExpiry: cfg.Storage.SignedURLExpiry,
	}, logger)

	hub := realtime.NewHub(bridge, m, logger)

	// Initialize services
	authService := services.NewAuthService(services.AuthDeps{
		Users:       userRepo,
		Profiles:    profileRepo,
		Factors:     factorRepo,
		OTPs:        otpRepo,
		Revocations: revokeRepo,
		Mailer:      mailer,
		Tokens:      tokenManager,
		Limiter:     limiter,
		Timing:      timingDelay,
		Observer:    m,
		Logger:      logger,
		AuditLogger: auditLogger,
	}, services.AuthConfig{
		OTPExpiry:          cfg.Auth.OTPExpiry,
		MFAChallengeExpiry: cfg.Auth.MFAChallengeExpiry,
		Env:                cfg.Server.Env,
	})
	mfaService := services.NewMFAService(factorRepo, userRepo, totpManager, limiter, m, logger, auditLogger,
		services.MFAConfig{ChallengeExpiry: cfg.Auth.MFAChallengeExpiry})
	profileService := services.NewProfileService(profileRepo, uploader, logger)
	animalService := services.NewAnimalService(animalRepo, uploader, logger)
	consultationService := services.NewConsultationService(consultationRepo, animalRepo, uploader, hub, logger)
	messageService := services.NewMessageService(messageRepo, consultationRepo, profileRepo, hub, logger)
	portfolioService := services.NewPortfolioService(portfolioRepo, uploader, logger)
	vetService := services.NewVetService(profileRepo, portfolioService, hub, uploader, logger)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	maxUpload := cfg.Storage.MaxUploadBytes

	realtimeHandler := realtime.NewHandler(hub,
		auth.SocketAuthenticator(tokenManager, revokeRepo),
		services.NewRealtimeAuthorizer(vetService, consultationRepo),
		realtime.HandlerConfig{AllowedOrigins: cfg.Server.AllowedOrigins},
		logger,
	)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	if cfg.Server.MetricsEnabled {
		router.Use(m.Middleware)
		router.Handle("/metrics", m.Handler())
		m.RegisterGauge("realtime", "online_vets", "Veterinarians currently present.", func() float64 {
			return float64(hub.Presence().Len())
		})
		m.RegisterGauge("db", "acquired_conns", "Connections currently checked out of the pool.", func() float64 {
			return float64(db.Stats().AcquiredConns())
		})
	}

	// Register routes
	routes.RegisterRoutes(router, routes.Handlers{
		Auth:          handlers.NewAuthHandler(authService, ipConfig, logger),
		MFA:           handlers.NewMFAHandler(mfaService, authService, logger),
		Profile:       handlers.NewProfileHandler(profileService, maxUpload, logger),
		Animals:       handlers.NewAnimalHandler(animalService, maxUpload, logger),
		Consultations: handlers.NewConsultationHandler(consultationService, maxUpload, logger),
		Messages:      handlers.NewMessageHandler(messageService, logger),
		Vets:          handlers.NewVetHandler(vetService, logger),
		Portfolio:     handlers.NewPortfolioHandler(portfolioService, maxUpload, logger),
		Maps:          handlers.NewMapsHandler(cfg.Maps.APIKey),
		Realtime:      realtimeHandler,
	}, routes.Security{
		Tokens:              tokenManager,
		Revocations:         revokeRepo,
		Revocation:          auth.RevocationConfig{FailClosed: cfg.Server.Env == "production"},
		Users:               userRepo,
		IPConfig:            ipConfig,
		AuthRequestsPerMin:  cfg.Auth.AuthRequestsPerMin,
		WriteRequestsPerMin: cfg.Auth.WriteRequestsPerMin,
		RequestTimeout:      cfg.Server.WriteTimeout,
	})

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "down"})
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy", "database": "up"})
	})

	// Background work: realtime bridge and cleanup jobs
	go func() {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("realtime bridge stopped", slog.Any("error", err))
		}
	}()

	jobs := []background.Job{
		background.RevokedTokensJob(revokeRepo),
		background.EmailOTPJob(otpRepo),
		background.MFAChallengeJob(factorRepo),
		background.PresenceSweepJob(hub),
	}
	if memoryStore != nil {
		jobs = append(jobs, background.LimiterSweepJob(memoryStore))
	}
	cleanupManager := background.NewCleanupManager(logger, m, cfg.Auth.CleanupInterval, jobs...)
	if err := cleanupManager.Start(ctx); err != nil {
		logger.Error("failed to start cleanup jobs", slog.Any("error", err))
		os.Exit(1)
	}

	// Create server. The write timeout is enforced per route by the Timeout
	// middleware so websocket connections are not cut off.
	server := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			stop()
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	logger.Info("shutdown signal received")

	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// connectRedis parses REDIS_URL and verifies the server answers
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
