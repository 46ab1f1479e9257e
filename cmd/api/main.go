package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"bookcycle-auth/internal/config"
	"bookcycle-auth/internal/db"
	"bookcycle-auth/internal/email"
	apihttp "bookcycle-auth/internal/http"
	"bookcycle-auth/internal/repository"
	"bookcycle-auth/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	userRepo := repository.NewPgUserRepository(pool)

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	recoveryWindow := time.Duration(cfg.RecoveryRequestWindow) * time.Minute
	var (
		recoveryLimiter service.RecoveryRateLimiter
		tokenStore      service.RefreshTokenStore
		redisClient     *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			recoveryLimiter = service.NewRedisRecoveryRateLimiter(redisClient, recoveryWindow, cfg.RecoveryRequestLimit)
			tokenStore = service.NewRedisRefreshTokenStore(redisClient)
		}
		cancel()
	}
	if recoveryLimiter == nil {
		recoveryLimiter = service.NewRecoveryRateLimiter(recoveryWindow, cfg.RecoveryRequestLimit)
	}

	jwtSvc := service.NewJWTServiceWithStore(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		tokenStore,
	)
	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured")
	}

	guard := service.NewBruteForceGuard(time.Duration(cfg.LoginCooldownSeconds) * time.Second)
	authSvc := service.NewAuthService(logger, userRepo, guard)
	credSvc := service.NewCredentialService(
		logger,
		userRepo,
		emailSender,
		recoveryLimiter,
		time.Duration(cfg.RecoveryCodeTTLMinutes)*time.Minute,
	)
	userSvc := service.NewUserService(logger, userRepo)

	userHandler := apihttp.NewUserHandler(logger, userSvc, jwtSvc)
	authHandler := apihttp.NewAuthHandler(logger, authSvc, credSvc, jwtSvc)
	router := apihttp.NewRouter(logger, jwtSvc, userHandler, authHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
