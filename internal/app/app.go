package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"gamelog-backend/internal/config"
	"gamelog-backend/internal/domain"
	"gamelog-backend/internal/http/handler"
	"gamelog-backend/internal/http/middleware"
	"gamelog-backend/internal/http/router"
	"gamelog-backend/internal/observability"
	"gamelog-backend/internal/repository"
	"gamelog-backend/internal/security"
	"gamelog-backend/internal/service"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime

	DB        *gorm.DB
	Redis     *redis.Client
	Blacklist *service.BlacklistService
}

// Build wires the whole service graph from configuration. Redis is optional:
// without it the revocation cache is skipped and rate limits are per-instance.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, runtime *observability.Runtime) (*App, error) {
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&domain.User{}, &domain.RevokedToken{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	var redisClient *redis.Client
	var revocationCache service.RevocationCache
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		revocationCache = service.NewRedisRevocationCache(redisClient, "")
		logger.Info("redis connected", "addr", cfg.RedisAddr)
	}

	users := repository.NewUserRepository(db)
	revoked := repository.NewRevokedTokenRepository(db)

	codec := security.NewTokenCodec(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	blacklist := service.NewBlacklistService(revoked, users, codec, revocationCache, cfg.RevocationFailOpen)
	lockout := service.NewLockoutService(users, service.LockoutPolicy{
		MaxFailedAttempts: cfg.MaxFailedAttempts,
		LockoutDuration:   cfg.LockoutDuration,
	})
	auth := service.NewAuthService(users, codec, blacklist, lockout)

	var oauth *service.OAuthService
	if cfg.AuthGoogleEnabled {
		provider := service.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
		oauth = service.NewOAuthService(provider, users)
	}

	cookies := security.NewCookieWriter(cfg.IsProduction())
	deps := router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(auth, oauth, cookies, cfg),
		UserHandler:      handler.NewUserHandler(),
		AdminHandler:     handler.NewAdminHandler(auth, lockout, blacklist),
		TokenCodec:       codec,
		Revocations:      blacklist,
		Users:            users,
		CORSOrigins:      cfg.CORSOrigins,
		APIRateLimitRPM:  cfg.APIRateLimitRPM,
		AuthRateLimitRPM: cfg.AuthRateLimitRPM,
		Readiness:        readinessProbe(db, redisClient),
		EnableOTelHTTP:   cfg.OTELTracesEnabled,
	}
	if redisClient != nil {
		mode := middleware.FailClosed
		if cfg.RateLimitFailOpen {
			mode = middleware.FailOpen
		}
		shared := middleware.NewRedisRateLimiter(redisClient, "")
		deps.GlobalRateLimiter = middleware.NewDistributedRateLimiter(shared, cfg.APIRateLimitRPM, time.Minute, mode, "api").Middleware()
		deps.AuthRateLimiter = middleware.NewDistributedRateLimiter(shared, cfg.AuthRateLimitRPM, time.Minute, mode, "auth").Middleware()
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		Server:        server,
		Observability: runtime,
		DB:            db,
		Redis:         redisClient,
		Blacklist:     blacklist,
	}, nil
}

// Run serves HTTP and the periodic ledger cleanup until ctx is cancelled,
// then drains connections within the shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		a.Logger.Info("http server listening", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error { return a.runCleanupLoop(ctx) })

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
		defer cancel()
		return a.Server.Shutdown(shutdownCtx)
	})

	err := group.Wait()
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	return err
}

// runCleanupLoop sweeps expired ledger entries on the configured interval
// until ctx is cancelled. A non-positive interval disables the sweep.
func (a *App) runCleanupLoop(ctx context.Context) error {
	if a.Config.BlacklistCleanupInterval <= 0 {
		a.Logger.Info("ledger cleanup disabled")
		return nil
	}
	ticker := time.NewTicker(a.Config.BlacklistCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := a.Blacklist.Cleanup(ctx); err != nil {
				a.Logger.Warn("ledger cleanup failed", "error", err.Error())
			}
		}
	}
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}
	switch cfg.DatabaseDriver {
	case "postgres":
		return gorm.Open(postgres.Open(cfg.DatabaseDSN), gormCfg)
	case "sqlite":
		return gorm.Open(sqlite.Open(cfg.DatabaseDSN), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
}

func readinessProbe(db *gorm.DB, redisClient *redis.Client) func(r *http.Request) error {
	return func(r *http.Request) error {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}
}
