package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/driftbox/authcore/cache"
	redisstore "github.com/driftbox/authcore/cache/redis"
	"github.com/driftbox/authcore/config"
	"github.com/driftbox/authcore/internal/metrics"
	"github.com/driftbox/authcore/middleware"
	"github.com/driftbox/authcore/mongodb"
	"github.com/driftbox/authcore/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	initLogger(cfg)
	metrics.InitCustomMetrics(prometheus.DefaultRegisterer)

	ctx := context.Background()
	if err := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	db := mongodb.GetDB()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Failed to connect to Redis")
	}
	var store cache.Store = redisstore.NewStore(redisClient, "authcore")

	wa, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RelyingPartyID,
		RPDisplayName: cfg.RelyingPartyName,
		RPOrigins:     cfg.RelyingPartyOrigins,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure WebAuthn")
	}

	// Repositories
	userRepo := mongodb.NewUserRepositoryMongo(db)
	apiKeyRepo, err := mongodb.NewAPIKeyRepositoryMongo(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize APIKeyRepository")
	}
	twoFactorRepo := mongodb.NewTwoFactorRepositoryMongo(db)
	passkeyRepo, err := mongodb.NewPasskeyRepositoryMongo(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize PasskeyRepository")
	}
	teamRepo, err := mongodb.NewTeamRepositoryMongo(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize TeamRepository")
	}

	// Services
	sessionSvc := services.NewSessionService(store)
	apiKeySvc := services.NewAPIKeyService(apiKeyRepo, store)
	twoFactorSvc := services.NewTwoFactorService(twoFactorRepo, store, cfg.TOTPIssuer)
	passkeySvc := services.NewPasskeyService(passkeyRepo, store, wa)
	teamSvc := services.NewTeamService(teamRepo, store)
	resolver := services.NewIdentityResolver(sessionSvc, apiKeySvc, userRepo)

	api := &API{
		users:     userRepo,
		sessions:  sessionSvc,
		apiKeys:   apiKeySvc,
		twoFactor: twoFactorSvc,
		passkeys:  passkeySvc,
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())

	identity := middleware.NewIdentityMiddleware(resolver, teamSvc)
	api.RegisterRoutes(e, identity)

	e.GET("/healthz", func(c echo.Context) error {
		if err := mongodb.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := e.Start(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if err := redisClient.Close(); err != nil {
		log.Error().Err(err).Msg("Redis close error")
	}
	mongodb.CloseMongoDB(shutdownCtx)
	log.Info().Msg("Server stopped")
}

func initLogger(cfg *config.ServerConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
