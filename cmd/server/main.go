package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	echoapi "github.com/loclio/identity-recovery/api/echo"
	"github.com/loclio/identity-recovery/cache"
	cacheredis "github.com/loclio/identity-recovery/cache/redis"
	"github.com/loclio/identity-recovery/config"
	"github.com/loclio/identity-recovery/delivery"
	"github.com/loclio/identity-recovery/internal/metrics"
	"github.com/loclio/identity-recovery/log"
	"github.com/loclio/identity-recovery/middleware"
	"github.com/loclio/identity-recovery/mongodb"
	"github.com/loclio/identity-recovery/ratelimit"
	"github.com/loclio/identity-recovery/services"
	"github.com/loclio/identity-recovery/tracing"
)

var (
	appLogger      log.Logger
	tracerProvider *sdktrace.TracerProvider
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
	}
	appLogger = log.NewZerologAdapter(logLevel, cfg.LogPretty)

	ctx := context.Background()
	appLogger.Info(ctx, "Starting identity-recovery server", map[string]interface{}{
		"http_port":     cfg.HTTPPort,
		"mongo_db_name": cfg.MongoDBName,
		"redis":         cfg.RedisAddr != "",
		"log_level":     logLevel.String(),
	})

	tp, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize TracerProvider", err)
	}
	tracerProvider = tp

	if initErr := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName); initErr != nil {
		appLogger.Fatal(ctx, "Failed to initialize MongoDB connection", initErr)
	}
	db := mongodb.GetDB()

	identityRepo, err := mongodb.NewIdentityRepository(ctx, db)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize IdentityRepository", err)
	}
	membershipRepo, err := mongodb.NewMembershipRepository(ctx, db)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize MembershipRepository", err)
	}
	profileRepo := mongodb.NewProfileRepository(db)
	codeRepo, err := mongodb.NewVerificationCodeRepository(ctx, db)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize VerificationCodeRepository", err)
	}
	auditRepo, err := mongodb.NewCleanupAuditRepository(ctx, db)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize CleanupAuditRepository", err)
	}

	// Counter store and lock live in Redis so multiple stateless instances
	// coordinate; the in-memory stores are a single-instance dev fallback.
	var (
		counters cache.CounterStore
		locker   cache.Locker
	)
	if cfg.RedisAddr != "" {
		redisClient := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if pingErr := redisClient.Ping(ctx).Err(); pingErr != nil {
			appLogger.Fatal(ctx, "Failed to ping Redis", pingErr)
		}
		counters = cacheredis.NewCounterStore(redisClient, "recovery")
		locker = cacheredis.NewLocker(redisClient, "recovery")
	} else {
		appLogger.Warn(ctx, "REDIS_ADDR not set, using in-memory counter store and locker (single instance only)")
		counters = cache.NewMemoryCounterStore()
		locker = cache.NewMemoryLocker()
	}

	limiter := ratelimit.NewLimiter(counters)
	gate := ratelimit.NewTierGate(limiter,
		ratelimit.Tier{Name: "global", Limit: int64(cfg.RateGlobalLimit), Window: time.Duration(cfg.RateGlobalWindowSec) * time.Second},
		ratelimit.Tier{Name: "source", Limit: int64(cfg.RateSourceLimit), Window: time.Duration(cfg.RateSourceWindowSec) * time.Second},
		ratelimit.Tier{Name: "email", Limit: int64(cfg.RateEmailLimit), Window: time.Duration(cfg.RateEmailWindowSec) * time.Second},
	)

	detector := services.NewOrphanDetector(membershipRepo, profileRepo, services.DetectorOptions{
		MaxRetries:        cfg.DetectMaxRetries,
		PerAttemptTimeout: time.Duration(cfg.DetectAttemptTimeoutMs) * time.Millisecond,
	})

	shaper := services.NewResponseShaper(
		time.Duration(cfg.ShaperTargetMs)*time.Millisecond,
		time.Duration(cfg.ShaperJitterMs)*time.Millisecond,
	)
	issuer := services.NewCodeIssuer(cfg.CodeSecret)
	sender := delivery.NewFailoverSender(delivery.LogProvider{})

	coordinator := services.NewCleanupCoordinator(
		identityRepo, codeRepo, auditRepo,
		detector, gate, locker, sender, issuer, shaper,
		time.Duration(cfg.CodeTTLMin)*time.Minute,
		time.Duration(cfg.LockTTLSec)*time.Second,
	)
	signInGate := services.NewSignInGate(detector, coordinator)

	metrics.InitCustomMetrics(prometheus.DefaultRegisterer)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(middleware.CorrelationID())
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := echoapi.NewRecoveryAPI(coordinator, signInGate)
	api.RegisterRoutes(e)

	go func() {
		if serveErr := e.Start(":" + cfg.HTTPPort); serveErr != nil && serveErr != http.ErrServerClosed {
			appLogger.Fatal(ctx, "HTTP server failed", serveErr)
		}
	}()
	appLogger.Info(ctx, "HTTP server listening", map[string]interface{}{"port": cfg.HTTPPort})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info(ctx, "Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown failed", err)
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "TracerProvider shutdown failed", err)
	}
	if err := mongodb.Disconnect(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "MongoDB disconnect failed", err)
	}
	appLogger.Info(ctx, "Shutdown complete.")
}
