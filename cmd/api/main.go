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
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/munlink-zambales/claimdesk-api/api/swagger"
	"github.com/munlink-zambales/claimdesk-api/internal/claim"
	"github.com/munlink-zambales/claimdesk-api/internal/handler"
	"github.com/munlink-zambales/claimdesk-api/internal/middleware"
	"github.com/munlink-zambales/claimdesk-api/internal/repository"
	"github.com/munlink-zambales/claimdesk-api/internal/service"
	"github.com/munlink-zambales/claimdesk-api/pkg/cache"
	"github.com/munlink-zambales/claimdesk-api/pkg/config"
	"github.com/munlink-zambales/claimdesk-api/pkg/database"
	"github.com/munlink-zambales/claimdesk-api/pkg/export"
	"github.com/munlink-zambales/claimdesk-api/pkg/logger"
	corsmiddleware "github.com/munlink-zambales/claimdesk-api/pkg/middleware/cors"
	reqidmiddleware "github.com/munlink-zambales/claimdesk-api/pkg/middleware/requestid"
	"github.com/munlink-zambales/claimdesk-api/pkg/signing"
)

// @title MunLink Claim Desk API
// @version 1.0.0
// @description Claim ticket issuance and verification for document pickup
// @BasePath /api/v1
// @schemes http https

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
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
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		migrator, err := database.NewMigrator(db.DB, logr)
		if err != nil {
			logr.Fatal("failed to init migrator", zap.Error(err))
		}
		if err := migrator.Up(); err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
	}

	// Redis only backs the reveal throttle, which fails open without it.
	var rdb *redis.Client
	if client, err := cache.NewRedis(ctx, cfg.Redis); err != nil {
		logr.Warn("redis unavailable, reveal throttling disabled", zap.Error(err))
	} else {
		rdb = client
		defer rdb.Close()
	}

	keys, err := claim.NewKeyring(cfg.Claims.HashKey, cfg.Claims.EncryptionKey)
	if err != nil {
		logr.Fatal("failed to derive claim keys", zap.Error(err))
	}
	codec := claim.NewCodec(cfg.Claims.AdminWebBaseURL)
	signer := signing.NewSignedURLSigner(cfg.Claims.QRSigningSecret, cfg.Claims.QRURLTTL)
	links := service.NewQRLinker(signer, cfg.Claims.PublicAPIBaseURL+cfg.APIPrefix+"/claims/qr")

	metrics := service.NewMetricsService()

	requestRepo := repository.NewDocumentRequestRepository(db)
	ticketRepo := repository.NewClaimTicketRepository(db, keys)
	auditRepo := repository.NewAuditRepository(db)
	limiter := repository.NewRateLimitRepository(rdb)

	notifier := service.NewNotificationService(service.NotificationConfig{
		APIKey:     cfg.Notifications.ResendAPIKey,
		From:       cfg.Notifications.EmailFrom,
		WebBaseURL: cfg.Notifications.WebBaseURL,
		DevMode:    cfg.Env != config.EnvProduction,
		Workers:    cfg.Notifications.Workers,
		Retries:    cfg.Notifications.Retries,
		RetryDelay: 2 * time.Second,
	}, logr, metrics)
	notifier.Start(ctx)
	defer notifier.Stop()

	claimSvc := service.NewClaimService(requestRepo, ticketRepo, auditRepo, codec, keys, links, logr,
		service.ClaimConfig{TokenTTL: cfg.Claims.TokenTTL}).
		WithNotifier(notifier).
		WithMetrics(metrics)
	statusSvc := service.NewDocumentRequestService(requestRepo, claimSvc, auditRepo, logr)
	residentSvc := service.NewResidentClaimService(requestRepo, ticketRepo, auditRepo, limiter, keys, codec, links,
		export.NewPDFExporter(manilaLocation()), metrics, logr, service.ResidentClaimConfig{
			RevealLimit:  cfg.Claims.RevealLimit,
			RevealWindow: cfg.Claims.RevealWindow,
			QRSize:       cfg.Claims.QRSize,
		})
	sessions := service.NewSessionService(service.SessionConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
	}, logr)

	checks := []handler.ReadinessCheck{{Name: "postgres", Check: db.PingContext}}
	if rdb != nil {
		checks = append(checks, handler.ReadinessCheck{
			Name:     "redis",
			Optional: true,
			Check:    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	handler.Register(r, handler.Routes{
		Prefix:    cfg.APIPrefix,
		Tokens:    sessions,
		Claims:    handler.NewClaimHandler(claimSvc, statusSvc, validator.New()),
		Residents: handler.NewResidentClaimHandler(residentSvc),
		Metrics:   handler.NewMetricsHandler(metrics, checks...),
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

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

func manilaLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Manila")
	if err != nil {
		return time.FixedZone("PST", 8*60*60)
	}
	return loc
}
