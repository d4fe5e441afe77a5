// Command furni-api serves the identity pool and the social backend over REST
// and a gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/furni/internal/config"
	pkgcrypto "github.com/and161185/furni/internal/crypto"
	"github.com/and161185/furni/internal/limiter"
	"github.com/and161185/furni/internal/metrics"
	"github.com/and161185/furni/internal/migrate"
	"github.com/and161185/furni/internal/repository/postgres"
	grpcserver "github.com/and161185/furni/internal/server/grpc"
	httpserver "github.com/and161185/furni/internal/server/http"
	"github.com/and161185/furni/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const (
	healthInterval  = 15 * time.Second
	shutdownTimeout = 5 * time.Second
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.LoadServer()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("http", cfg.HTTPAddr),
		zap.String("grpc", cfg.GRPCAddr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DatabaseURL, logger); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	defer db.Close()

	fp, err := pkgcrypto.NewFingerprinter([]byte(cfg.FingerprintKey))
	if err != nil {
		logger.Fatal("fingerprint key", zap.Error(err))
	}
	lim := limiter.NewPG(db.Pool, cfg.LimiterWindow, cfg.LimiterMaxFails, cfg.LimiterBlock)

	identitySvc := service.NewIdentityService(
		postgres.NewIdentityRepo(db),
		service.NewFingerprintVerifier(fp),
		lim,
		logger,
		service.IdentityOptions{
			SignKey:  []byte(cfg.JWTKey),
			TokenTTL: cfg.TokenTTL,
			Region:   cfg.IdentityRegion,
		},
	)
	socialSvc := service.NewSocialService(service.Repos{
		Users:       postgres.NewUserRepo(db),
		Favorites:   postgres.NewFavoriteRepo(db),
		Friendships: postgres.NewFriendshipRepo(db),
		Contacts:    postgres.NewContactRepo(db),
	}, cfg.MatchPageSize, logger)

	api := httpserver.New(identitySvc, socialSvc, db, metrics.New(), logger)
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	health := grpcserver.NewHealth(db, logger)
	health.Check(ctx)
	go health.Watch(ctx, healthInterval)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("listen grpc", zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening (grpc health)", zap.String("addr", cfg.GRPCAddr))
		errCh <- health.Serve(lis)
	}()
	go func() {
		logger.Info("listening (http)", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		health.Shutdown()
		os.Exit(1)
	}

	// Health reports NOT_SERVING before HTTP stops accepting.
	health.Shutdown()
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
