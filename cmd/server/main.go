// Library Server
//
// Serves a shared drive as a navigable document site:
// - periodic tree sync from the drive listing API
// - content cache with policy-driven invalidation
// - pluggable cache backend (memory, postgres, s3)
// - Prometheus metrics & structured logging (zap)
// - OIDC site login
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nytimes/library-sub000/internal/auth"
	"github.com/nytimes/library-sub000/internal/cache"
	"github.com/nytimes/library-sub000/internal/cache/store"
	"github.com/nytimes/library-sub000/internal/config"
	"github.com/nytimes/library-sub000/internal/drive"
	"github.com/nytimes/library-sub000/internal/library"
	"github.com/nytimes/library-sub000/internal/logging"
	"github.com/nytimes/library-sub000/internal/metrics"
	"github.com/nytimes/library-sub000/internal/web"
)

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("library server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("drive", cfg.DriveID),
		zap.String("kind", cfg.DriveKind))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Content cache backend
	var backend store.Store
	switch cfg.CacheBackend {
	case "postgres":
		logging.Info("connecting to PostgreSQL cache backend...")
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			logging.Fatal("postgres cache backend failed", zap.Error(err))
		}
		defer pg.Close()
		backend = pg
	case "s3":
		logging.Info("connecting to S3 cache backend...",
			zap.String("bucket", cfg.S3Bucket))
		s3s, err := store.NewS3(ctx, store.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			logging.Fatal("s3 cache backend failed", zap.Error(err))
		}
		backend = s3s
	default:
		backend = store.NewMemory()
	}
	contentCache := cache.New(backend, cfg.EditCacheDelay)

	// Drive client
	tokens, err := drive.NewTokenProvider(
		cfg.GoogleClientEmail, []byte(cfg.GooglePrivateKey), cfg.GoogleSubject)
	if err != nil {
		logging.Fatal("drive credentials invalid", zap.Error(err))
	}
	driveClient := drive.NewClient("", tokens, cfg.DriveID, drive.Kind(cfg.DriveKind))

	// Tree sync engine
	engine := library.New(driveClient, contentCache, contentCache, cfg.DriveID, cfg.SyncInterval)
	go engine.Run(ctx)

	// Site login
	authHandler, err := auth.New(ctx, auth.Config{
		IssuerURL:         cfg.OIDCIssuerURL,
		ClientID:          cfg.OAuthClientID,
		ClientSecret:      cfg.OAuthClientSecret,
		RedirectURL:       cfg.OAuthRedirectURL,
		SessionSecret:     cfg.SessionSecret,
		AdminPasswordHash: cfg.AdminPasswordHash,
	})
	if err != nil {
		logging.Fatal("auth init failed", zap.Error(err))
	}

	srv, err := web.NewServer(engine, contentCache, driveClient, authHandler)
	if err != nil {
		logging.Fatal("web server init failed", zap.Error(err))
	}

	// Metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()
		httpServer.Close()
		metricsServer.Close()
	}()

	logging.Info("server listening", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("server error", zap.Error(err))
	}
}
