package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"jobportal/internal/googleid"
	"jobportal/internal/metrics"
	"jobportal/internal/util"
	"jobportal/pkg/queue"
	"jobportal/pkg/storage"
	"jobportal/pkg/store"
	"jobportal/services/portal/internal/app"
	"jobportal/services/portal/internal/config"
	"jobportal/services/portal/internal/jobsearch"
	"jobportal/services/portal/internal/security"
	"jobportal/services/portal/internal/server"
)

const (
	shutdownTimeout = 10 * time.Second
	cleanupStream   = "jobportal:cleanup:uploads"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	// PORTAL_CONFIG may come from .env, so it is read after loading it.
	cfg, err := config.Load(os.Getenv("PORTAL_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("portal exited", "err", err)
		stop()
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg config.FileConfig, logger *slog.Logger) error {
	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		return fmt.Errorf("parse session TTL: %w", err)
	}
	leeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		return fmt.Errorf("parse jwt leeway: %w", err)
	}
	cacheTTL, err := config.ParseJobSearchCacheTTL(cfg.JobSearchCacheTTL)
	if err != nil {
		return fmt.Errorf("parse job search cache TTL: %w", err)
	}

	var rdb redis.UniversalClient
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
	} else {
		logger.Warn("redis not configured; rate limits, revocations and search cache stay in process")
	}

	db, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("init postgres store: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("close postgres store failed", "err", err)
		}
	}()

	var revoker store.TokenRevoker = store.NewMemoryTokenRevoker()
	if rdb != nil {
		revoker = store.NewRedisTokenRevoker(rdb, "jobportal:revoked")
	}
	jwtOpts := store.JWTOptions{Issuer: cfg.JWTIssuer, Audience: cfg.JWTAudience, Leeway: leeway}
	var sessions *store.JWTSessionStore
	if cfg.JWTPrivateKeyPath != "" {
		sessions, err = store.NewJWTRS256SessionStoreFromPEM(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTKeyID, sessionTTL, revoker, jwtOpts)
	} else {
		sessions, err = store.NewJWTHS256SessionStore(cfg.JWTSecret, sessionTTL, revoker, jwtOpts)
	}
	if err != nil {
		return fmt.Errorf("init sessions: %w", err)
	}

	var objects storage.ObjectStore
	switch cfg.StorageBackend {
	case config.StorageMinio:
		objects, err = storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	default:
		objects, err = storage.NewFileStore(cfg.UploadDir)
	}
	if err != nil {
		return fmt.Errorf("init object storage: %w", err)
	}

	var identity app.IdentityVerifier
	if cfg.GoogleClientID != "" {
		verifier, err := googleid.NewVerifier(googleid.Config{ClientID: cfg.GoogleClientID, JWKSURL: cfg.GoogleJWKSURL, Leeway: leeway})
		if err != nil {
			return fmt.Errorf("init google verifier: %w", err)
		}
		identity = verifier
	} else {
		logger.Warn("google sign-in disabled: googleClientId not set")
	}

	var cleanup *queue.RedisTaskQueue
	if rdb != nil {
		cleanup, err = queue.NewRedisTaskQueue(rdb, queue.RedisQueueConfig{Stream: cleanupStream, Group: "portal"})
		if err != nil {
			return fmt.Errorf("init cleanup queue: %w", err)
		}
	}

	m := metrics.New()
	appCfg := app.Config{
		Store:                   db,
		Sessions:                sessions,
		Identity:                identity,
		Objects:                 objects,
		Metrics:                 m,
		ResumeMaxBytes:          cfg.ResumeMaxBytes,
		ResumeAllowedExtensions: cfg.ResumeAllowedExtensions,
	}
	if cleanup != nil {
		appCfg.Cleanup = cleanup
	}
	appCore, err := app.New(appCfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	if cleanup != nil {
		cleanup.Start(util.ContextWithLogger(ctx, logger), 1, func(ctx context.Context, task queue.Task) error {
			return appCore.RemoveUpload(ctx, task.Ref)
		})
	}

	search, err := jobsearch.New(jobsearch.Config{
		APIKey:   cfg.JobSearchAPIKey,
		Host:     cfg.JobSearchHost,
		UseMock:  cfg.JobSearchUseMock,
		CacheTTL: cacheTTL,
		Cache:    rdb,
	})
	if err != nil {
		return fmt.Errorf("init job search: %w", err)
	}

	httpServer, err := server.New(server.Config{
		App:                    appCore,
		Search:                 search,
		Metrics:                m,
		Alerter:                security.NewAuditAlerter(rdb, ""),
		Redis:                  rdb,
		AuthRateLimitPerMinute: cfg.AuthRateLimitPerMinute,
		CORSAllowedOrigins:     cfg.CORSAllowedOrigins,
		TrustedProxies:         cfg.TrustedProxies,
	})
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", addr, "storage", cfg.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
