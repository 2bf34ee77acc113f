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

	"segportal/internal/config"
	"segportal/internal/database"
	"segportal/internal/identity"
	"segportal/internal/pkg/logger"
	"segportal/internal/pkg/tracing"
	"segportal/internal/server"
	"segportal/internal/session"
	"segportal/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, log, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.AppEnv,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		log.Fatal("tracing init failed", "error", err)
	}

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("db connect failed", "error", err)
	}
	if err := server.Migrate(db); err != nil {
		log.Fatal("db migrate failed", "error", err)
	}

	backend, err := openStorage(ctx, cfg)
	if err != nil {
		log.Fatal("storage init failed", "backend", cfg.Storage.Backend, "error", err)
	}

	sessions, closeSessions, err := openSessionStore(ctx, cfg)
	if err != nil {
		log.Fatal("session store init failed", "store", cfg.Session.Store, "error", err)
	}
	defer closeSessions()

	idp, err := identity.NewClient(log, identity.Config{
		BaseURL:    cfg.Identity.BaseURL,
		LoginPath:  cfg.Identity.LoginPath,
		TokenField: cfg.Identity.TokenField,
		Timeout:    cfg.Identity.Timeout,
	})
	if err != nil {
		log.Fatal("identity client init failed", "error", err)
	}

	router := server.NewRouter(server.Deps{
		Config:   cfg,
		Log:      log,
		DB:       db,
		Storage:  backend,
		Sessions: sessions,
		Identity: idp,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown failed", "error", err)
	}
}

func openStorage(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case "minio":
		return storage.NewMinioBackend(ctx, storage.MinioOptions{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
		})
	default:
		return storage.NewLocalBackend(cfg.Storage.Dir)
	}
}

func openSessionStore(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	if cfg.Session.Store != "redis" {
		return session.NewMemoryStore(), func() {}, nil
	}
	store, rdb, err := session.NewRedisStore(ctx, session.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
	})
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = rdb.Close() }, nil
}
