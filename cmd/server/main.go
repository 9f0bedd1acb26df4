package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/UkralStul/blog-service/internal/api"
	"github.com/UkralStul/blog-service/internal/blog"
	"github.com/UkralStul/blog-service/internal/config"
	"github.com/UkralStul/blog-service/internal/identity"
	"github.com/UkralStul/blog-service/internal/kv"
	"github.com/UkralStul/blog-service/internal/logger"
	"github.com/UkralStul/blog-service/internal/seed"
	"github.com/UkralStul/blog-service/internal/storage"
	"github.com/UkralStul/blog-service/internal/storage/inmemory"
	"github.com/UkralStul/blog-service/internal/storage/postgres"
)

func main() {
	configFile := flag.String("config", "", "Path to config file (yaml, json or toml)")
	storageType := flag.String("storage", "", "Storage type (in-memory or postgres), overrides BLOG_STORAGE")
	flag.Parse()

	if *storageType != "" {
		_ = os.Setenv("BLOG_STORAGE", *storageType)
	}
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Must(cfg.LogLevel, cfg.Dev())
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, closeKV, err := openKV(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeKV()

	store, users, err := openStorage(ctx, cfg, backend, log)
	if err != nil {
		return err
	}

	auth, err := identity.NewLocal(users, backend, cfg.JWTSecret, cfg.TokenTTL, log)
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}

	svc := blog.New(store, identity.ContextProvider{}, log)
	if cfg.Seed {
		if err := seed.Demo(ctx, store, log); err != nil {
			return err
		}
	}

	router := api.NewRouter(svc, auth, api.NewCommentObserver(), log, api.Options{
		RateLimit: rate.Limit(cfg.RateLimit),
		RateBurst: cfg.RateBurst,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", zap.String("addr", cfg.Addr()), zap.String("storage", cfg.Storage))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openKV(ctx context.Context, cfg *config.Config, log *zap.Logger) (kv.Backend, func(), error) {
	if cfg.KV != config.KVRedis {
		return kv.NewMemory(), func() {}, nil
	}
	client, err := kv.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	return kv.NewRedis(client, "blog:"), func() { _ = client.Close() }, nil
}

func openStorage(ctx context.Context, cfg *config.Config, backend kv.Backend, log *zap.Logger) (storage.Storage, storage.UserStore, error) {
	switch cfg.Storage {
	case config.StoragePostgres:
		store, err := postgres.New(cfg.DatabaseURL, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return store, store, nil
	case config.StorageInMemory:
		opts := []inmemory.Option{inmemory.WithLogger(log)}
		// Снимки имеют смысл только во внешнем kv, память процесса их не переживет
		if cfg.KV == config.KVRedis {
			opts = append(opts, inmemory.WithBackend(backend))
		}
		store := inmemory.New(opts...)
		if err := store.Load(ctx); err != nil {
			return nil, nil, fmt.Errorf("load snapshot: %w", err)
		}
		return store, store, nil
	default:
		// remote-хранилище проксирует чужой API от имени одного токена и нужно только blogctl
		return nil, nil, fmt.Errorf("storage %q is not supported by the server", cfg.Storage)
	}
}
