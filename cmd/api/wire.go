package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/auth"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/config"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/simulation"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/service/tutor"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/storage"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/storage/postgres"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/storage/sqlite"
)

const connectTimeout = 30 * time.Second

// retryConnect retries a startup connection with exponential backoff so the
// API can come up alongside its database or Redis container.
func retryConnect[T any](ctx context.Context, what string, log *zap.Logger, connect func() (T, error)) (T, error) {
	attempt := 0
	return backoff.Retry[T](ctx, func() (T, error) {
		attempt++
		v, err := connect()
		if err != nil {
			log.Warn("connection attempt failed", zap.String("target", what), zap.Int("attempt", attempt), zap.Error(err))
		}
		return v, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(connectTimeout),
	)
}

func openRepository(ctx context.Context, storeCfg config.StoreConfig, log *zap.Logger) (storage.Repository, error) {
	log = log.Named("store")

	switch storeCfg.Driver {
	case config.StoreMemory:
		log.Warn("using in-memory store, chats are lost on restart")
		return storage.NewMemoryRepository(), nil
	case config.StoreSQLite:
		repo, err := sqlite.Open(storeCfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		log.Info("sqlite store opened", zap.String("path", storeCfg.SQLitePath))
		return repo, nil
	case config.StorePostgres:
		pool, err := retryConnect(ctx, "postgres", log, func() (*pgxpool.Pool, error) {
			return postgres.Connect(ctx, storeCfg.DSN)
		})
		if err != nil {
			return nil, fmt.Errorf("connect postgres store: %w", err)
		}
		log.Info("postgres store connected")
		return postgres.New(pool), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", storeCfg.Driver)
	}
}

func openAuthProvider(ctx context.Context, authCfg config.AuthConfig, log *zap.Logger) (auth.Provider, func(), error) {
	switch authCfg.Driver {
	case config.AuthMemory:
		log.Named("auth").Warn("using in-memory auth, sessions are lost on restart")
		return auth.NewMemoryProvider(), func() {}, nil
	case config.AuthRedis:
		provider, err := retryConnect(ctx, "redis", log.Named("auth"), func() (*auth.RedisProvider, error) {
			return auth.NewRedisProvider(ctx, authCfg.RedisURL, authCfg.SessionTTL, log)
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis auth: %w", err)
		}
		return provider, func() { _ = provider.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown auth driver %q", authCfg.Driver)
	}
}

func newTutorClient(ctx context.Context, cfg *config.Config, catalog simulation.Catalog, log *zap.Logger) (tutor.Client, error) {
	switch cfg.Tutor.Backend {
	case config.TutorBackendArk:
		client, err := tutor.NewArkClient(ctx, cfg.AI, catalog, log)
		if err != nil {
			return nil, fmt.Errorf("init ark tutor: %w", err)
		}
		log.Info("ark tutor initialized", zap.String("model", cfg.AI.Model))
		return client, nil
	default:
		client, err := tutor.NewHTTPClient(cfg.Tutor.BaseURL, cfg.Tutor.APIKey, cfg.Tutor.Timeout)
		if err != nil {
			return nil, fmt.Errorf("init http tutor: %w", err)
		}
		log.Info("http tutor initialized", zap.String("url", cfg.Tutor.BaseURL))
		return client, nil
	}
}
