package kv

import (
	"context"
	"fmt"

	"github.com/okian/sitestats/internal/config"
)

// Open builds the backend selected by cfg.StorageBackend.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (Store, error) {
	switch cfg.StorageBackend {
	case config.BackendMemory, "":
		return NewMemory(), nil
	case config.BackendBadger:
		return OpenBadger(cfg.BadgerPath, opts...)
	case config.BackendRedis:
		opts = append([]Option{WithKeyPrefix(cfg.KeyPrefix)}, opts...)
		return OpenRedis(ctx, RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.StorageBackend)
	}
}
