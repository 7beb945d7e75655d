// Package store opens the authData record store for the configured driver.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/dropDatabas3/authdata/internal/store/core"
	"github.com/dropDatabas3/authdata/internal/store/memory"
	"github.com/dropDatabas3/authdata/internal/store/pg"
	"github.com/dropDatabas3/authdata/internal/store/redis"
)

type Config struct {
	Driver   string
	Redis    redis.Config
	Postgres struct {
		DSN string
		pg.Config
	}
}

// Open devuelve el store del driver configurado.
func Open(ctx context.Context, cfg Config) (core.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "memory", "mem":
		return memory.New(), nil
	case "redis":
		return redis.New(ctx, cfg.Redis)
	case "postgres", "pg", "postgresql":
		return pg.New(ctx, cfg.Postgres.DSN, cfg.Postgres.Config)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
}
