// Package app assembles the authdata components from a loaded configuration.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dropDatabas3/authdata/internal/auth"
	"github.com/dropDatabas3/authdata/internal/authdata"
	"github.com/dropDatabas3/authdata/internal/config"
	"github.com/dropDatabas3/authdata/internal/jwks"
	"github.com/dropDatabas3/authdata/internal/observability/logger"
	"github.com/dropDatabas3/authdata/internal/providers/builtin"
	mfaprovider "github.com/dropDatabas3/authdata/internal/providers/mfa"
	"github.com/dropDatabas3/authdata/internal/rate"
	"github.com/dropDatabas3/authdata/internal/security/secretbox"
	"github.com/dropDatabas3/authdata/internal/store"
	"github.com/dropDatabas3/authdata/internal/store/core"
	"github.com/dropDatabas3/authdata/internal/store/pg"
	"github.com/dropDatabas3/authdata/internal/store/redis"
	migrations "github.com/dropDatabas3/authdata/migrations/postgres"
)

type Container struct {
	Config  *config.Config
	Keys    *jwks.Cache
	Store   core.Store
	Loader  *auth.Loader
	Handler *auth.Handler
	Service authdata.Service
}

// New wires every component. The caller owns Close.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	log := logger.From(ctx).With(logger.Layer("app"))

	client := &http.Client{Timeout: config.Duration(cfg.KeyCache.HTTPTimeout)}
	keys := jwks.New(jwks.Config{HTTPClient: client, MaxKeys: cfg.KeyCache.MaxKeys})

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	deps := builtin.Deps{
		Keys:                       keys,
		HTTP:                       client,
		EnableInsecureAuthAdapters: cfg.EnableInsecureAuthAdapters,
		MFA:                        mfaprovider.Deps{HTTP: client},
	}
	if cfg.Secretbox.MasterKey != "" {
		box, err := secretbox.New(cfg.Secretbox.MasterKey)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("secretbox: %w", err)
		}
		deps.MFA.Box = box
	}
	if cfg.Rate.MFA.Limit > 0 {
		window := config.Duration(cfg.Rate.MFA.Window)
		if rs, ok := st.(*redis.Store); ok {
			deps.MFA.Limiter = rate.NewRedisLimiter(rs.Client(), cfg.Store.Redis.Prefix+"rl:", cfg.Rate.MFA.Limit, window)
		} else {
			deps.MFA.Limiter = rate.NewMemoryLimiter(cfg.Rate.MFA.Limit, window)
		}
	}

	loader := auth.NewLoader(cfg.Providers(), builtin.Factories(deps), builtin.Modules(deps))
	handler := auth.NewHandler(loader)
	log.Info("authdata assembled",
		logger.String("store", cfg.Store.Driver),
		logger.Count(len(loader.Names())),
		logger.Bool("insecure_adapters", cfg.EnableInsecureAuthAdapters))

	return &Container{
		Config:  cfg,
		Keys:    keys,
		Store:   st,
		Loader:  loader,
		Handler: handler,
		Service: authdata.NewService(authdata.Deps{
			Handler:                   handler,
			Store:                     st,
			AllowExpiredAuthDataToken: cfg.AllowExpiredAuthDataToken,
		}),
	}, nil
}

// CheckProviders resolves every configured provider, failing on the first
// misconfiguration.
func (c *Container) CheckProviders(ctx context.Context) error {
	for name := range c.Config.Auth {
		if _, err := c.Loader.Load(ctx, name); err != nil {
			return fmt.Errorf("auth.%s: %w", name, err)
		}
	}
	return nil
}

func (c *Container) Close() error {
	if c.Store == nil {
		return nil
	}
	return c.Store.Close()
}

func openStore(ctx context.Context, cfg *config.Config) (core.Store, error) {
	sc := store.Config{Driver: cfg.Store.Driver}
	sc.Redis = redis.Config{
		Addr:     cfg.Store.Redis.Addr,
		Password: cfg.Store.Redis.Password,
		DB:       cfg.Store.Redis.DB,
		Prefix:   cfg.Store.Redis.Prefix,
	}
	sc.Postgres.DSN = cfg.Store.Postgres.DSN
	sc.Postgres.Config = pg.Config{
		MaxOpenConns:    cfg.Store.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Store.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Store.Postgres.ConnMaxLifetime,
	}
	st, err := store.Open(ctx, sc)
	if err != nil {
		return nil, err
	}
	if ps, ok := st.(*pg.Store); ok && cfg.Store.Migrate {
		if err := migrations.Apply(ctx, ps.DB()); err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	return st, nil
}
