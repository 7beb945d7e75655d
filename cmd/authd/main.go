package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dropDatabas3/authdata/internal/app"
	"github.com/dropDatabas3/authdata/internal/config"
	httpserver "github.com/dropDatabas3/authdata/internal/http"
	"github.com/dropDatabas3/authdata/internal/http/router"
	"github.com/dropDatabas3/authdata/internal/metrics"
	"github.com/dropDatabas3/authdata/internal/observability/logger"
)

var version = "dev"

func main() {
	configPath := flag.String("config", envOr("AUTHDATA_CONFIG", "configs/authdata.yaml"), "Path to YAML config")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("WARN: .env: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "authd", Version: version}); err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := metrics.Register(nil); err != nil {
		logger.L().Fatal("metrics registration failed", logger.Err(err))
	}

	c, err := app.New(ctx, cfg)
	if err != nil {
		logger.L().Fatal("wiring failed", logger.Err(err))
	}
	defer c.Close()
	if err := c.CheckProviders(ctx); err != nil {
		logger.L().Fatal("provider configuration rejected", logger.Err(err))
	}

	handler := router.New(router.Deps{
		Service:   c.Service,
		Store:     c.Store,
		MasterKey: cfg.Server.MasterKey,
		Version:   version,
	})
	err = httpserver.Serve(ctx, httpserver.ServerConfig{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout),
	}, handler)
	if err != nil {
		logger.L().Fatal("server failed", logger.Err(err))
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
