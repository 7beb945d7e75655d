// Package logger provides the process-wide zap logger and context scoping.
//
// Init once in main:
//
//	_ = logger.Init(logger.Config{Env: os.Getenv("APP_ENV"), Level: os.Getenv("LOG_LEVEL")})
//	defer logger.Sync()
//
// In services, take the request-scoped logger from the context:
//
//	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("authdata.login"))
//	log.Info("provider validated", logger.Provider(name))
//
// Tokens, secrets and one-time codes must never be passed as fields.
package logger
