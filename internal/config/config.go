// Package config loads the service configuration: YAML file, then
// environment overrides, then validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/authdata/internal/auth"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env" validate:"omitempty,oneof=dev staging prod"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr" validate:"required"`
		// MasterKey authorizes master requests (X-Master-Key). Empty disables them.
		MasterKey    string `yaml:"masterKey"`
		ReadTimeout  string `yaml:"readTimeout"`
		WriteTimeout string `yaml:"writeTimeout"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	} `yaml:"log"`

	EnableInsecureAuthAdapters bool `yaml:"enableInsecureAuthAdapters"`
	AllowExpiredAuthDataToken  bool `yaml:"allowExpiredAuthDataToken"`

	KeyCache struct {
		// MaxKeys bounds the signing keys held across providers; 0 = unbounded.
		MaxKeys     int    `yaml:"maxKeys" validate:"gte=0"`
		HTTPTimeout string `yaml:"httpTimeout"`
	} `yaml:"keyCache"`

	Store struct {
		Driver string `yaml:"driver" validate:"oneof=memory redis postgres"`
		Redis  struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db" validate:"gte=0"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Postgres struct {
			DSN             string `yaml:"dsn"`
			MaxOpenConns    int    `yaml:"maxOpenConns" validate:"gte=0"`
			MaxIdleConns    int    `yaml:"maxIdleConns" validate:"gte=0"`
			ConnMaxLifetime string `yaml:"connMaxLifetime"`
		} `yaml:"postgres"`
		Migrate bool `yaml:"migrate"`
	} `yaml:"store"`

	Secretbox struct {
		// base64(32 bytes); seals MFA secrets at rest when set
		MasterKey string `yaml:"masterKey"`
	} `yaml:"secretbox"`

	Rate struct {
		MFA struct {
			// Limit 0 disables MFA attempt limiting.
			Limit  int    `yaml:"limit" validate:"gte=0"`
			Window string `yaml:"window"`
		} `yaml:"mfa"`
	} `yaml:"rate"`

	Auth map[string]ProviderSpec `yaml:"auth"`
}

var validate = validator.New()

// Load reads path and applies defaults, AUTHDATA_* overrides and validation.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse is Load without the file read.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	c.applyEnvOverrides()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "10s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "15s"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.KeyCache.HTTPTimeout == "" {
		c.KeyCache.HTTPTimeout = "10s"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Store.Redis.Prefix == "" {
		c.Store.Redis.Prefix = "authdata:"
	}
	if c.Rate.MFA.Window == "" {
		c.Rate.MFA.Window = "1m"
	}
	if c.Auth == nil {
		c.Auth = map[string]ProviderSpec{}
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

// applyEnvOverrides: pisa el YAML con variables AUTHDATA_*.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("AUTHDATA_APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("AUTHDATA_SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("AUTHDATA_MASTER_KEY"); ok {
		c.Server.MasterKey = v
	}
	if v, ok := getEnvStr("AUTHDATA_LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}
	if v, ok := getEnvBool("AUTHDATA_ENABLE_INSECURE_AUTH_ADAPTERS"); ok {
		c.EnableInsecureAuthAdapters = v
	}
	if v, ok := getEnvBool("AUTHDATA_ALLOW_EXPIRED_AUTH_DATA_TOKEN"); ok {
		c.AllowExpiredAuthDataToken = v
	}
	if v, ok := getEnvInt("AUTHDATA_KEY_CACHE_MAX_KEYS"); ok {
		c.KeyCache.MaxKeys = v
	}

	// STORE
	if v, ok := getEnvStr("AUTHDATA_STORE_DRIVER"); ok {
		c.Store.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvStr("AUTHDATA_REDIS_ADDR"); ok {
		c.Store.Redis.Addr = v
	}
	if v, ok := getEnvStr("AUTHDATA_REDIS_PASSWORD"); ok {
		c.Store.Redis.Password = v
	}
	if v, ok := getEnvInt("AUTHDATA_REDIS_DB"); ok {
		c.Store.Redis.DB = v
	}
	if v, ok := getEnvStr("AUTHDATA_POSTGRES_DSN"); ok {
		c.Store.Postgres.DSN = v
	}
	if v, ok := getEnvBool("AUTHDATA_STORE_MIGRATE"); ok {
		c.Store.Migrate = v
	}

	if v, ok := getEnvStr("AUTHDATA_SECRETBOX_KEY"); ok {
		c.Secretbox.MasterKey = v
	}
	if v, ok := getEnvInt("AUTHDATA_RATE_MFA_LIMIT"); ok {
		c.Rate.MFA.Limit = v
	}
}

// Validate checks struct tags, durations and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config: %w", err)
	}

	for name, d := range map[string]string{
		"server.readTimeout":             c.Server.ReadTimeout,
		"server.writeTimeout":            c.Server.WriteTimeout,
		"keyCache.httpTimeout":           c.KeyCache.HTTPTimeout,
		"rate.mfa.window":                c.Rate.MFA.Window,
		"store.postgres.connMaxLifetime": c.Store.Postgres.ConnMaxLifetime,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	if c.Store.Driver == "redis" && strings.TrimSpace(c.Store.Redis.Addr) == "" {
		return errors.New("config: store.redis.addr is required for the redis driver")
	}
	if c.Store.Driver == "postgres" && strings.TrimSpace(c.Store.Postgres.DSN) == "" {
		return errors.New("config: store.postgres.dsn is required for the postgres driver")
	}
	if strings.EqualFold(c.App.Env, "prod") && c.Store.Driver == "memory" {
		return errors.New("config: the memory store is not allowed in prod")
	}
	for name, spec := range c.Auth {
		if spec.Module != "" && spec.Adapter != nil {
			return fmt.Errorf("config: auth.%s: module and adapter are exclusive", name)
		}
	}
	return nil
}

// Duration parses a validated duration field.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// Providers converts the auth section into loader configurations.
func (c *Config) Providers() map[string]auth.ProviderConfig {
	out := make(map[string]auth.ProviderConfig, len(c.Auth))
	for name, spec := range c.Auth {
		out[name] = spec.ProviderConfig()
	}
	return out
}
