// Package auth resolves provider configuration into adapters and binds them
// into validators for the request layer.
package auth

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/authdata/internal/autherr"
	"github.com/dropDatabas3/authdata/internal/observability/logger"
	"github.com/dropDatabas3/authdata/internal/providers"
)

// ProviderConfig is the configuration of one provider. At most one of
// Adapter, Factory and Module may be set; with none set, a built-in of the
// same name is used.
type ProviderConfig struct {
	// Enabled defaults to true.
	Enabled *bool
	// AppIDs is a string or a list; nil means none declared.
	AppIDs any
	// Module is a module reference: a registered name or a plugin path.
	Module string
	// Options are merged over Extra when Module is used.
	Options providers.Options
	// Extra holds the provider-specific keys (clientId, appSecret, ...).
	Extra providers.Options

	Adapter providers.Adapter
	Factory providers.Factory
}

// IsEnabled reports whether the provider accepts credentials.
func (c ProviderConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Loaded is a resolved provider.
type Loaded struct {
	Name    string
	Enabled bool
	Adapter providers.Adapter
	// AppIDs is nil when the configuration declares none.
	AppIDs  []string
	Options providers.Options
}

// HasAppIDs reports whether app id validation applies.
func (l *Loaded) HasAppIDs() bool { return l.AppIDs != nil }

// Loader resolves providers once and caches them for the process lifetime.
// Concurrent first uses of a provider share one resolution.
type Loader struct {
	configs  map[string]ProviderConfig
	builtins map[string]providers.Factory
	modules  map[string]providers.Factory
	// open resolves module references not in modules.
	open func(ref string) (providers.Factory, error)

	cache sync.Map // name -> *Loaded
	sf    singleflight.Group
}

// NewLoader builds a loader over configs. builtins are the default adapters
// by provider name; modules are module references shipped with the service.
func NewLoader(configs map[string]ProviderConfig, builtins, modules map[string]providers.Factory) *Loader {
	return &Loader{
		configs:  configs,
		builtins: builtins,
		modules:  modules,
		open:     providers.OpenModule,
	}
}

// Names lists configured and built-in providers.
func (l *Loader) Names() []string {
	seen := map[string]bool{}
	for n := range l.configs {
		seen[n] = true
	}
	for n := range l.builtins {
		seen[n] = true
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Load returns the cached resolution of name, resolving it on first use.
func (l *Loader) Load(ctx context.Context, name string) (*Loaded, error) {
	if v, ok := l.cache.Load(name); ok {
		return v.(*Loaded), nil
	}
	v, err, _ := l.sf.Do(name, func() (any, error) {
		if v, ok := l.cache.Load(name); ok {
			return v, nil
		}
		loaded, err := l.Resolve(name)
		if err != nil {
			logger.From(ctx).Warn("provider resolution failed",
				logger.Layer("auth"), logger.Op("auth.load"), logger.Provider(name), logger.Err(err))
			return nil, err
		}
		l.cache.Store(name, loaded)
		logger.From(ctx).Debug("provider resolved",
			logger.Layer("auth"), logger.Op("auth.load"), logger.Provider(name),
			logger.Bool("enabled", loaded.Enabled))
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Loaded), nil
}

// Resolve resolves name without caching. It is deterministic: the same
// configuration always yields an equivalent adapter.
func (l *Loader) Resolve(name string) (*Loaded, error) {
	cfg, configured := l.configs[name]
	builtin, isBuiltin := l.builtins[name]
	if !configured && !isBuiltin {
		return nil, autherr.ErrUnsupportedService
	}

	loaded := &Loaded{Name: name, Enabled: cfg.IsEnabled()}
	appIDs, declared := cfg.appIDs()
	if declared {
		loaded.AppIDs = appIDs
	}
	loaded.Options = cfg.options()
	if !loaded.Enabled {
		return loaded, nil
	}

	sources := 0
	for _, set := range []bool{cfg.Adapter != nil, cfg.Factory != nil, cfg.Module != ""} {
		if set {
			sources++
		}
	}
	if sources > 1 {
		return nil, autherr.Newf(autherr.KindMisconfigured,
			"%s auth has more than one adapter source (adapter, factory, module).", name)
	}

	var (
		factory providers.Factory
		err     error
	)
	switch {
	case cfg.Adapter != nil:
		loaded.Adapter = cfg.Adapter
	case cfg.Factory != nil:
		factory = cfg.Factory
	case cfg.Module != "":
		factory, err = l.openModule(cfg.Module)
		if err != nil {
			return nil, autherr.Wrap(err, autherr.KindMisconfigured,
				fmt.Sprintf("%s auth module %q could not be loaded.", name, cfg.Module))
		}
	case isBuiltin:
		factory = builtin
	default:
		return nil, autherr.ErrUnsupportedService
	}

	if factory != nil {
		if loaded.Adapter, err = factory(loaded.Options); err != nil {
			return nil, misconfigured(name, err)
		}
		if loaded.Adapter == nil {
			return nil, autherr.Newf(autherr.KindMisconfigured, "%s auth adapter is nil.", name)
		}
	}
	if v, ok := loaded.Adapter.(providers.OptionsValidator); ok {
		if err := v.ValidateOptions(loaded.Options); err != nil {
			return nil, misconfigured(name, err)
		}
	}
	return loaded, nil
}

func (l *Loader) openModule(ref string) (providers.Factory, error) {
	if f, ok := l.modules[ref]; ok {
		return f, nil
	}
	return l.open(ref)
}

func misconfigured(name string, err error) error {
	if e, ok := autherr.As(err); ok {
		return e
	}
	return autherr.Wrap(err, autherr.KindMisconfigured, fmt.Sprintf("%s auth is misconfigured: %v", name, err))
}

func (c ProviderConfig) appIDs() ([]string, bool) {
	if c.AppIDs == nil {
		return nil, false
	}
	ids, _ := providers.StringsOf(c.AppIDs)
	if ids == nil {
		ids = []string{}
	}
	return ids, true
}

// options are the provider options adapters receive: the provider-specific
// keys, appIds as configured, then the module descriptor's options.
func (c ProviderConfig) options() providers.Options {
	out := providers.Options{}
	for k, v := range c.Extra {
		out[k] = v
	}
	if c.AppIDs != nil {
		out["appIds"] = c.AppIDs
	}
	for k, v := range c.Options {
		out[k] = v
	}
	return out
}
