package auth

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/dropDatabas3/authdata/internal/autherr"
	"github.com/dropDatabas3/authdata/internal/metrics"
	"github.com/dropDatabas3/authdata/internal/observability/logger"
	"github.com/dropDatabas3/authdata/internal/providers"
	"github.com/dropDatabas3/authdata/internal/util"
)

// Validator checks one provider's authData. existing is the payload stored
// for the provider on the user, nil when none.
type Validator func(ctx context.Context, authData providers.AuthData, req providers.Request, existing providers.AuthData) (providers.Result, error)

// Binding is a provider bound for validation.
type Binding struct {
	Provider  string
	AppIDs    []string
	Options   providers.Options
	Validator Validator

	adapter providers.Adapter
	enabled bool
}

// Handler hands out validators. Enablement, app id checks, mode dispatch,
// panic recovery and error typing happen here so adapters need not repeat
// them.
type Handler struct {
	loader *Loader
}

func NewHandler(l *Loader) *Handler {
	return &Handler{loader: l}
}

// Loader is the underlying loader.
func (h *Handler) Loader() *Loader { return h.loader }

// ValidatorForProvider binds name. A disabled provider still binds; its
// validator fails with UnsupportedService without reaching the adapter.
func (h *Handler) ValidatorForProvider(ctx context.Context, name string) (*Binding, error) {
	loaded, err := h.loader.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	b := &Binding{
		Provider: name,
		AppIDs:   loaded.AppIDs,
		Options:  loaded.Options,
		adapter:  loaded.Adapter,
		enabled:  loaded.Enabled,
	}
	b.Validator = func(ctx context.Context, authData providers.AuthData, req providers.Request, existing providers.AuthData) (providers.Result, error) {
		res, err := b.validate(ctx, loaded, authData, req, existing)
		metrics.ObserveValidation(name, string(req.Mode), err)
		return res, err
	}
	return b, nil
}

func (b *Binding) validate(ctx context.Context, loaded *Loaded, authData providers.AuthData, req providers.Request, existing providers.AuthData) (providers.Result, error) {
	log := logger.From(ctx).With(logger.Layer("auth"), logger.Op("auth.validate"),
		logger.Provider(b.Provider), logger.Mode(string(req.Mode)))

	if !b.enabled {
		return providers.Result{}, autherr.ErrUnsupportedService
	}
	if loaded.HasAppIDs() {
		err := guard(func() error {
			return b.adapter.ValidateAppID(ctx, loaded.AppIDs, authData, b.Options)
		})
		if err != nil {
			log.Info("app id rejected", logger.Err(err))
			return providers.Result{}, autherr.FromError(err)
		}
	}

	var res providers.Result
	err := guard(func() (err error) {
		res, err = b.dispatch(ctx, authData, req, existing)
		return err
	})
	if err != nil {
		e := autherr.FromError(err)
		log.Info("auth data rejected", logger.ErrorCode(int(e.Code)),
			logger.String("credential", credentialHint(authData)), logger.Err(err))
		return providers.Result{}, e
	}
	return res, nil
}

func (b *Binding) dispatch(ctx context.Context, authData providers.AuthData, req providers.Request, existing providers.AuthData) (providers.Result, error) {
	switch req.Mode {
	case providers.ModeSetup:
		if v, ok := b.adapter.(providers.SetupValidator); ok {
			return v.ValidateSetup(ctx, authData, b.Options, req)
		}
	case providers.ModeUpdate:
		if v, ok := b.adapter.(providers.UpdateValidator); ok {
			return v.ValidateUpdate(ctx, authData, b.Options, req, existing)
		}
	case providers.ModeLogin:
		if v, ok := b.adapter.(providers.LoginValidator); ok {
			return v.ValidateLogin(ctx, authData, b.Options, req, existing)
		}
	}
	return b.adapter.ValidateAuthData(ctx, authData, b.Options, existing)
}

// Enabled reports whether the provider accepts credentials.
func (b *Binding) Enabled() bool { return b.enabled }

// Policy is the login policy for the user's stored payload.
func (b *Binding) Policy(stored providers.AuthData) providers.Policy {
	if p, ok := b.adapter.(providers.PolicyProvider); ok && b.enabled {
		return p.Policy(stored)
	}
	return providers.PolicyDefault
}

// Project is the client-visible view of the stored payload.
func (b *Binding) Project(stored providers.AuthData, req providers.Request) providers.AuthData {
	if p, ok := b.adapter.(providers.Projector); ok {
		return p.Project(stored, req)
	}
	return stored
}

// Unlink asks the adapter to approve removal. Adapters without an unlink
// check approve. Disabled providers can always be removed.
func (b *Binding) Unlink(ctx context.Context, proof providers.AuthData, req providers.Request, existing providers.AuthData) error {
	v, ok := b.adapter.(providers.UnlinkValidator)
	if !ok || !b.enabled {
		return nil
	}
	err := guard(func() error { return v.ValidateUnlink(ctx, proof, b.Options, req, existing) })
	if err != nil {
		return autherr.FromError(err)
	}
	return nil
}

// guard converts an adapter panic into an authentication failure.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = autherr.Wrap(fmt.Errorf("adapter panic: %v\n%s", r, debug.Stack()),
				autherr.KindAuthenticationFailed, "Authentication failed.")
		}
	}()
	return fn()
}

// credentialHint masks the token a failed payload carried, if any.
func credentialHint(authData providers.AuthData) string {
	for _, k := range []string{"id_token", "access_token", "token"} {
		if v := authData.String(k); v != "" {
			return k + ":" + util.MaskToken(v)
		}
	}
	return ""
}
