// Package oidcgeneric validates authData carrying an OIDC ID token. The
// built-in Apple, Google and Facebook limited-login adapters are fixed
// configurations of it; the "oidc" module configures it from options.
package oidcgeneric

import (
	"context"
	"fmt"
	"time"

	"github.com/dropDatabas3/authdata/internal/autherr"
	"github.com/dropDatabas3/authdata/internal/jwks"
	"github.com/dropDatabas3/authdata/internal/observability/logger"
	"github.com/dropDatabas3/authdata/internal/oidc"
	"github.com/dropDatabas3/authdata/internal/providers"
)

// Provider describes one identity provider.
type Provider struct {
	// Name is used in configuration error messages ("Apple auth is not configured...").
	Name    string
	Issuers []string
	JWKSURI string
	// TokenField is the authData field holding the ID token. Default "token".
	TokenField string
	// Keys are the default key cache bounds; cacheMaxEntries/cacheMaxAge
	// options override them.
	Keys          jwks.Options
	IssuerMessage func(expected []string, got string) string
	// Configurable lets the issuer and jwksUri options replace Issuers and
	// JWKSURI (generic module). Built-ins only accept a jwksUri override.
	Configurable bool
}

// Adapter verifies ID tokens for one Provider.
type Adapter struct {
	providers.NoAppID

	Provider Provider
	Cache    *jwks.Cache
	Leeway   time.Duration
}

// New returns an adapter for p resolving keys through cache.
func New(p Provider, cache *jwks.Cache) *Adapter {
	return &Adapter{Provider: p, Cache: cache}
}

// Factory builds the generic "oidc" module: options issuer (string or list),
// jwksUri, clientId, and optional cacheMaxEntries/cacheMaxAge.
func Factory(cache *jwks.Cache) providers.Factory {
	return func(opts providers.Options) (providers.Adapter, error) {
		a := New(Provider{Name: "OIDC", Configurable: true, Keys: jwks.Options{MaxAge: time.Hour}}, cache)
		if err := a.ValidateOptions(opts); err != nil {
			return nil, err
		}
		return a, nil
	}
}

// ValidateOptions requires an issuer and a key set endpoint for configurable
// providers.
func (a *Adapter) ValidateOptions(opts providers.Options) error {
	if !a.Provider.Configurable {
		return nil
	}
	if iss, _ := opts.Strings("issuer"); len(iss) == 0 {
		return autherr.New(autherr.KindMisconfigured, "OIDC auth is not configured. Missing issuer.")
	}
	if opts.String("jwksUri") == "" {
		return autherr.New(autherr.KindMisconfigured, "OIDC auth is not configured. Missing jwksUri.")
	}
	return nil
}

func (a *Adapter) ValidateAuthData(ctx context.Context, authData providers.AuthData, opts providers.Options, _ providers.AuthData) (providers.Result, error) {
	claims, err := a.Verify(ctx, authData, opts)
	if err != nil {
		return providers.Result{}, err
	}
	return providers.Result{Claims: claims}, nil
}

// Verify checks authData's token and returns its claims.
func (a *Adapter) Verify(ctx context.Context, authData providers.AuthData, opts providers.Options) (oidc.Claims, error) {
	field := a.Provider.TokenField
	if field == "" {
		field = "token"
	}
	token := authData.String(field)

	clientIDs, _ := opts.Strings("clientId")
	if token != "" && len(clientIDs) == 0 {
		return nil, autherr.New(autherr.KindMisconfigured,
			fmt.Sprintf("%s auth is not configured. Missing clientId.", a.Provider.Name))
	}

	v := &oidc.Verifier{
		Keys:          a.Cache.Source(a.jwksURI(opts), a.keyOptions(opts)),
		Leeway:        a.Leeway,
		IssuerMessage: a.Provider.IssuerMessage,
	}
	claims, err := v.Verify(ctx, token, oidc.Expectation{
		Issuers:  a.issuers(opts),
		Subject:  authData.String("id"),
		Audience: clientIDs,
	})
	if err != nil {
		logger.From(ctx).Debug("id token rejected",
			logger.Component("oidcgeneric"), logger.Provider(a.Provider.Name), logger.Err(err))
		return nil, err
	}
	return claims, nil
}

func (a *Adapter) jwksURI(opts providers.Options) string {
	if u := opts.String("jwksUri"); u != "" {
		return u
	}
	return a.Provider.JWKSURI
}

func (a *Adapter) issuers(opts providers.Options) []string {
	if a.Provider.Configurable {
		if iss, _ := opts.Strings("issuer"); len(iss) > 0 {
			return iss
		}
	}
	return a.Provider.Issuers
}

func (a *Adapter) keyOptions(opts providers.Options) jwks.Options {
	ko := a.Provider.Keys
	if n, ok := opts.Int("cacheMaxEntries"); ok && n > 0 {
		ko.MaxEntries = n
	}
	if d, ok := opts.Duration("cacheMaxAge"); ok && d > 0 {
		ko.MaxAge = d
	}
	return ko
}
