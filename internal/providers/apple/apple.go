// Package apple validates Sign in with Apple identity tokens.
package apple

import (
	"time"

	"github.com/dropDatabas3/authdata/internal/jwks"
	"github.com/dropDatabas3/authdata/internal/providers"
	"github.com/dropDatabas3/authdata/internal/providers/oidcgeneric"
)

const (
	Issuer  = "https://appleid.apple.com"
	KeysURI = Issuer + "/auth/keys"
)

// Provider is Apple's fixed OIDC configuration. authData is {id, token}.
var Provider = oidcgeneric.Provider{
	Name:    "Apple",
	Issuers: []string{Issuer},
	JWKSURI: KeysURI,
	Keys:    jwks.Options{MaxEntries: 5, MaxAge: time.Hour},
}

// New returns the Apple adapter.
func New(cache *jwks.Cache) *oidcgeneric.Adapter {
	return oidcgeneric.New(Provider, cache)
}

// Factory adapts New to the loader.
func Factory(cache *jwks.Cache) providers.Factory {
	return func(providers.Options) (providers.Adapter, error) {
		return New(cache), nil
	}
}
