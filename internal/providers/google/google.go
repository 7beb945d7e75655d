// Package google validates Google Sign-In ID tokens.
package google

import (
	"fmt"
	"strings"

	"github.com/dropDatabas3/authdata/internal/jwks"
	"github.com/dropDatabas3/authdata/internal/providers"
	"github.com/dropDatabas3/authdata/internal/providers/oidcgeneric"
)

const KeysURI = "https://www.googleapis.com/oauth2/v3/certs"

// Google signs with either form of its issuer.
var Issuers = []string{"accounts.google.com", "https://accounts.google.com"}

// Provider is Google's fixed OIDC configuration. authData is
// {id, id_token, access_token}; only id_token is verified.
var Provider = oidcgeneric.Provider{
	Name:       "Google",
	Issuers:    Issuers,
	JWKSURI:    KeysURI,
	TokenField: "id_token",
	Keys:       jwks.Options{HonorCacheControl: true},
	IssuerMessage: func(expected []string, got string) string {
		return fmt.Sprintf("id token not issued by correct provider - expected: %s | from: %s",
			strings.Join(expected, " or "), got)
	},
}

// New returns the Google adapter.
func New(cache *jwks.Cache) *oidcgeneric.Adapter {
	return oidcgeneric.New(Provider, cache)
}

// Factory adapts New to the loader.
func Factory(cache *jwks.Cache) providers.Factory {
	return func(providers.Options) (providers.Adapter, error) {
		return New(cache), nil
	}
}
