// Package builtin wires every built-in adapter to its shared dependencies.
package builtin

import (
	"net/http"
	"time"

	"github.com/dropDatabas3/authdata/internal/jwks"
	"github.com/dropDatabas3/authdata/internal/providers"
	"github.com/dropDatabas3/authdata/internal/providers/apple"
	"github.com/dropDatabas3/authdata/internal/providers/facebook"
	"github.com/dropDatabas3/authdata/internal/providers/google"
	"github.com/dropDatabas3/authdata/internal/providers/keycloak"
	"github.com/dropDatabas3/authdata/internal/providers/mfa"
	"github.com/dropDatabas3/authdata/internal/providers/oidcgeneric"
	"github.com/dropDatabas3/authdata/internal/providers/phantauth"
	"github.com/dropDatabas3/authdata/internal/providers/vkontakte"
)

// Deps are shared by the built-in adapters.
type Deps struct {
	// Keys is the process-wide key cache; sets are still kept per URI.
	Keys *jwks.Cache
	HTTP *http.Client
	// EnableInsecureAuthAdapters is the global opt-in for legacy providers.
	EnableInsecureAuthAdapters bool
	MFA                        mfa.Deps
}

func (d Deps) withDefaults() Deps {
	if d.HTTP == nil {
		d.HTTP = &http.Client{Timeout: 10 * time.Second}
	}
	if d.Keys == nil {
		d.Keys = jwks.New(jwks.Config{HTTPClient: d.HTTP})
	}
	if d.MFA.HTTP == nil {
		d.MFA.HTTP = d.HTTP
	}
	return d
}

// Factories maps built-in provider names to their factories.
func Factories(d Deps) map[string]providers.Factory {
	d = d.withDefaults()
	return map[string]providers.Factory{
		"apple":     apple.Factory(d.Keys),
		"google":    google.Factory(d.Keys),
		"facebook":  facebook.Factory(d.Keys, d.HTTP),
		"keycloak":  keycloak.Factory(d.HTTP),
		"phantauth": phantauth.Factory(d.HTTP, d.EnableInsecureAuthAdapters),
		"vkontakte": vkontakte.Factory(d.HTTP, d.EnableInsecureAuthAdapters),
		mfa.Name:    mfa.Factory(d.MFA),
	}
}

// Modules maps module references shipped with the service to factories.
func Modules(d Deps) map[string]providers.Factory {
	d = d.withDefaults()
	return map[string]providers.Factory{
		"oidc": oidcgeneric.Factory(d.Keys),
	}
}
