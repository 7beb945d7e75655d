// Package keycloak validates access tokens against a Keycloak realm's
// userinfo endpoint.
//
// authData: {id, access_token, roles?, groups?}
// options:  {config: {"auth-server-url": ..., "realm": ...}}
package keycloak

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/dropDatabas3/authdata/internal/autherr"
	"github.com/dropDatabas3/authdata/internal/observability/logger"
	"github.com/dropDatabas3/authdata/internal/providers"
)

type Adapter struct {
	providers.NoAppID

	HTTP *http.Client
}

func New(client *http.Client) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Adapter{HTTP: client}
}

func Factory(client *http.Client) providers.Factory {
	return func(providers.Options) (providers.Adapter, error) {
		return New(client), nil
	}
}

type userInfo struct {
	Sub    string   `json:"sub"`
	Roles  []string `json:"roles"`
	Groups []string `json:"groups"`
}

func (a *Adapter) ValidateAuthData(ctx context.Context, authData providers.AuthData, opts providers.Options, _ providers.AuthData) (providers.Result, error) {
	token, id := authData.String("access_token"), authData.String("id")
	if token == "" || id == "" {
		return providers.Result{}, autherr.New(autherr.KindInvalidToken, "Missing access token and/or User id")
	}
	cfg := providers.Options(opts.Map("config"))
	server, realm := cfg.String("auth-server-url"), cfg.String("realm")
	if server == "" || realm == "" {
		return providers.Result{}, autherr.WithCode(autherr.KindMisconfigured, autherr.ObjectNotFound, "Missing keycloak configuration")
	}

	endpoint := strings.TrimRight(server, "/") + "/realms/" + url.PathEscape(realm) + "/protocol/openid-connect/userinfo"
	var info userInfo
	err := providers.GetJSON(ctx, providers.BearerClient(ctx, a.HTTP, token), endpoint, nil, &info)
	if err != nil {
		logger.From(ctx).Warn("keycloak userinfo failed", logger.Component("keycloak"), logger.Err(err))
		return providers.Result{}, autherr.Wrap(err, autherr.KindVerificationFailed, connectionMessage(err))
	}

	if info.Sub != id ||
		!sameSet(info.Roles, authData["roles"]) ||
		!sameSet(info.Groups, authData["groups"]) {
		return providers.Result{}, autherr.New(autherr.KindVerificationFailed, "Invalid authentication")
	}
	return providers.Result{Claims: map[string]any{"sub": info.Sub, "roles": info.Roles, "groups": info.Groups}}, nil
}

// connectionMessage surfaces the server's error_description when it sent one.
func connectionMessage(err error) string {
	var he *providers.HTTPError
	if errors.As(err, &he) {
		var body struct {
			Description string `json:"error_description"`
		}
		if json.Unmarshal(he.Body, &body) == nil && body.Description != "" {
			return body.Description
		}
	}
	return "Could not connect to the authentication server"
}

// sameSet compares the provider's list with what the client claimed. A
// claim the client did not send is not checked.
func sameSet(got []string, claimed any) bool {
	if claimed == nil {
		return true
	}
	want, isList := providers.StringsOf(claimed)
	if !isList || len(got) != len(want) {
		return false
	}
	a := append([]string(nil), got...)
	b := append([]string(nil), want...)
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
