// Package phantauth validates PhantAuth test identities. It is insecure and
// only runs when both enableInsecureAuth (provider) and
// enableInsecureAuthAdapters (global) are set.
package phantauth

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/authdata/internal/autherr"
	"github.com/dropDatabas3/authdata/internal/observability/logger"
	"github.com/dropDatabas3/authdata/internal/providers"
)

const UserInfoURL = "https://phantauth.net/auth/userinfo"

type Adapter struct {
	providers.NoAppID

	HTTP *http.Client
	// InsecureAllowed mirrors the global enableInsecureAuthAdapters flag.
	InsecureAllowed bool
	URL             string
}

func New(client *http.Client, insecureAllowed bool) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Adapter{HTTP: client, InsecureAllowed: insecureAllowed, URL: UserInfoURL}
}

func Factory(client *http.Client, insecureAllowed bool) providers.Factory {
	return func(providers.Options) (providers.Adapter, error) {
		return New(client, insecureAllowed), nil
	}
}

func (a *Adapter) ValidateAuthData(ctx context.Context, authData providers.AuthData, opts providers.Options, _ providers.AuthData) (providers.Result, error) {
	if !a.InsecureAllowed || !opts.Bool("enableInsecureAuth") {
		return providers.Result{}, autherr.New(autherr.KindMisconfigured, "PhantAuth only works with enableInsecureAuth: true")
	}
	logger.From(ctx).Warn("phantauth adapter is insecure and deprecated", logger.Component("phantauth"))

	var info struct {
		Sub string `json:"sub"`
	}
	client := providers.BearerClient(ctx, a.HTTP, authData.String("access_token"))
	if err := providers.GetJSON(ctx, client, a.URL, nil, &info); err != nil {
		return providers.Result{}, autherr.Wrap(err, autherr.KindVerificationFailed, "PhantAuth auth is invalid for this user.")
	}
	if info.Sub == "" || info.Sub != authData.String("id") {
		return providers.Result{}, autherr.New(autherr.KindVerificationFailed, "PhantAuth auth is invalid for this user.")
	}
	return providers.Result{Claims: map[string]any{"sub": info.Sub}}, nil
}
