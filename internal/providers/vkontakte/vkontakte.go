// Package vkontakte validates VK access tokens through the VK REST API. It is
// insecure and only runs when both enableInsecureAuth (provider) and
// enableInsecureAuthAdapters (global) are set.
package vkontakte

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/authdata/internal/autherr"
	"github.com/dropDatabas3/authdata/internal/observability/logger"
	"github.com/dropDatabas3/authdata/internal/providers"
)

const (
	DefaultAPIVersion = "5.124"
	OAuthURL          = "https://oauth.vk.com/"
	APIURL            = "https://api.vk.com/"
)

const invalidUser = "Vk auth is invalid for this user."

type Adapter struct {
	providers.NoAppID

	HTTP            providers.HTTPDoer
	InsecureAllowed bool
	OAuthURL        string
	APIURL          string
}

func New(client providers.HTTPDoer, insecureAllowed bool) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Adapter{HTTP: client, InsecureAllowed: insecureAllowed, OAuthURL: OAuthURL, APIURL: APIURL}
}

func Factory(client providers.HTTPDoer, insecureAllowed bool) providers.Factory {
	return func(providers.Options) (providers.Adapter, error) {
		return New(client, insecureAllowed), nil
	}
}

func (a *Adapter) ValidateAuthData(ctx context.Context, authData providers.AuthData, opts providers.Options, _ providers.AuthData) (providers.Result, error) {
	if !a.InsecureAllowed || !opts.Bool("enableInsecureAuth") {
		return providers.Result{}, autherr.New(autherr.KindMisconfigured, "Vk only works with enableInsecureAuth: true")
	}
	log := logger.From(ctx).With(logger.Component("vkontakte"))
	log.Warn("vkontakte adapter is insecure and deprecated")

	appIDs, _ := opts.Strings("appIds")
	secret := opts.String("appSecret")
	if len(appIDs) == 0 || secret == "" {
		return providers.Result{}, autherr.WithCode(autherr.KindMisconfigured, autherr.ObjectNotFound,
			"Vk auth is not configured. Missing appIds or appSecret.")
	}
	version := opts.String("apiVersion")
	if version == "" {
		version = DefaultAPIVersion
	}

	var app struct {
		AccessToken string `json:"access_token"`
	}
	q := url.Values{
		"client_id":     {strings.Join(appIDs, ",")},
		"client_secret": {secret},
		"v":             {version},
		"grant_type":    {"client_credentials"},
	}
	if err := providers.GetJSON(ctx, a.HTTP, a.OAuthURL+"access_token?"+q.Encode(), nil, &app); err != nil || app.AccessToken == "" {
		if err != nil {
			log.Info("vk client credentials rejected", logger.Err(err))
		}
		return providers.Result{}, autherr.New(autherr.KindVerificationFailed, "Vk appIds or appSecret is incorrect.")
	}

	var users struct {
		Response []struct {
			ID any `json:"id"`
		} `json:"response"`
	}
	q = url.Values{"access_token": {authData.String("access_token")}, "v": {version}}
	if err := providers.GetJSON(ctx, a.HTTP, a.APIURL+"method/users.get?"+q.Encode(), nil, &users); err != nil {
		return providers.Result{}, autherr.Wrap(err, autherr.KindVerificationFailed, invalidUser)
	}
	if len(users.Response) == 0 {
		return providers.Result{}, autherr.New(autherr.KindVerificationFailed, invalidUser)
	}
	got := providers.AuthData{"id": users.Response[0].ID}.String("id")
	if got == "" || got != authData.String("id") {
		return providers.Result{}, autherr.New(autherr.KindVerificationFailed, invalidUser)
	}
	return providers.Result{Claims: map[string]any{"id": got}}, nil
}
