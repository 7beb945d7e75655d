// Package facebook validates Facebook credentials: limited-login ID tokens
// ({id, token}) through the OIDC verifier, classic access tokens
// ({id, access_token}) through the Graph API.
package facebook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/authdata/internal/autherr"
	"github.com/dropDatabas3/authdata/internal/jwks"
	"github.com/dropDatabas3/authdata/internal/observability/logger"
	"github.com/dropDatabas3/authdata/internal/providers"
	"github.com/dropDatabas3/authdata/internal/providers/oidcgeneric"
)

const (
	Issuer       = "https://www.facebook.com"
	KeysURI      = "https://limited.facebook.com/.well-known/oauth/openid/jwks/"
	GraphBaseURL = "https://graph.facebook.com/"
)

const invalidUser = "Facebook auth is invalid for this user."

// LimitedLogin is the OIDC configuration of Facebook Limited Login.
var LimitedLogin = oidcgeneric.Provider{
	Name:    "Facebook",
	Issuers: []string{Issuer},
	JWKSURI: KeysURI,
	Keys:    jwks.Options{MaxEntries: 5, MaxAge: time.Hour},
}

// Adapter serves both login flavours.
type Adapter struct {
	Limited *oidcgeneric.Adapter
	HTTP    providers.HTTPDoer
	// GraphURL is the Graph API root, with trailing slash.
	GraphURL string
}

// New returns the Facebook adapter.
func New(cache *jwks.Cache, client providers.HTTPDoer) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Adapter{
		Limited:  oidcgeneric.New(LimitedLogin, cache),
		HTTP:     client,
		GraphURL: GraphBaseURL,
	}
}

// Factory adapts New to the loader.
func Factory(cache *jwks.Cache, client providers.HTTPDoer) providers.Factory {
	return func(providers.Options) (providers.Adapter, error) {
		return New(cache, client), nil
	}
}

func isLimited(authData providers.AuthData) bool {
	return authData.String("token") != ""
}

// ValidateAppID checks that the access token was issued to one of appIDs.
// Limited-login tokens carry their audience and skip this check.
func (a *Adapter) ValidateAppID(ctx context.Context, appIDs []string, authData providers.AuthData, opts providers.Options) error {
	if isLimited(authData) {
		return nil
	}
	if _, isList := opts.Strings("appIds"); opts["appIds"] != nil && !isList {
		return autherr.WithCode(autherr.KindMisconfigured, autherr.ObjectNotFound, "appIds must be an array.")
	}
	if len(appIDs) == 0 {
		return autherr.WithCode(autherr.KindMisconfigured, autherr.ObjectNotFound, "Facebook auth is not configured.")
	}

	var app struct {
		ID string `json:"id"`
	}
	if err := a.graph(ctx, "app", nil, authData.String("access_token"), opts, &app); err != nil {
		return autherr.Wrap(err, autherr.KindVerificationFailed, invalidUser)
	}
	for _, id := range appIDs {
		if id == app.ID {
			return nil
		}
	}
	return autherr.New(autherr.KindVerificationFailed, invalidUser)
}

func (a *Adapter) ValidateAuthData(ctx context.Context, authData providers.AuthData, opts providers.Options, existing providers.AuthData) (providers.Result, error) {
	if isLimited(authData) {
		return a.Limited.ValidateAuthData(ctx, authData, opts, existing)
	}

	var me struct {
		ID string `json:"id"`
	}
	err := a.graph(ctx, "me", url.Values{"fields": {"id"}}, authData.String("access_token"), opts, &me)
	if err != nil {
		logger.From(ctx).Info("graph api rejected access token",
			logger.Component("facebook"), logger.Err(err))
		return providers.Result{}, autherr.Wrap(err, autherr.KindVerificationFailed, invalidUser)
	}
	if me.ID == "" || me.ID != authData.String("id") {
		return providers.Result{}, autherr.New(autherr.KindVerificationFailed, invalidUser)
	}
	return providers.Result{Claims: map[string]any{"id": me.ID}}, nil
}

func (a *Adapter) graph(ctx context.Context, path string, q url.Values, token string, opts providers.Options, out any) error {
	if q == nil {
		q = url.Values{}
	}
	q.Set("access_token", token)
	if secret := opts.String("appSecret"); secret != "" {
		q.Set("appsecret_proof", AppSecretProof(secret, token))
	}
	base := a.GraphURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return providers.GetJSON(ctx, a.HTTP, base+path+"?"+q.Encode(), nil, out)
}

// AppSecretProof is HMAC-SHA256(appSecret, token), hex encoded.
func AppSecretProof(appSecret, token string) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}
