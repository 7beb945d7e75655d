package google

import (
	"context"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authdata/internal/jwks"
	"github.com/dropDatabas3/authdata/internal/jwks/jwkstest"
	"github.com/dropDatabas3/authdata/internal/providers"
)

func signed(t *testing.T, k jwkstest.Key, iss string) string {
	return k.Sign(t, jwtv5.MapClaims{
		"iss": iss, "sub": "123", "aud": "client",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
}

func TestGoogleAcceptsBothIssuerForms(t *testing.T) {
	key := jwkstest.NewRSAKey(t, "g1")
	srv := jwkstest.NewServer(t, key)
	a := New(jwks.New(jwks.Config{HTTPClient: srv.Client()}))
	opts := providers.Options{"clientId": "client", "jwksUri": srv.URL}

	for _, iss := range Issuers {
		_, err := a.ValidateAuthData(context.Background(),
			providers.AuthData{"id": "123", "id_token": signed(t, key, iss)}, opts, nil)
		assert.NoError(t, err, iss)
	}

	_, err := a.ValidateAuthData(context.Background(),
		providers.AuthData{"id": "123", "id_token": signed(t, key, "https://accounts.example.com")}, opts, nil)
	require.Error(t, err)
	assert.Equal(t,
		"id token not issued by correct provider - expected: accounts.google.com or https://accounts.google.com | from: https://accounts.example.com",
		err.Error())
}

func TestGoogleHonorsCacheControl(t *testing.T) {
	key := jwkstest.NewRSAKey(t, "g1")
	srv := jwkstest.NewServer(t, key)
	a := New(jwks.New(jwks.Config{HTTPClient: srv.Client()}))
	opts := providers.Options{"clientId": "client", "jwksUri": srv.URL}
	authData := providers.AuthData{"id": "123", "id_token": signed(t, key, Issuers[1])}

	// no Cache-Control: nothing is retained
	for i := 0; i < 2; i++ {
		_, err := a.ValidateAuthData(context.Background(), authData, opts, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, srv.Fetches())

	srv.SetCacheControl("public, max-age=600")
	for i := 0; i < 2; i++ {
		_, err := a.ValidateAuthData(context.Background(), authData, opts, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, srv.Fetches())
}

func TestGoogleIgnoresTokenField(t *testing.T) {
	key := jwkstest.NewRSAKey(t, "g1")
	srv := jwkstest.NewServer(t, key)
	a := New(jwks.New(jwks.Config{HTTPClient: srv.Client()}))

	_, err := a.ValidateAuthData(context.Background(),
		providers.AuthData{"id": "123", "token": signed(t, key, Issuers[0])},
		providers.Options{"clientId": "client", "jwksUri": srv.URL}, nil)
	require.Error(t, err)
	assert.Equal(t, "id token is invalid for this user.", err.Error())
}
