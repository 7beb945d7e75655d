// Package oidc verifies provider-signed ID tokens against keys resolved through
// the jwks cache.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/authdata/internal/autherr"
	"github.com/dropDatabas3/authdata/internal/jwks"
	"github.com/dropDatabas3/authdata/internal/observability/logger"
)

// KeyResolver returns the signing key for a kid. *jwks.Source implements it.
type KeyResolver interface {
	Key(ctx context.Context, kid string) (jwks.SigningKey, error)
}

// Claims is a verified claim set.
type Claims map[string]any

// String returns claim k when it is a string.
func (c Claims) String(k string) string {
	s, _ := c[k].(string)
	return s
}

// Expectation is what a token must prove.
type Expectation struct {
	// Issuers is the provider's known issuer set; iss must be one of them.
	Issuers []string
	// Subject is the external user id claimed by the client.
	Subject string
	// Audience lists acceptable client ids. Empty skips the audience check.
	Audience []string
}

// Verifier checks signature, audience, issuer and subject, in that order.
type Verifier struct {
	Keys KeyResolver
	// Leeway tolerates clock skew on exp/nbf/iat.
	Leeway time.Duration
	// IssuerMessage formats the issuer mismatch message. Nil uses the
	// OpenID provider wording.
	IssuerMessage func(expected []string, got string) string
	Now           func() time.Time
}

// New returns a Verifier resolving keys through keys.
func New(keys KeyResolver) *Verifier {
	return &Verifier{Keys: keys}
}

// Verify validates token against exp and returns its claims.
func (v *Verifier) Verify(ctx context.Context, token string, exp Expectation) (Claims, error) {
	log := logger.From(ctx).With(logger.Component("oidc"), logger.Op("oidc.verify"))

	if strings.TrimSpace(token) == "" {
		return nil, autherr.New(autherr.KindInvalidToken, "id token is invalid for this user.")
	}

	kid, alg, err := header(token)
	if err != nil {
		return nil, autherr.Wrap(err, autherr.KindMalformedToken, "provided token does not decode as JWT")
	}

	key, err := v.Keys.Key(ctx, kid)
	if err != nil {
		log.Debug("signing key lookup failed", logger.KeyID(kid), logger.Err(err))
		if errors.Is(err, jwks.ErrKeyNotFound) {
			return nil, autherr.Wrap(err, autherr.KindKeyNotFound,
				fmt.Sprintf("Unable to find matching key for Key ID: %s", kid))
		}
		return nil, autherr.Wrap(err, autherr.KindVerificationFailed,
			fmt.Sprintf("Unable to fetch signing keys for Key ID: %s", kid))
	}
	if key.Algorithm != "" && key.Algorithm != alg {
		return nil, autherr.New(autherr.KindVerificationFailed, "invalid algorithm")
	}

	opts := []jwtv5.ParserOption{
		// the header's own algorithm, pinned so the key type decides the verifier
		jwtv5.WithValidMethods([]string{alg}),
		jwtv5.WithLeeway(v.Leeway),
	}
	if v.Now != nil {
		opts = append(opts, jwtv5.WithTimeFunc(v.Now))
	}
	mc := jwtv5.MapClaims{}
	_, err = jwtv5.NewParser(opts...).ParseWithClaims(token, mc, func(*jwtv5.Token) (any, error) {
		return key.PublicKey, nil
	})
	if err != nil {
		return nil, autherr.Wrap(err, autherr.KindVerificationFailed, verificationMessage(err))
	}

	if len(exp.Audience) > 0 && !audienceMatches(mc, exp.Audience) {
		return nil, autherr.New(autherr.KindVerificationFailed,
			"jwt audience invalid. expected: "+strings.Join(exp.Audience, " or "))
	}

	iss, _ := mc["iss"].(string)
	if len(exp.Issuers) > 0 && !contains(exp.Issuers, iss) {
		msg := v.issuerMessage(exp.Issuers, iss)
		log.Info("issuer mismatch", logger.Issuer(iss))
		return nil, autherr.New(autherr.KindIssuerMismatch, msg)
	}

	if sub, _ := mc["sub"].(string); sub != exp.Subject {
		return nil, autherr.New(autherr.KindSubjectMismatch, "auth data is invalid for this user.")
	}

	return Claims(mc), nil
}

func (v *Verifier) issuerMessage(expected []string, got string) string {
	if v.IssuerMessage != nil {
		return v.IssuerMessage(expected, got)
	}
	return fmt.Sprintf("id token not issued by correct OpenID provider - expected: %s | from: %s",
		strings.Join(expected, " or "), got)
}

// header decodes the JOSE header without verifying the signature.
func header(token string) (kid, alg string, err error) {
	tok, _, err := jwtv5.NewParser().ParseUnverified(token, jwtv5.MapClaims{})
	if err != nil {
		return "", "", err
	}
	alg, _ = tok.Header["alg"].(string)
	if alg == "" {
		return "", "", errors.New("missing alg header")
	}
	kid, _ = tok.Header["kid"].(string)
	return kid, alg, nil
}

func audienceMatches(mc jwtv5.MapClaims, want []string) bool {
	aud, err := mc.GetAudience()
	if err != nil {
		return false
	}
	for _, a := range aud {
		if contains(want, a) {
			return true
		}
	}
	return false
}

func verificationMessage(err error) string {
	switch {
	case errors.Is(err, jwtv5.ErrTokenExpired):
		return "jwt expired"
	case errors.Is(err, jwtv5.ErrTokenNotValidYet):
		return "jwt not active"
	case errors.Is(err, jwtv5.ErrTokenUsedBeforeIssued):
		return "jwt issued in the future"
	case errors.Is(err, jwtv5.ErrTokenSignatureInvalid), errors.Is(err, jwtv5.ErrTokenUnverifiable):
		return "invalid signature"
	case errors.Is(err, jwtv5.ErrTokenMalformed):
		return "jwt malformed"
	default:
		return err.Error()
	}
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
