// Package jwkstest serves in-memory key sets over httptest and signs tokens
// with them.
package jwkstest

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Key is a private signing key with its published kid.
type Key struct {
	Kid    string
	Alg    string
	Signer crypto.Signer
}

// NewRSAKey generates a 2048-bit RS256 key.
func NewRSAKey(t testing.TB, kid string) Key {
	t.Helper()
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa key: %v", err)
	}
	return Key{Kid: kid, Alg: "RS256", Signer: pk}
}

// NewECKey generates a P-256 ES256 key.
func NewECKey(t testing.TB, kid string) Key {
	t.Helper()
	pk, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("ec key: %v", err)
	}
	return Key{Kid: kid, Alg: "ES256", Signer: pk}
}

// JWK is the public JWK form of k.
func (k Key) JWK() map[string]any {
	enc := base64.RawURLEncoding.EncodeToString
	switch pub := k.Signer.Public().(type) {
	case *rsa.PublicKey:
		return map[string]any{
			"kty": "RSA", "kid": k.Kid, "alg": k.Alg, "use": "sig",
			"n": enc(pub.N.Bytes()),
			"e": enc(big.NewInt(int64(pub.E)).Bytes()),
		}
	case *ecdsa.PublicKey:
		size := (pub.Curve.Params().BitSize + 7) / 8
		return map[string]any{
			"kty": "EC", "kid": k.Kid, "alg": k.Alg, "use": "sig",
			"crv": pub.Curve.Params().Name,
			"x":   enc(pub.X.FillBytes(make([]byte, size))),
			"y":   enc(pub.Y.FillBytes(make([]byte, size))),
		}
	}
	return nil
}

// Sign returns a compact JWS over claims with k's kid and algorithm.
func (k Key) Sign(t testing.TB, claims jwtv5.MapClaims) string {
	t.Helper()
	tok := jwtv5.NewWithClaims(jwtv5.GetSigningMethod(k.Alg), claims)
	tok.Header["kid"] = k.Kid
	s, err := tok.SignedString(k.Signer)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

// Server publishes a key set and counts fetches.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	keys         []Key
	cacheControl string
	etag         string
	status       int
	fetches      atomic.Int64
}

// NewServer starts a server publishing keys. It is closed with t.Cleanup.
func NewServer(t testing.TB, keys ...Key) *Server {
	s := &Server{keys: keys, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.fetches.Add(1)
	s.mu.Lock()
	keys := append([]Key(nil), s.keys...)
	cc, etag, status := s.cacheControl, s.etag, s.status
	s.mu.Unlock()

	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	if etag != "" {
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	if cc != "" {
		w.Header().Set("Cache-Control", cc)
	}
	set := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		set = append(set, k.JWK())
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"keys": set})
}

// SetKeys replaces the published set.
func (s *Server) SetKeys(keys ...Key) {
	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()
}

// SetCacheControl sets the Cache-Control response header.
func (s *Server) SetCacheControl(v string) {
	s.mu.Lock()
	s.cacheControl = v
	s.mu.Unlock()
}

// SetETag enables conditional responses with the given tag.
func (s *Server) SetETag(v string) {
	s.mu.Lock()
	s.etag = v
	s.mu.Unlock()
}

// SetStatus makes the server answer with status and no body.
func (s *Server) SetStatus(code int) {
	s.mu.Lock()
	s.status = code
	s.mu.Unlock()
}

// Fetches is the number of requests served.
func (s *Server) Fetches() int {
	return int(s.fetches.Load())
}
