package jwks

import (
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// SigningKey is one public key of a provider's key set.
type SigningKey struct {
	KeyID string
	// Algorithm is the JWK "alg" member. Providers often omit it; the token
	// header decides the algorithm at verification time.
	Algorithm string
	PublicKey crypto.PublicKey
	FetchedAt time.Time
}

// PEM encodes the key as a PKIX "PUBLIC KEY" block.
func (k SigningKey) PEM() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(k.PublicKey)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	Crv string `json:"crv"`
	N   string `json:"n"`
	E   string `json:"e"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

type jwkSet struct {
	Keys []json.RawMessage `json:"keys"`
}

var errUnsupportedKey = errors.New("jwks: unsupported key type")

// ParseSet decodes a JWKS document into a kid-indexed map. Encryption keys and
// entries of unsupported types are skipped; a document with no usable key is
// an error.
func ParseSet(data []byte, fetchedAt time.Time) (map[string]SigningKey, error) {
	var set jwkSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("jwks: decode: %w", err)
	}
	out := make(map[string]SigningKey, len(set.Keys))
	var firstErr error
	for _, raw := range set.Keys {
		var k jwk
		if err := json.Unmarshal(raw, &k); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		pub, err := publicKey(k)
		if err != nil {
			if firstErr == nil && !errors.Is(err, errUnsupportedKey) {
				firstErr = fmt.Errorf("jwks: key %q: %w", k.Kid, err)
			}
			continue
		}
		out[k.Kid] = SigningKey{KeyID: k.Kid, Algorithm: k.Alg, PublicKey: pub, FetchedAt: fetchedAt}
	}
	if len(out) == 0 {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, errors.New("jwks: no usable signing keys")
	}
	return out, nil
}

func publicKey(k jwk) (crypto.PublicKey, error) {
	switch strings.ToUpper(k.Kty) {
	case "RSA":
		return rsaKey(k.N, k.E)
	case "EC":
		return ecKey(k.Crv, k.X, k.Y)
	case "OKP":
		if k.Crv != "Ed25519" {
			return nil, errUnsupportedKey
		}
		x, err := b64(k.X)
		if err != nil {
			return nil, err
		}
		if len(x) != ed25519.PublicKeySize {
			return nil, errors.New("bad Ed25519 key length")
		}
		return ed25519.PublicKey(x), nil
	default:
		return nil, errUnsupportedKey
	}
}

func rsaKey(n64, e64 string) (*rsa.PublicKey, error) {
	nb, err := b64(n64)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	if len(nb) == 0 {
		return nil, errors.New("empty modulus")
	}
	eb, err := b64(e64)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	e := 65537
	if len(eb) > 0 {
		if len(eb) > 4 {
			return nil, errors.New("exponent too large")
		}
		e = 0
		for _, b := range eb {
			e = e<<8 | int(b)
		}
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}

func ecKey(crv, x64, y64 string) (*ecdsa.PublicKey, error) {
	var (
		curve elliptic.Curve
		ec    ecdh.Curve
	)
	switch crv {
	case "P-256":
		curve, ec = elliptic.P256(), ecdh.P256()
	case "P-384":
		curve, ec = elliptic.P384(), ecdh.P384()
	case "P-521":
		curve, ec = elliptic.P521(), ecdh.P521()
	default:
		return nil, errUnsupportedKey
	}
	x, err := b64(x64)
	if err != nil {
		return nil, err
	}
	y, err := b64(y64)
	if err != nil {
		return nil, err
	}
	size := (curve.Params().BitSize + 7) / 8
	if len(x) > size || len(y) > size {
		return nil, errors.New("bad EC coordinate length")
	}
	// uncompressed point: 0x04 || X || Y, each left-padded to the field size
	point := make([]byte, 1+2*size)
	point[0] = 4
	copy(point[1+size-len(x):1+size], x)
	copy(point[1+2*size-len(y):], y)
	if _, err := ec.NewPublicKey(point); err != nil {
		return nil, fmt.Errorf("point not on curve: %w", err)
	}
	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(x),
		Y:     new(big.Int).SetBytes(y),
	}, nil
}

// b64 decodes base64url with or without padding.
func b64(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
