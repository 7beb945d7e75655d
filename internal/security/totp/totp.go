// Package totp implements RFC 6238 codes with configurable algorithm, digit
// count and period.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base32"
	"errors"
	"fmt"
	"hash"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Params are the code parameters shared by server and authenticator app.
type Params struct {
	Algorithm string // SHA1, SHA256, SHA512
	Digits    int
	Period    int // seconds
}

// Default is what authenticator apps assume when the otpauth URL omits them.
var Default = Params{Algorithm: "SHA1", Digits: 6, Period: 30}

var ErrAlgorithm = errors.New("totp: unsupported algorithm")

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateSecret retorna 20 bytes base32 sin padding (RFC 3548).
func GenerateSecret() (raw []byte, b32s string, err error) {
	raw = make([]byte, 20)
	if _, err = rand.Read(raw); err != nil {
		return nil, "", err
	}
	return raw, b32.EncodeToString(raw), nil
}

// DecodeSecret accepts base32 with or without padding, any case, spaces ignored.
func DecodeSecret(secretB32 string) ([]byte, error) {
	s := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secretB32), " ", ""))
	s = strings.TrimRight(s, "=")
	raw, err := b32.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("totp: secret is not base32: %w", err)
	}
	return raw, nil
}

// OTPAuthURL construye otpauth:// para QR.
func OTPAuthURL(p Params, issuer, accountName, secretB32 string) string {
	p = p.normalized()
	label := url.PathEscape(fmt.Sprintf("%s:%s", issuer, accountName))
	q := url.Values{}
	q.Set("secret", secretB32)
	q.Set("issuer", issuer)
	q.Set("algorithm", p.Algorithm)
	q.Set("digits", strconv.Itoa(p.Digits))
	q.Set("period", strconv.Itoa(p.Period))
	return fmt.Sprintf("otpauth://totp/%s?%s", label, q.Encode())
}

// Counter is the time step containing t.
func (p Params) Counter(t time.Time) int64 {
	return t.Unix() / int64(p.normalized().Period)
}

// Generate returns the code for the step containing t.
func (p Params) Generate(secretRaw []byte, t time.Time) (string, error) {
	return p.generate(secretRaw, p.Counter(t))
}

// Verify TOTP en ventana +/- windowSteps. Con lastCounterUsed evita replay:
// steps at or before it are skipped. Returns the matched step.
func (p Params) Verify(secretRaw []byte, code string, t time.Time, windowSteps int, lastCounterUsed *int64) (ok bool, counter int64) {
	p = p.normalized()
	code = strings.TrimSpace(code)
	if len(code) != p.Digits {
		return false, 0
	}
	now := p.Counter(t)
	for c := now - int64(windowSteps); c <= now+int64(windowSteps); c++ {
		if lastCounterUsed != nil && c <= *lastCounterUsed {
			continue // anti-replay
		}
		want, err := p.generate(secretRaw, c)
		if err != nil {
			return false, 0
		}
		if hmac.Equal([]byte(want), []byte(code)) {
			return true, c
		}
	}
	return false, 0
}

func (p Params) normalized() Params {
	if p.Algorithm == "" {
		p.Algorithm = Default.Algorithm
	}
	p.Algorithm = strings.ToUpper(p.Algorithm)
	if p.Digits <= 0 {
		p.Digits = Default.Digits
	}
	if p.Period <= 0 {
		p.Period = Default.Period
	}
	return p
}

func hasher(alg string) (func() hash.Hash, error) {
	switch alg {
	case "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	}
	return nil, ErrAlgorithm
}

// ValidAlgorithm reports whether alg is supported.
func ValidAlgorithm(alg string) bool {
	_, err := hasher(strings.ToUpper(alg))
	return err == nil
}

func (p Params) generate(secretRaw []byte, counter int64) (string, error) {
	p = p.normalized()
	h, err := hasher(p.Algorithm)
	if err != nil {
		return "", err
	}
	// HOTP(K, C) (RFC 4226 / 6238)
	var msg [8]byte
	for i := 7; i >= 0; i-- {
		msg[i] = byte(counter & 0xff)
		counter >>= 8
	}
	m := hmac.New(h, secretRaw)
	_, _ = m.Write(msg[:])
	sum := m.Sum(nil)
	offset := int(sum[len(sum)-1] & 0x0f)
	bin := (int64(sum[offset])&0x7f)<<24 | int64(sum[offset+1])<<16 | int64(sum[offset+2])<<8 | int64(sum[offset+3])
	otp := bin % int64(math.Pow10(p.Digits))
	return fmt.Sprintf("%0*d", p.Digits, otp), nil
}
