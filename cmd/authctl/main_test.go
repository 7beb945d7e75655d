package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authdata/internal/jwks/jwkstest"
	"github.com/dropDatabas3/authdata/internal/security/totp"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSealOpen(t *testing.T) {
	key := strings.Repeat("k", 32)
	sealed, err := run(t, "seal", "--key", key, "hunter2")
	require.NoError(t, err)
	sealed = strings.TrimSpace(sealed)
	assert.NotContains(t, sealed, "hunter2")

	plain, err := run(t, "seal", "--key", key, "--open", sealed)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", strings.TrimSpace(plain))
}

func TestSeal_RequiresKey(t *testing.T) {
	t.Setenv("AUTHDATA_SECRETBOX_KEY", "")
	_, err := run(t, "seal", "--key", "", "x")
	require.Error(t, err)
}

func TestMFASecretThenCode(t *testing.T) {
	out, err := run(t, "mfa", "secret", "--issuer", "Acme", "--account", "ana")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "otpauth://totp/"))
	assert.Contains(t, lines[1], "issuer=Acme")

	code, err := run(t, "mfa", "code", "--secret", lines[0])
	require.NoError(t, err)

	raw, err := totp.DecodeSecret(lines[0])
	require.NoError(t, err)
	ok, _ := totp.Default.Verify(raw, strings.TrimSpace(code), time.Now(), 1, nil)
	assert.True(t, ok)
}

func TestMFACode_RejectsBadAlgorithm(t *testing.T) {
	_, err := run(t, "mfa", "code", "--secret", "JBSWY3DPEHPK3PXP", "--algorithm", "MD5")
	require.ErrorIs(t, err, totp.ErrAlgorithm)
}

func TestJWKS_PrintsSortedPEM(t *testing.T) {
	srv := jwkstest.NewServer(t, jwkstest.NewRSAKey(t, "b"), jwkstest.NewECKey(t, "a"))

	out, err := run(t, "jwks", srv.URL)
	require.NoError(t, err)
	assert.Less(t, strings.Index(out, "a "), strings.Index(out, "b "))
	assert.Equal(t, 2, strings.Count(out, "-----BEGIN PUBLIC KEY-----"))
}
