package autherr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeFor(t *testing.T) {
	cases := []struct {
		kind Kind
		want Code
	}{
		{KindIssuerMismatch, ObjectNotFound},
		{KindSubjectMismatch, ObjectNotFound},
		{KindUnsupportedService, UnsupportedService},
		{KindMisconfigured, InternalServerError},
		{KindMfaInvalidToken, OtherCause},
		{KindMfaMissingToken, OtherCause},
		{KindAuthenticationFailed, ScriptFailed},
		{Kind("nope"), ScriptFailed},
	}
	for _, tc := range cases {
		if got := CodeFor(tc.kind); got != tc.want {
			t.Fatalf("CodeFor(%s) = %d, want %d", tc.kind, got, tc.want)
		}
	}
}

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("adapter: %w", Newf(KindIssuerMismatch, "expected %s | from: %s", "a", "b"))
	assert.True(t, errors.Is(err, ErrIssuerMismatch))
	assert.False(t, errors.Is(err, ErrSubjectMismatch))

	// fixed-message values only match the same message
	other := New(KindMfaInvalidToken, "Invalid MFA token 2")
	assert.False(t, errors.Is(other, ErrMfaInvalidToken))
	assert.True(t, errors.Is(New(KindMfaInvalidToken, "Invalid MFA token"), ErrMfaInvalidToken))
}

func TestFromErrorWrapsUntyped(t *testing.T) {
	raw := errors.New("boom")
	e := FromError(raw)
	require.NotNil(t, e)
	assert.Equal(t, KindAuthenticationFailed, e.Kind)
	assert.Equal(t, ScriptFailed, e.Code)
	assert.Equal(t, "boom", e.Message)
	assert.ErrorIs(t, e, raw)

	typed := New(KindKeyNotFound, "x")
	assert.Same(t, typed, FromError(fmt.Errorf("wrapped: %w", typed)))
	assert.Nil(t, FromError(nil))
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, ErrUnsupportedService)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(252), body["code"])
	assert.Equal(t, "This authentication method is unsupported.", body["error"])

	rec = httptest.NewRecorder()
	WriteError(rec, New(KindMisconfigured, "missing clientId"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMissingAdditional(t *testing.T) {
	e := MissingAdditional("mfa")
	assert.Equal(t, "Missing additional authData mfa", e.Error())
	assert.Equal(t, OtherCause, e.Code)
}
