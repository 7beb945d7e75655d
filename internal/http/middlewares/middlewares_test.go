package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDPropagates(t *testing.T) {
	var seen string
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}), WithRequestID())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 36)
}

func TestRecoverWritesError(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }), WithRecover(), WithLogging())
	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() { h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil)) })
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":1`)
}

func TestMasterKeyMarksContext(t *testing.T) {
	var master bool
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		master = IsMaster(r.Context())
	}), WithMasterKey("k"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Master-Key", "k")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, master)

	master = false
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, master)

	disabled := Chain(http.NotFoundHandler(), WithMasterKey(""))
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Master-Key", "anything")
	rec := httptest.NewRecorder()
	disabled.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
