package middlewares

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/dropDatabas3/authdata/internal/autherr"
)

// WithMasterKey marks requests carrying X-Master-Key equal to key as master.
// A wrong key is rejected; an absent header is a normal request. An empty
// key disables master requests.
func WithMasterKey(key string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Master-Key")
			if got == "" {
				next.ServeHTTP(w, r)
				return
			}
			if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				autherr.WriteError(w, autherr.New(autherr.KindInvalidRequest, "Invalid master key."))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxMasterKey, true)))
		})
	}
}
