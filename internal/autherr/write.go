package autherr

import (
	"encoding/json"
	"net/http"
)

// errorResponse is the wire body for failures.
type errorResponse struct {
	Code  Code   `json:"code"`
	Error string `json:"error"`
}

// WriteError writes err as {"code": <int>, "error": <message>} with the status
// of its kind. Untyped errors are reported as KindAuthenticationFailed.
func WriteError(w http.ResponseWriter, err error) {
	e := FromError(err)
	if e == nil {
		e = New(KindAuthenticationFailed, "Authentication failed.")
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(e.HTTPStatus())
	_ = json.NewEncoder(w).Encode(errorResponse{Code: e.Code, Error: e.Message})
}
