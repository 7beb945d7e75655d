// Package authdata exposes provider validation and user authData over HTTP.
package authdata

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/authdata/internal/authdata"
	"github.com/dropDatabas3/authdata/internal/autherr"
	"github.com/dropDatabas3/authdata/internal/http/helpers"
	"github.com/dropDatabas3/authdata/internal/http/middlewares"
	"github.com/dropDatabas3/authdata/internal/observability/logger"
	"github.com/dropDatabas3/authdata/internal/providers"
)

type Controller struct {
	service authdata.Service
}

func NewController(s authdata.Service) *Controller {
	return &Controller{service: s}
}

type validateRequest struct {
	AuthData providers.AuthData `json:"authData"`
}

type validateResponse struct {
	Claims map[string]any `json:"claims,omitempty"`
}

type userRequest struct {
	AuthData map[string]providers.AuthData `json:"authData"`
}

// Validate maneja POST /v1/providers/{provider}/validate
func (c *Controller) Validate(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("authdata.Validate"), logger.Provider(provider))

	var in validateRequest
	if !helpers.ReadJSON(w, r, &in) {
		return
	}
	if in.AuthData == nil {
		autherr.WriteError(w, autherr.New(autherr.KindInvalidRequest, "authData is required."))
		return
	}
	res, err := c.service.Validate(r.Context(), provider, in.AuthData, request(r, ""))
	if err != nil {
		log.Debug("validation failed", logger.Err(err))
		autherr.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, validateResponse{Claims: res.Claims})
}

// Get maneja GET /v1/users/{userID}/authdata
func (c *Controller) Get(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	out, err := c.service.Get(r.Context(), userID, request(r, userID))
	if err != nil {
		autherr.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"authData": out})
}

// Login maneja POST /v1/users/{userID}/login
func (c *Controller) Login(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var in userRequest
	if !helpers.ReadJSON(w, r, &in) {
		return
	}
	if len(in.AuthData) == 0 {
		autherr.WriteError(w, autherr.New(autherr.KindInvalidRequest, "authData is required."))
		return
	}
	out, err := c.service.Login(r.Context(), userID, in.AuthData)
	if err != nil {
		autherr.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, out)
}

// Save maneja PUT /v1/users/{userID}/authdata
func (c *Controller) Save(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var in userRequest
	if !helpers.ReadJSON(w, r, &in) {
		return
	}
	if len(in.AuthData) == 0 {
		autherr.WriteError(w, autherr.New(autherr.KindInvalidRequest, "authData is required."))
		return
	}
	out, err := c.service.Save(r.Context(), userID, in.AuthData, request(r, userID))
	if err != nil {
		autherr.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, out)
}

// Unlink maneja DELETE /v1/users/{userID}/authdata/{provider}
func (c *Controller) Unlink(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	provider := chi.URLParam(r, "provider")
	var in validateRequest
	if !helpers.ReadJSON(w, r, &in) {
		return
	}
	if err := c.service.Unlink(r.Context(), userID, provider, in.AuthData, request(r, userID)); err != nil {
		autherr.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func request(r *http.Request, userID string) providers.Request {
	return providers.Request{UserID: userID, Master: middlewares.IsMaster(r.Context())}
}
