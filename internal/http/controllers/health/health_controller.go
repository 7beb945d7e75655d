// Package health contiene el controller para health checks.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/authdata/internal/http/helpers"
	"github.com/dropDatabas3/authdata/internal/observability/logger"
)

// Pinger is a dependency the service cannot work without.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthController struct {
	store   Pinger
	version string
}

func NewHealthController(store Pinger, version string) *HealthController {
	return &HealthController{store: store, version: version}
}

type response struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Store   string `json:"store"`
}

// Healthz maneja GET /healthz
func (c *HealthController) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	res := response{Status: "ok", Version: c.version, Store: "ok"}
	status := http.StatusOK
	if err := c.store.Ping(ctx); err != nil {
		logger.From(ctx).Warn("store ping failed", logger.Layer("controller"), logger.Err(err))
		res.Status, res.Store = "unavailable", "unreachable"
		status = http.StatusServiceUnavailable
	}
	helpers.WriteJSON(w, status, res)
}
