// Package router mounts the HTTP surface on a chi router.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/authdata/internal/authdata"
	authdatactl "github.com/dropDatabas3/authdata/internal/http/controllers/authdata"
	"github.com/dropDatabas3/authdata/internal/http/controllers/health"
	mw "github.com/dropDatabas3/authdata/internal/http/middlewares"
)

type Deps struct {
	Service   authdata.Service
	Store     health.Pinger
	MasterKey string
	Version   string
	// Gatherer serves /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(mw.WithRecover(), mw.WithRequestID(), mw.WithLogging(), mw.WithMetrics())

	hc := health.NewHealthController(d.Store, d.Version)
	r.Get("/healthz", hc.Healthz)

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	ac := authdatactl.NewController(d.Service)
	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.WithNoStore(), mw.WithMasterKey(d.MasterKey))
		r.Post("/providers/{provider}/validate", ac.Validate)
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Post("/login", ac.Login)
			r.Get("/authdata", ac.Get)
			r.Put("/authdata", ac.Save)
			r.Delete("/authdata/{provider}", ac.Unlink)
		})
	})
	return r
}
