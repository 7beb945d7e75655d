// Package metrics holds the Prometheus collectors of the auth subsystem. They
// live in a leaf package so jwks, auth and mfa can record without importing
// the HTTP layer.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	Validations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authdata",
		Name:      "validations_total",
		Help:      "authData validations by provider, mode and result",
	}, []string{"provider", "mode", "result"})

	JWKSFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authdata",
		Name:      "jwks_fetch_total",
		Help:      "Key set fetches by result (ok|error)",
	}, []string{"result"})

	JWKSFetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "authdata",
		Name:      "jwks_fetch_duration_seconds",
		Help:      "Latency of key set fetches",
		Buckets:   []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	JWKSEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "authdata",
		Name:      "jwks_evictions_total",
		Help:      "Provider key sets discarded to honor the entry bound",
	})

	MFAEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authdata",
		Name:      "mfa_events_total",
		Help:      "MFA state machine events (enrolled, pending, challenge_ok, challenge_failed, ...)",
	}, []string{"event"})

	StoreConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "authdata",
		Name:      "store_cas_conflicts_total",
		Help:      "authData writes rejected because the record changed since it was read",
	})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Número total de requests procesadas",
	}, []string{"method", "route", "status"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Latencia de los requests HTTP",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

func all() []prometheus.Collector {
	return []prometheus.Collector{
		Validations, JWKSFetches, JWKSFetchDuration, JWKSEvictions,
		MFAEvents, StoreConflicts, HTTPRequests, HTTPDuration,
	}
}

// Register registers every collector on reg (default registerer if nil).
// Already-registered collectors are not an error.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range all() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

// ObserveValidation records one validator call.
func ObserveValidation(provider, mode string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	Validations.WithLabelValues(provider, mode, result).Inc()
}

// ObserveJWKSFetch records one key set fetch.
func ObserveJWKSFetch(start time.Time, err error) {
	JWKSFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		JWKSFetches.WithLabelValues("error").Inc()
		return
	}
	JWKSFetches.WithLabelValues("ok").Inc()
}

// MFAEvent records one MFA state machine event.
func MFAEvent(event string) {
	MFAEvents.WithLabelValues(event).Inc()
}
