// Package metrics defines the client-side Prometheus metrics. They are
// registered with the default registry; the binary does not expose them over
// HTTP, but embedding programs and tests can gather them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "famigo_client"

// RequestsTotal counts gateway requests.
// Labels:
//   - method: HTTP method
//   - outcome: "ok" or the classified error kind (e.g. "auth_required", "transport")
var RequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Total number of API requests, by method and outcome.",
	},
	[]string{"method", "outcome"},
)

// ShortCircuitsTotal counts auth-required requests refused locally because no
// credential was stored.
var ShortCircuitsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_short_circuits_total",
		Help:      "Requests that required a credential and were refused without network I/O.",
	},
)

// RequestDuration measures round-trip time of requests that reached the network.
var RequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      "Duration of API requests from send to decoded response.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method"},
)

// MutationsTotal counts settled optimistic mutations.
// Label:
//   - result: "committed" or "rolled_back"
var MutationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mutations_total",
		Help:      "Total number of optimistic mutations, by settlement result.",
	},
	[]string{"result"},
)
