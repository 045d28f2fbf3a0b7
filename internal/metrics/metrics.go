// Package metrics holds the Prometheus collectors for the auth service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected"
)

// AuthEvents counts credential operations by event and outcome.
var AuthEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authcore_auth_events_total",
		Help: "Total number of authentication operations by event and outcome",
	},
	[]string{"event", "outcome"},
)

// RateLimited counts requests refused by the per-IP limiter.
var RateLimited = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authcore_rate_limited_total",
		Help: "Total number of requests rejected by the rate limiter",
	},
	[]string{"class"},
)

// EmailDispatch counts outbound emails by provider and outcome.
var EmailDispatch = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authcore_email_dispatch_total",
		Help: "Total number of email dispatch attempts by provider and outcome",
	},
	[]string{"provider", "outcome"},
)

// EmailDuration observes provider latency.
var EmailDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "authcore_email_dispatch_duration_seconds",
		Help:    "Email dispatch duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"provider"},
)

// HTTPRequests counts handled requests by route pattern and status code.
var HTTPRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authcore_http_requests_total",
		Help: "Total number of HTTP requests by route and status",
	},
	[]string{"method", "route", "status"},
)

// RegisterMetrics registers the collectors plus the Go and process collectors
// with reg. Panics if registration fails.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AuthEvents)
	reg.MustRegister(RateLimited)
	reg.MustRegister(EmailDispatch)
	reg.MustRegister(EmailDuration)
	reg.MustRegister(HTTPRequests)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

func RecordAuthEvent(event, outcome string) {
	AuthEvents.WithLabelValues(event, outcome).Inc()
}

func RecordRateLimited(class string) {
	RateLimited.WithLabelValues(class).Inc()
}

func RecordEmailDispatch(provider string, err error, duration time.Duration) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	EmailDispatch.WithLabelValues(provider, outcome).Inc()
	EmailDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordHTTPRequest(method, route string, status int) {
	HTTPRequests.WithLabelValues(method, route, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
