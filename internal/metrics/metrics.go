// Package metrics exposes the server's runtime counters via
// prometheus/client_golang, the way caddyserver-caddy's admin metrics
// (metrics.go, internal/metrics) wire request counters through
// promauto rather than hand-rolled counters.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "webserv"

// Recorder holds every metric the reactor loop and its handlers touch.
// It is built against a private registry (not the global default) so
// multiple Servers in the same process, as in tests, don't collide on
// registration.
type Recorder struct {
	registry *prometheus.Registry

	connectionsAccepted prometheus.Counter
	connectionsClosed   prometheus.Counter
	connectionsActive   prometheus.Gauge

	requestsTotal  *prometheus.CounterVec
	cgiSpawned     prometheus.Counter
	cgiTimedOut    prometheus.Counter
	cgiSpawnErrors prometheus.Counter

	pollDuration prometheus.Histogram
}

// NewRecorder registers every metric against a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	r := &Recorder{
		registry: reg,
		connectionsAccepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "conn", Name: "accepted_total",
			Help: "Connections accepted since startup.",
		}),
		connectionsClosed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "conn", Name: "closed_total",
			Help: "Connections closed since startup.",
		}),
		connectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "conn", Name: "active",
			Help: "Connections currently open.",
		}),
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "Requests completed, labeled by status class.",
		}, []string{"status_class"}),
		cgiSpawned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cgi", Name: "spawned_total",
			Help: "CGI child processes spawned.",
		}),
		cgiTimedOut: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cgi", Name: "timed_out_total",
			Help: "CGI child processes killed for exceeding their deadline.",
		}),
		cgiSpawnErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cgi", Name: "spawn_errors_total",
			Help: "CGI spawn attempts that failed before a child existed.",
		}),
		pollDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "reactor", Name: "poll_duration_seconds",
			Help:    "Time spent blocked in a single epoll_wait call.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return r
}

// Registry exposes the underlying registry for wiring into promhttp.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) ConnectionAccepted() {
	r.connectionsAccepted.Inc()
	r.connectionsActive.Inc()
}

func (r *Recorder) ConnectionClosed() {
	r.connectionsClosed.Inc()
	r.connectionsActive.Dec()
}

// RequestCompleted labels a finished response by its status class
// ("2xx", "4xx", ...), matching caddy's SanitizeCode approach of
// collapsing raw values into low-cardinality labels.
func (r *Recorder) RequestCompleted(status int) {
	class := "other"
	switch {
	case status >= 200 && status < 300:
		class = "2xx"
	case status >= 300 && status < 400:
		class = "3xx"
	case status >= 400 && status < 500:
		class = "4xx"
	case status >= 500:
		class = "5xx"
	}
	r.requestsTotal.WithLabelValues(class).Inc()
}

func (r *Recorder) CGISpawned()    { r.cgiSpawned.Inc() }
func (r *Recorder) CGISpawnError() { r.cgiSpawnErrors.Inc() }
func (r *Recorder) CGITimedOut()   { r.cgiTimedOut.Inc() }

// ObservePoll records how long a single reactor.Poll call blocked.
func (r *Recorder) ObservePoll(d time.Duration) {
	r.pollDuration.Observe(d.Seconds())
}
