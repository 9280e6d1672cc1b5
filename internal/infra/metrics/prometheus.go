package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

const namespace = "reality_firewall"

// Recorder owns a private registry so several instances can coexist in tests.
type Recorder struct {
	registry    *prometheus.Registry
	providers   *prometheus.CounterVec
	evaluations *prometheus.CounterVec
	scores      *prometheus.HistogramVec
	anchors     *prometheus.CounterVec
	enforces    *prometheus.CounterVec
	publishes   *prometheus.CounterVec
	requests    *prometheus.HistogramVec
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		providers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signal_provider_outcomes_total",
			Help:      "Signal provider fetch outcomes.",
		}, []string{"provider", "outcome"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Issued defense receipts by mode and level.",
		}, []string{"mode", "level"}),
		scores: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "risk_score",
			Help:      "Distribution of computed risk scores.",
			Buckets:   []float64{0, 20, 40, 60, 80, 100},
		}, []string{"mode"}),
		anchors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_anchors_total",
			Help:      "Ledger anchor attempts by result code.",
		}, []string{"result"}),
		enforces: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_enforcements_total",
			Help:      "Policy enforcement attempts by result code.",
		}, []string{"result"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Event publish attempts by type and result.",
		}, []string{"type", "result"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.providers, r.evaluations, r.scores, r.anchors, r.enforces, r.publishes, r.requests,
	)
	return r
}

func (r *Recorder) ObserveProvider(provider, outcome string) {
	r.providers.WithLabelValues(provider, outcome).Inc()
}

func (r *Recorder) ObserveEvaluation(mode domain.Mode, level domain.RiskLevel, score int) {
	r.evaluations.WithLabelValues(string(mode), level.String()).Inc()
	r.scores.WithLabelValues(string(mode)).Observe(float64(score))
}

func (r *Recorder) ObserveAnchor(result string) {
	r.anchors.WithLabelValues(result).Inc()
}

func (r *Recorder) ObserveEnforcement(result string) {
	r.enforces.WithLabelValues(result).Inc()
}

func (r *Recorder) ObservePublish(eventType domain.EventType, result string) {
	r.publishes.WithLabelValues(string(eventType), result).Inc()
}

func (r *Recorder) ObserveRequest(route, method string, status int, d time.Duration) {
	r.requests.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
