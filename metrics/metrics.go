package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Store collects the metrics of the store, the evaluator and the http layer
type Store interface {
	Registry() *prometheus.Registry
	Handler() http.Handler

	// Collection
	IncCommits(operations int)
	IncConflicts()
	IncFailures(operation string)
	SetHeadRevision(id uint64)
	ObserveEvaluation(duration time.Duration, matches int)
	IncRequests(endpoint string, code int)
	IncRefreshes(kind string)
}

type metricsStore struct {
	registry           *prometheus.Registry
	Commits            prometheus.Counter
	Operations         prometheus.Counter
	Conflicts          prometheus.Counter
	Failures           *prometheus.CounterVec
	HeadRevision       prometheus.Gauge
	Evaluations        prometheus.Counter
	Matches            prometheus.Counter
	EvaluationDuration prometheus.Histogram
	Requests           *prometheus.CounterVec
	Refreshes          *prometheus.CounterVec
}

var (
	OperationLabel = "operation"
	EndpointLabel  = "endpoint"
	CodeLabel      = "code"
	KindLabel      = "kind"
)

// NewMetricsStore returns metrics registered in a new registry, with go runtime collectors
func NewMetricsStore() Store {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	return &metricsStore{
		registry: reg,
		Commits: factory.NewCounter(prometheus.CounterOpts{
			Name: "txl_commits_total",
			Help: "The total number of committed revisions",
		}),
		Operations: factory.NewCounter(prometheus.CounterOpts{
			Name: "txl_operations_total",
			Help: "The total number of committed update and clear operations",
		}),
		Conflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "txl_revision_conflicts_total",
			Help: "Commits attempted against a stale head",
		}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "txl_failures_total",
			Help: "Failed operations per kind",
		}, []string{OperationLabel}),
		HeadRevision: factory.NewGauge(prometheus.GaugeOpts{
			Name: "txl_head_revision",
			Help: "Id of the current head revision",
		}),
		Evaluations: factory.NewCounter(prometheus.CounterOpts{
			Name: "txl_pattern_evaluations_total",
			Help: "The total number of pattern evaluations",
		}),
		Matches: factory.NewCounter(prometheus.CounterOpts{
			Name: "txl_pattern_matches_total",
			Help: "The total number of bindings produced by evaluations",
		}),
		EvaluationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "txl_pattern_evaluation_seconds",
			Help:    "Pattern evaluation duration",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		}),
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "txl_http_requests_total",
			Help: "Http requests per endpoint and status code",
		}, []string{EndpointLabel, CodeLabel}),
		Refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "txl_continuous_refreshes_total",
			Help: "Situations and registered queries evaluated after a commit, per kind",
		}, []string{KindLabel}),
	}
}

func (ms *metricsStore) Registry() *prometheus.Registry {
	return ms.registry
}

func (ms *metricsStore) Handler() http.Handler {
	return promhttp.HandlerFor(ms.Registry(), promhttp.HandlerOpts{Registry: ms.Registry()})
}

func (ms *metricsStore) IncCommits(operations int) {
	ms.Commits.Inc()
	ms.Operations.Add(float64(operations))
}

func (ms *metricsStore) IncConflicts() {
	ms.Conflicts.Inc()
}

func (ms *metricsStore) IncFailures(operation string) {
	ms.Failures.With(prometheus.Labels{OperationLabel: operation}).Inc()
}

func (ms *metricsStore) SetHeadRevision(id uint64) {
	ms.HeadRevision.Set(float64(id))
}

func (ms *metricsStore) ObserveEvaluation(duration time.Duration, matches int) {
	ms.Evaluations.Inc()
	ms.Matches.Add(float64(matches))
	ms.EvaluationDuration.Observe(duration.Seconds())
}

func (ms *metricsStore) IncRequests(endpoint string, code int) {
	ms.Requests.With(prometheus.Labels{EndpointLabel: endpoint, CodeLabel: strconv.Itoa(code)}).Inc()
}

func (ms *metricsStore) IncRefreshes(kind string) {
	ms.Refreshes.With(prometheus.Labels{KindLabel: kind}).Inc()
}
