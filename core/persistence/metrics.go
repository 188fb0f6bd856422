package persistence

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors the persistence layer updates. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	StatementsPrepared prometheus.Counter
	CacheLookups       *prometheus.CounterVec
	CachePurges        prometheus.Counter
	Batches            prometheus.Counter
	Rows               prometheus.Counter
	StoreErrors        *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StatementsPrepared: factory.NewCounter(prometheus.CounterOpts{
			Name: "docstore_statements_prepared_total",
			Help: "Statements prepared by the store",
		}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docstore_statement_cache_lookups_total",
			Help: "Prepared-statement cache lookups by result",
		}, []string{"result"}),
		CachePurges: factory.NewCounter(prometheus.CounterOpts{
			Name: "docstore_statement_cache_purges_total",
			Help: "Full clears of the prepared-statement cache",
		}),
		Batches: factory.NewCounter(prometheus.CounterOpts{
			Name: "docstore_batches_fetched_total",
			Help: "Result batches fetched from the store",
		}),
		Rows: factory.NewCounter(prometheus.CounterOpts{
			Name: "docstore_rows_fetched_total",
			Help: "Result rows fetched from the store",
		}),
		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docstore_store_errors_total",
			Help: "Failed store calls by operation",
		}, []string{"op"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docstore_operation_duration_seconds",
			Help:    "Latency of collection operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "status"}),
	}
}

func (m *Metrics) cacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) prepared() {
	if m != nil {
		m.StatementsPrepared.Inc()
	}
}

func (m *Metrics) purged() {
	if m != nil {
		m.CachePurges.Inc()
	}
}

func (m *Metrics) batch(rows int) {
	if m == nil {
		return
	}
	m.Batches.Inc()
	m.Rows.Add(float64(rows))
}

func (m *Metrics) storeError(op string) {
	if m != nil {
		m.StoreErrors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) observe(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	m.OperationDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
}
