// Package metrics holds the Prometheus collector shared by the data access
// packages. Every method is safe on a nil *Collector, so components record
// unconditionally and metrics stay optional.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics of the data access layer.
type Collector struct {
	registry *prometheus.Registry

	CacheRequests     *prometheus.CounterVec
	TimestampRefresh  *prometheus.CounterVec
	Statements        *prometheus.CounterVec
	StatementDuration *prometheus.HistogramVec
	ConnectAttempts   *prometheus.CounterVec
	Transactions      *prometheus.CounterVec
	LockAcquisitions  *prometheus.CounterVec
	PooledConnections prometheus.Gauge
}

// NewCollector creates a collector registered on its own registry.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		CacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_requests_total",
				Help:      "Cache lookups by entity and result (hit, miss, error)",
			},
			[]string{"entity", "result"},
		),
		TimestampRefresh: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_timestamp_refresh_total",
				Help:      "Invalidation timestamp bumps by entity and level",
			},
			[]string{"entity", "level"},
		),
		Statements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_statements_total",
				Help:      "Executed statements by schema, kind and status",
			},
			[]string{"schema", "kind", "status"},
		),
		StatementDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_statement_duration_seconds",
				Help:      "Statement duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"schema", "kind"},
		),
		ConnectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_connect_attempts_total",
				Help:      "Connection attempts by schema and result",
			},
			[]string{"schema", "result"},
		),
		Transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_transactions_total",
				Help:      "Finished transactions by schema and outcome",
			},
			[]string{"schema", "outcome"},
		),
		LockAcquisitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lock_acquisitions_total",
				Help:      "Named lock attempts by operation, mode and result",
			},
			[]string{"operation", "mode", "result"},
		),
		PooledConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_connections",
				Help:      "Connections held by the single thread pool",
			},
		),
	}

	registry.MustRegister(
		c.CacheRequests,
		c.TimestampRefresh,
		c.Statements,
		c.StatementDuration,
		c.ConnectAttempts,
		c.Transactions,
		c.LockAcquisitions,
		c.PooledConnections,
	)

	return c
}

// Registry returns the registry the metrics are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) CacheResult(entity, result string) {
	if c == nil {
		return
	}
	c.CacheRequests.WithLabelValues(entity, result).Inc()
}

func (c *Collector) Refresh(entity, level string) {
	if c == nil {
		return
	}
	c.TimestampRefresh.WithLabelValues(entity, level).Inc()
}

// Statement records one executed statement.
func (c *Collector) Statement(schema, kind string, err error, elapsed time.Duration) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.Statements.WithLabelValues(schema, kind, status).Inc()
	c.StatementDuration.WithLabelValues(schema, kind).Observe(elapsed.Seconds())
}

func (c *Collector) Connect(schema, result string) {
	if c == nil {
		return
	}
	c.ConnectAttempts.WithLabelValues(schema, result).Inc()
}

func (c *Collector) Transaction(schema, outcome string) {
	if c == nil {
		return
	}
	c.Transactions.WithLabelValues(schema, outcome).Inc()
}

func (c *Collector) Lock(operation, mode, result string) {
	if c == nil {
		return
	}
	c.LockAcquisitions.WithLabelValues(operation, mode, result).Inc()
}

func (c *Collector) Pooled(n int) {
	if c == nil {
		return
	}
	c.PooledConnections.Set(float64(n))
}
