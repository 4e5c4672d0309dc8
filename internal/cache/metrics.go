package cache

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the extraction cache.
type Metrics struct {
	HitsTotal   *prometheus.CounterVec
	MissesTotal *prometheus.CounterVec
	ErrorsTotal *prometheus.CounterVec
	WritesTotal *prometheus.CounterVec
	ClearsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the cache metrics once per process.
//
// Metrics (all labelled by backend):
//   - supplierd_cache_hits_total
//   - supplierd_cache_misses_total
//   - supplierd_cache_errors_total{op}
//   - supplierd_cache_writes_total
//   - supplierd_cache_cleared_entries_total
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			HitsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "supplierd_cache_hits_total",
					Help: "Total number of fresh extraction cache hits",
				},
				[]string{"backend"},
			),
			MissesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "supplierd_cache_misses_total",
					Help: "Total number of extraction cache misses, stale entries included",
				},
				[]string{"backend"},
			),
			ErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "supplierd_cache_errors_total",
					Help: "Total number of extraction cache backend failures",
				},
				[]string{"backend", "op"}, // "get", "put", "clear"
			),
			WritesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "supplierd_cache_writes_total",
					Help: "Total number of extraction cache writes",
				},
				[]string{"backend"},
			),
			ClearsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "supplierd_cache_cleared_entries_total",
					Help: "Total number of entries removed by cache clearing",
				},
				[]string{"backend"},
			),
		}
	})

	return globalMetrics
}

// Instrument wraps c so every call is counted under the given backend label.
// The wrapper forwards Delete and Clear when c implements Clearer and returns
// ErrClearUnsupported otherwise.
func Instrument(c Cache, backend string, m *Metrics) *Instrumented {
	if m == nil {
		m = NewMetrics()
	}
	return &Instrumented{next: c, backend: backend, metrics: m}
}

// Instrumented is a Cache decorator that records Prometheus metrics.
type Instrumented struct {
	next    Cache
	backend string
	metrics *Metrics
}

// Get forwards to the wrapped cache.
func (c *Instrumented) Get(ctx context.Context, companyKey string) (*Entry, bool, error) {
	entry, ok, err := c.next.Get(ctx, companyKey)
	switch {
	case err != nil:
		c.metrics.ErrorsTotal.WithLabelValues(c.backend, "get").Inc()
		c.metrics.MissesTotal.WithLabelValues(c.backend).Inc()
	case ok:
		c.metrics.HitsTotal.WithLabelValues(c.backend).Inc()
	default:
		c.metrics.MissesTotal.WithLabelValues(c.backend).Inc()
	}
	return entry, ok, err
}

// Put forwards to the wrapped cache.
func (c *Instrumented) Put(ctx context.Context, entry Entry) error {
	if err := c.next.Put(ctx, entry); err != nil {
		c.metrics.ErrorsTotal.WithLabelValues(c.backend, "put").Inc()
		return err
	}
	c.metrics.WritesTotal.WithLabelValues(c.backend).Inc()
	return nil
}

// Delete forwards to the wrapped cache when it supports clearing.
func (c *Instrumented) Delete(ctx context.Context, companyKey string) (int, error) {
	clearer, ok := c.next.(Clearer)
	if !ok {
		return 0, ErrClearUnsupported
	}
	return c.countClear(clearer.Delete(ctx, companyKey))
}

// Clear forwards to the wrapped cache when it supports clearing.
func (c *Instrumented) Clear(ctx context.Context) (int, error) {
	clearer, ok := c.next.(Clearer)
	if !ok {
		return 0, ErrClearUnsupported
	}
	return c.countClear(clearer.Clear(ctx))
}

// Count forwards to the wrapped cache when it can count entries.
func (c *Instrumented) Count(ctx context.Context) (int, error) {
	counter, ok := c.next.(Counter)
	if !ok {
		return 0, ErrCountUnsupported
	}
	return counter.Count(ctx)
}

func (c *Instrumented) countClear(n int, err error) (int, error) {
	if err != nil {
		c.metrics.ErrorsTotal.WithLabelValues(c.backend, "clear").Inc()
		return n, err
	}
	c.metrics.ClearsTotal.WithLabelValues(c.backend).Add(float64(n))
	return n, nil
}

var (
	_ Cache   = (*Instrumented)(nil)
	_ Clearer = (*Instrumented)(nil)
	_ Counter = (*Instrumented)(nil)
)
