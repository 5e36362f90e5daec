package observability

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MetricsRegistry holds all registered metrics.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
	histos   map[string]*Histogram
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name  string
	help  string
	mu    sync.Mutex
	value float64
}

// Gauge is a metric that can go up or down.
type Gauge struct {
	name  string
	help  string
	mu    sync.Mutex
	value float64
}

// Histogram tracks the distribution of observed values.
type Histogram struct {
	name    string
	help    string
	buckets []float64
	mu      sync.Mutex
	counts  []uint64
	sum     float64
	count   uint64
}

// NewMetricsRegistry creates a new metrics registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
		histos:   make(map[string]*Histogram),
	}
}

// NewCounter creates and registers a counter.
func (r *MetricsRegistry) NewCounter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &Counter{name: name, help: help}
	r.counters[name] = c
	return c
}

// NewGauge creates and registers a gauge.
func (r *MetricsRegistry) NewGauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	g := &Gauge{name: name, help: help}
	r.gauges[name] = g
	return g
}

// NewHistogram creates and registers a histogram. Nil buckets get the
// default latency buckets.
func (r *MetricsRegistry) NewHistogram(name, help string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()

	if buckets == nil {
		buckets = DefaultBuckets()
	}
	h := &Histogram{
		name:    name,
		help:    help,
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
	r.histos[name] = h
	return h
}

// DefaultBuckets returns default histogram buckets for latency in seconds.
func DefaultBuckets() []float64 {
	return []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
}

// Inc increments a counter by 1.
func (c *Counter) Inc() {
	c.Add(1)
}

// Add adds a value to the counter.
func (c *Counter) Add(v float64) {
	c.mu.Lock()
	c.value += v
	c.mu.Unlock()
}

// Value returns the counter value.
func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set sets the gauge value.
func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() {
	g.Add(1)
}

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() {
	g.Add(-1)
}

// Add adds a value to the gauge.
func (g *Gauge) Add(v float64) {
	g.mu.Lock()
	g.value += v
	g.mu.Unlock()
}

// Value returns the gauge value.
func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Observe records a value in the histogram. Each value lands in the
// first bucket that holds it; WritePrometheus accumulates the counts.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += v
	h.count++
	for i, bound := range h.buckets {
		if v <= bound {
			h.counts[i]++
			break
		}
	}
}

// ObserveDuration records the time elapsed since start.
func (h *Histogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Handler returns an HTTP handler serving the Prometheus text format.
func (r *MetricsRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WritePrometheus(w)
	})
}

// WritePrometheus writes all metrics in Prometheus text format, sorted
// by name so output is stable across scrapes.
func (r *MetricsRegistry) WritePrometheus(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range sortedKeys(r.counters) {
		c := r.counters[name]
		c.mu.Lock()
		writeHeader(w, c.name, "counter", c.help)
		fmt.Fprintf(w, "%s %s\n", c.name, formatFloat(c.value))
		c.mu.Unlock()
	}
	for _, name := range sortedKeys(r.gauges) {
		g := r.gauges[name]
		g.mu.Lock()
		writeHeader(w, g.name, "gauge", g.help)
		fmt.Fprintf(w, "%s %s\n", g.name, formatFloat(g.value))
		g.mu.Unlock()
	}
	for _, name := range sortedKeys(r.histos) {
		h := r.histos[name]
		h.mu.Lock()
		writeHeader(w, h.name, "histogram", h.help)
		var cumulative uint64
		for i, bound := range h.buckets {
			cumulative += h.counts[i]
			fmt.Fprintf(w, "%s_bucket{le=%q} %d\n", h.name, formatFloat(bound), cumulative)
		}
		fmt.Fprintf(w, "%s_bucket{le=\"+Inf\"} %d\n", h.name, h.count)
		fmt.Fprintf(w, "%s_sum %s\n", h.name, formatFloat(h.sum))
		fmt.Fprintf(w, "%s_count %d\n", h.name, h.count)
		h.mu.Unlock()
	}
}

func writeHeader(w io.Writer, name, metricType, help string) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, metricType)
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// DocqueryMetrics contains all docquery-specific metrics.
type DocqueryMetrics struct {
	Registry *MetricsRegistry

	// Ingestion metrics
	IngestRunsTotal    *Counter
	DocumentsTotal     *Counter
	DocumentsFailed    *Counter
	ChunksIndexedTotal *Counter
	IngestDuration     *Histogram
	ActiveWorkers      *Gauge

	// Embedding metrics
	EmbedRequestsTotal *Counter
	EmbedErrorsTotal   *Counter
	EmbedDuration      *Histogram

	// Query metrics
	QueriesTotal      *Counter
	QueryErrorsTotal  *Counter
	QueryDuration     *Histogram
	MatchesReturned   *Histogram
	FallbackAnswers   *Counter
	GeneratorFailures *Counter
}

// NewDocqueryMetrics creates docquery-specific metrics.
func NewDocqueryMetrics() *DocqueryMetrics {
	r := NewMetricsRegistry()

	return &DocqueryMetrics{
		Registry: r,

		IngestRunsTotal:    r.NewCounter("docquery_ingest_runs_total", "Total ingestion runs"),
		DocumentsTotal:     r.NewCounter("docquery_documents_total", "Total documents processed"),
		DocumentsFailed:    r.NewCounter("docquery_documents_failed_total", "Documents that failed ingestion"),
		ChunksIndexedTotal: r.NewCounter("docquery_chunks_indexed_total", "Chunks written to the index"),
		IngestDuration:     r.NewHistogram("docquery_ingest_duration_seconds", "Ingestion run duration", []float64{1, 5, 15, 30, 60, 120, 300, 600}),
		ActiveWorkers:      r.NewGauge("docquery_active_workers", "Documents being processed right now"),

		EmbedRequestsTotal: r.NewCounter("docquery_embed_requests_total", "Total embedding API requests"),
		EmbedErrorsTotal:   r.NewCounter("docquery_embed_errors_total", "Failed embedding API requests"),
		EmbedDuration:      r.NewHistogram("docquery_embed_duration_seconds", "Embedding request duration", nil),

		QueriesTotal:      r.NewCounter("docquery_queries_total", "Total questions answered"),
		QueryErrorsTotal:  r.NewCounter("docquery_query_errors_total", "Questions that failed"),
		QueryDuration:     r.NewHistogram("docquery_query_duration_seconds", "End-to-end query duration", nil),
		MatchesReturned:   r.NewHistogram("docquery_matches_returned", "Matches surviving the distance filter", []float64{0, 1, 2, 3, 4, 5}),
		FallbackAnswers:   r.NewCounter("docquery_fallback_answers_total", "Answers produced by the extractive fallback"),
		GeneratorFailures: r.NewCounter("docquery_generator_failures_total", "Generation backend attempts that failed"),
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *DocqueryMetrics) Handler() http.Handler {
	return m.Registry.Handler()
}

// RecordIngestRun records a completed ingestion run.
func (m *DocqueryMetrics) RecordIngestRun(duration time.Duration, succeeded, failed, chunksAdded int) {
	m.IngestRunsTotal.Inc()
	m.IngestDuration.Observe(duration.Seconds())
	m.DocumentsTotal.Add(float64(succeeded + failed))
	m.DocumentsFailed.Add(float64(failed))
	m.ChunksIndexedTotal.Add(float64(chunksAdded))
}

// RecordEmbed records an embedding request.
func (m *DocqueryMetrics) RecordEmbed(duration time.Duration, err error) {
	m.EmbedRequestsTotal.Inc()
	m.EmbedDuration.Observe(duration.Seconds())
	if err != nil {
		m.EmbedErrorsTotal.Inc()
	}
}

// RecordQuery records an answered question.
func (m *DocqueryMetrics) RecordQuery(duration time.Duration, matches int, fallback bool, err error) {
	m.QueriesTotal.Inc()
	m.QueryDuration.Observe(duration.Seconds())
	if err != nil {
		m.QueryErrorsTotal.Inc()
		return
	}
	m.MatchesReturned.Observe(float64(matches))
	if fallback {
		m.FallbackAnswers.Inc()
	}
}

// Global metrics instance
var globalMetrics *DocqueryMetrics
var metricsOnce sync.Once

// Metrics returns the global metrics instance.
func Metrics() *DocqueryMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewDocqueryMetrics()
	})
	return globalMetrics
}
