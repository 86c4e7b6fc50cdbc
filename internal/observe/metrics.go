// Package observe holds the observability plumbing shared by every parley
// package: OpenTelemetry instruments and spans, context-scoped slog
// loggers, and the HTTP middleware that ties a request's trace, duration
// and log line together.
//
// Production code builds its instruments through [Setup], which also serves
// them in Prometheus format. [DefaultMetrics] binds to whatever global
// meter provider is installed; tests pass their own provider to
// [NewMetrics].
package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/parley"

// Metrics are the application's instruments. Label sets are listed per
// field.
type Metrics struct {
	// tier, call
	LLMDuration       metric.Float64Histogram
	EmbeddingDuration metric.Float64Histogram
	// status; request to normalised script
	ChatDuration metric.Float64Histogram

	// provider, kind, status
	ProviderRequests metric.Int64Counter
	// provider, kind
	ProviderErrors metric.Int64Counter
	// status
	ChatRequests metric.Int64Counter
	// kind: discarded or no_dialogue
	ParseAnomalies metric.Int64Counter
	// namespace, result: hit or miss
	CacheLookups metric.Int64Counter
	// status
	MemoryConsolidations metric.Int64Counter
	// npc_id
	NPCUtterances metric.Int64Counter

	// Open WebSocket chat connections.
	ActiveStreams metric.Int64UpDownCounter

	// method, route, status
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are in seconds. Model calls dominate, so they reach a
// minute.
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60}

// instruments creates instruments on one meter and keeps the first error of
// each.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (b *instruments) seconds(name, desc string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	)
	b.errs = append(b.errs, err)
	return h
}

func (b *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.errs = append(b.errs, err)
	return c
}

func (b *instruments) gauge(name, desc string) metric.Int64UpDownCounter {
	g, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	b.errs = append(b.errs, err)
	return g
}

// NewMetrics creates every instrument on a meter from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := &instruments{meter: mp.Meter(meterName)}
	m := &Metrics{
		LLMDuration:       b.seconds("parley.llm.duration", "Latency of model calls."),
		EmbeddingDuration: b.seconds("parley.embedding.duration", "Latency of text embedding calls."),
		ChatDuration:      b.seconds("parley.chat.duration", "End-to-end latency of scene chat requests."),

		ProviderRequests:     b.counter("parley.provider.requests", "Provider API requests by provider, kind and status."),
		ProviderErrors:       b.counter("parley.provider.errors", "Provider errors by provider and kind."),
		ChatRequests:         b.counter("parley.chat.requests", "Scene chat requests by status."),
		ParseAnomalies:       b.counter("parley.dialogue.parse_anomalies", "Model outputs with discarded lines or no dialogue."),
		CacheLookups:         b.counter("parley.cache.lookups", "Read-through cache lookups by namespace and result."),
		MemoryConsolidations: b.counter("parley.memory.consolidations", "Memory summaries written by status."),
		NPCUtterances:        b.counter("parley.npc.utterances", "NPC lines returned by NPC ID."),

		ActiveStreams: b.gauge("parley.active_streams", "Open WebSocket chat connections."),

		HTTPRequestDuration: b.seconds("parley.http.request.duration", "HTTP request latency by method, route and status."),
	}
	if err := errors.Join(b.errs...); err != nil {
		return nil, fmt.Errorf("observe: create instruments: %w", err)
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns instruments bound to the global meter provider at
// the time of the first call. It panics if they cannot be created.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		if defaultMetrics, err = NewMetrics(otel.GetMeterProvider()); err != nil {
			panic(err)
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest counts one provider call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError counts one failed provider call.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordChat records one chat request outcome and its latency in seconds.
func (m *Metrics) RecordChat(ctx context.Context, status string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.ChatRequests.Add(ctx, 1, attrs)
	m.ChatDuration.Record(ctx, seconds, attrs)
}

// RecordParseAnomaly records a parse anomaly of the given kind.
func (m *Metrics) RecordParseAnomaly(ctx context.Context, kind string) {
	m.ParseAnomalies.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordCacheLookup records a read-through lookup.
func (m *Metrics) RecordCacheLookup(ctx context.Context, namespace string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("namespace", namespace),
			attribute.String("result", result),
		),
	)
}

// RecordConsolidation records a memory consolidation outcome.
func (m *Metrics) RecordConsolidation(ctx context.Context, status string) {
	m.MemoryConsolidations.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordNPCUtterance counts one line spoken by npcID.
func (m *Metrics) RecordNPCUtterance(ctx context.Context, npcID string) {
	m.NPCUtterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("npc_id", npcID)),
	)
}
