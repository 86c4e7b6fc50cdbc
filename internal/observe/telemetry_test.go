package observe

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// restoreGlobals puts the global OTel providers back after Setup replaced
// them.
func restoreGlobals(t *testing.T) {
	t.Helper()
	mp, tp, prop := otel.GetMeterProvider(), otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetMeterProvider(mp)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func TestSetup_ServesMetrics(t *testing.T) {
	restoreGlobals(t)
	ctx := context.Background()

	tel, err := Setup(ctx, TelemetryConfig{ServiceVersion: "test"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer tel.Shutdown(ctx)

	tel.Metrics.RecordChat(ctx, "ok", 0.4)
	tel.Metrics.RecordNPCUtterance(ctx, "bob")

	rec := httptest.NewRecorder()
	tel.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		"parley_chat_duration_seconds_bucket",
		"parley_chat_requests_total",
		`npc_id="bob"`,
		`service_name="parley"`,
		"go_goroutines",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("/metrics output missing %q", want)
		}
	}
}

func TestSetup_ExportsSpans(t *testing.T) {
	restoreGlobals(t)
	ctx := context.Background()
	exp := tracetest.NewInMemoryExporter()

	tel, err := Setup(ctx, TelemetryConfig{SpanExporter: exp})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	_, span := StartSpan(ctx, "scene.Chat")
	span.End()

	defer tel.Shutdown(ctx)

	// Shutting down would reset the in-memory exporter, so flush instead.
	tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	if !ok {
		t.Fatalf("global tracer provider is %T", otel.GetTracerProvider())
	}
	if err := tp.ForceFlush(ctx); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "scene.Chat" {
		t.Errorf("exported spans: %v", spans)
	}
}
