package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestSetup_None(t *testing.T) {
	shutdown, err := Setup(context.Background(), Options{Exporter: "none"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetup_UnknownExporter(t *testing.T) {
	if _, err := Setup(context.Background(), Options{Exporter: "zipkin"}); err == nil {
		t.Fatalf("expected error for unknown exporter")
	}
}

func TestSetup_StdoutExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := Setup(context.Background(), Options{
		Exporter:    "stdout",
		ServiceName: "tasks-test",
		Writer:      &buf,
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "probe")
	span.End()

	// shutdown flushes the batcher
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"Name":"probe"`) {
		t.Fatalf("expected exported span, got %s", out)
	}
	if !strings.Contains(out, "tasks-test") {
		t.Fatalf("expected service name in resource, got %s", out)
	}
}
