package tracing

import (
	"context"
	"testing"

	tracesdk "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitTracing_Disabled(t *testing.T) {
	tr, err := InitTracing(Config{Enabled: false})
	if err != nil {
		t.Fatalf("InitTracing failed: %v", err)
	}
	if GetTracer() != tr {
		t.Error("Expected GetTracer to return the initialized tracer")
	}

	_, span := tr.StartSpan(context.Background(), "noop")
	defer span.End()
	if span.SpanContext().IsValid() {
		t.Error("Expected a no-op span")
	}

	if err := Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestConfig_Sampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{0, tracesdk.AlwaysSample().Description()},
		{1, tracesdk.AlwaysSample().Description()},
		{0.25, tracesdk.ParentBased(tracesdk.TraceIDRatioBased(0.25)).Description()},
	}
	for _, tt := range tests {
		got := Config{SampleRatio: tt.ratio}.sampler().Description()
		if got != tt.want {
			t.Errorf("ratio %v: expected %s, got %s", tt.ratio, tt.want, got)
		}
	}
}
