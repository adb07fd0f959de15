package telemetry

import (
	"context"
	"testing"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown, err := Init(context.Background(), "kinobot-test", "dev")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSamplingRatio(t *testing.T) {
	tests := map[string]float64{
		"":     1,
		"0.25": 0.25,
		"2":    1,
		"x":    1,
		"0":    0,
	}
	for raw, want := range tests {
		t.Setenv("OTEL_TRACES_SAMPLER_ARG", raw)
		if got := samplingRatio(); got != want {
			t.Fatalf("samplingRatio(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestStripScheme(t *testing.T) {
	if got := stripScheme("https://collector:4318"); got != "collector:4318" {
		t.Fatalf("unexpected %q", got)
	}
}
