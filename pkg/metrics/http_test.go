package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHTTPMetricsLabelsByRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.ObserveRequest("POST", "/api/runs/{id}/schedule", 200, 15*time.Millisecond)
	m.ObserveRequest("POST", "/api/runs/{id}/schedule", 200, 5*time.Millisecond)
	m.ObserveRequest("GET", "", 404, time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "mcpmp_http_requests_total", "route", "/api/runs/{id}/schedule"); err != nil || got != 2 {
		t.Fatalf("expected schedule=2, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "mcpmp_http_requests_total", "route", "unmatched"); err != nil || got != 1 {
		t.Fatalf("expected unmatched=1, got %f (%v)", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "mcpmp_http_request_duration_seconds", "route", "/api/runs/{id}/schedule"); err != nil || got < 0.019 {
		t.Fatalf("expected duration sum ~0.02, got %f (%v)", got, err)
	}

	var nilMetrics *HTTPMetrics
	nilMetrics.ObserveRequest("GET", "/", 200, time.Second)
}
