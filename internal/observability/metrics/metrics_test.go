package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/plant-catalogue/internal/core/domain"
)

func scrape(t *testing.T, handler http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	return rec.Body.String()
}

func assertContains(t *testing.T, body string, want ...string) {
	t.Helper()
	for _, line := range want {
		if !strings.Contains(body, line) {
			t.Fatalf("metrics output missing %q\n%s", line, body)
		}
	}
}

func TestMiddlewareCountsNormalizedPaths(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	for _, path := range []string{"/uploads/a.jpg", "/uploads/b.jpg"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assertContains(t, scrape(t, m.Handler()),
		`plant_http_requests_total{method="GET",path="/uploads/{key}",service="api",status="404"} 2`,
	)
}

func TestUploadOutcomesAreExposed(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.ObserveUpload("Accepted")
	m.ObserveUpload(domain.CategoryLowConfidence)
	m.ObserveClassify("Accepted", 1500*time.Millisecond)
	m.ObserveRetry("llm.classify", 1, errors.New("503"))
	m.ObserveBreakerTransition("llm.classify", "closed", "open")

	assertContains(t, scrape(t, m.Handler()),
		`plant_ingest_uploads_total{outcome="Accepted",service="api"} 1`,
		`plant_ingest_uploads_total{outcome="LowConfidence",service="api"} 1`,
		`plant_classifier_duration_seconds_count{outcome="Accepted",service="api"} 1`,
		`plant_resilience_retries_total{operation="llm.classify",service="api"} 1`,
		`plant_resilience_breaker_transitions_total{operation="llm.classify",service="api",to="open"} 1`,
	)
}

func TestWorkerMetricsObserveReconcile(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.ObserveReconcile(domain.ReconcileReport{Scanned: 5, Updated: 3, Skipped: 1, Failed: 1}, time.Second, nil)
	m.ObserveReconcile(domain.ReconcileReport{}, time.Second, errors.New("db down"))

	body := scrape(t, m.Handler())
	assertContains(t, body,
		`plant_reconcile_entries_total{result="updated",service="worker"} 3`,
		`plant_reconcile_entries_total{result="failed",service="worker"} 1`,
		`plant_reconcile_runs_total{service="worker",status="error"} 1`,
		`plant_reconcile_runs_total{service="worker",status="success"} 1`,
	)
	if strings.Contains(body, `plant_reconcile_last_success_timestamp_seconds{service="worker"} 0`+"\n") {
		t.Fatalf("last success timestamp not set")
	}
}
