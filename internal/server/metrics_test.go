package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrapeMetrics(t *testing.T, h http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics: got %d, want 200", rec.Code)
	}
	return rec.Body.String()
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t, nil)

	body := scrapeMetrics(t, s.Handler())
	if !strings.Contains(body, "oipa_turn_active_streams") {
		t.Error("missing oipa_turn_active_streams gauge")
	}
}

func TestMetricsTurnCounter(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t, nil)
	id := createSession(t, s.Handler(), `{"username":"jdoe"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/run", strings.NewReader(runBody(id, "what is the playbook?", false)))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("run: got %d", rec.Code)
	}

	body := scrapeMetrics(t, s.Handler())
	if !strings.Contains(body, `oipa_turn_requests_total{intent="document_qa",outcome="ok"} 1`) {
		t.Error("turn counter not incremented for document_qa/ok")
	}
	if !strings.Contains(body, `oipa_http_requests_total`) {
		t.Error("missing HTTP request counter")
	}
}

func TestMetricsRegistriesIsolated(t *testing.T) {
	t.Parallel()
	// Two servers must not collide on collector registration.
	a, _, _ := newTestServer(t, nil)
	b, _, _ := newTestServer(t, nil)
	scrapeMetrics(t, a.Handler())
	scrapeMetrics(t, b.Handler())
}
