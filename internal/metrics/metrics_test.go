package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentHandlerLabelsByRoutePattern(t *testing.T) {
	m := New()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /jobs/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := m.InstrumentHandler(mux)

	for _, path := range []string{"/jobs/1", "/jobs/2", "/nope"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/jobs/{id}", "404")); got != 2 {
		t.Fatalf("expected 2 requests on /jobs/{id}, got %v", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Fatalf("expected 1 unmatched request, got %v", got)
	}
}

func TestDomainCountersAndHandler(t *testing.T) {
	m := New()
	m.AuthEvent("login", "failure")
	m.ApplicationCreated()
	m.StatusChanged("SHORTLISTED")
	m.SearchServed("fallback")
	m.RateLimited("/auth/login")
	m.ResumeUpload("stored")

	if got := testutil.ToFloat64(m.applications); got != 1 {
		t.Fatalf("applications counter = %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`jobportal_auth_events_total{event="login",outcome="failure"} 1`,
		`jobportal_jobsearch_responses_total{source="fallback"} 1`,
		`jobportal_applications_status_changes_total{status="SHORTLISTED"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.AuthEvent("login", "success")
	m.ApplicationCreated()
	m.SearchServed("live")
}
