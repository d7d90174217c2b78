package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMiddlewareCountsRequests(t *testing.T) {
	m := NewMetrics()

	router := chi.NewRouter()
	router.Use(m.Middleware)
	router.Get("/api/v1/transactions/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/transactions/42", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := scrape(t, m)
	assert.Contains(t, body, `tellerdesk_http_requests_total{code="200",route="/api/v1/transactions/{id}"} 1`)
	assert.Contains(t, body, `tellerdesk_http_request_duration_seconds_count{route="/api/v1/transactions/{id}"} 1`)
}

func TestMiddlewareRecordsErrorStatus(t *testing.T) {
	m := NewMetrics()

	router := chi.NewRouter()
	router.Use(m.Middleware)
	router.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Contains(t, scrape(t, m), `tellerdesk_http_requests_total{code="500",route="/boom"} 1`)
}

func TestObservePosting(t *testing.T) {
	m := NewMetrics()

	m.ObservePosting("momo", "posted")
	m.ObservePosting("momo", "posted")
	m.ObservePosting("jumia", "skipped")

	body := scrape(t, m)
	assert.Contains(t, body, `tellerdesk_gl_postings_total{module="momo",status="posted"} 2`)
	assert.Contains(t, body, `tellerdesk_gl_postings_total{module="jumia",status="skipped"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics

	m.ObservePosting("momo", "posted")

	handled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { handled = true })
	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, handled, "nil metrics middleware passes through")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
