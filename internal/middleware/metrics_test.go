package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/todoman/internal/metrics"
)

type recordingMetrics struct {
	metrics.Nop
	mu       sync.Mutex
	statuses []int
	methods  []string
}

func (m *recordingMetrics) RecordHTTPStatus(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, code)
}

func (m *recordingMetrics) RecordHTTPLatency(method string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.methods = append(m.methods, method)
}

var _ metrics.MetricsCollector = (*recordingMetrics)(nil)

func TestMetricsMiddleware_RecordsStatusAndLatency(t *testing.T) {
	mc := &recordingMetrics{}
	handler := NewMetricsMiddleware(mc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/todos", nil))

	if len(mc.statuses) != 1 || mc.statuses[0] != http.StatusCreated {
		t.Errorf("statuses = %v, want [201]", mc.statuses)
	}
	if len(mc.methods) != 1 || mc.methods[0] != http.MethodPost {
		t.Errorf("methods = %v, want [POST]", mc.methods)
	}
}

func TestMetricsMiddleware_DefaultsTo200(t *testing.T) {
	mc := &recordingMetrics{}
	handler := NewMetricsMiddleware(mc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if len(mc.statuses) != 1 || mc.statuses[0] != http.StatusOK {
		t.Errorf("statuses = %v, want [200]", mc.statuses)
	}
}

func TestSecurityHeadersMiddleware_SetsHeaders(t *testing.T) {
	handler := NewSecurityHeadersMiddleware()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/todos", nil))

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	}
	for k, v := range want {
		if got := w.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}
