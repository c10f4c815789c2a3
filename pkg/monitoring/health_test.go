package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHealthChecker_Basic(t *testing.T) {
	hc := NewHealthChecker("svc", "v1")
	hc.AddCheck("ok", func() CheckResult { return CheckResult{Status: StatusHealthy} })
	if status := hc.CheckHealth(); status.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s", status.Status)
	}
}

func TestHealthChecker_DegradedAndUnhealthy(t *testing.T) {
	hc := NewHealthChecker("svc", "v1")
	hc.AddCheck("mongo", PingHealthCheck("mongo", PingerFunc(func(context.Context) error { return nil }), true))
	hc.AddCheck("redis", PingHealthCheck("redis", PingerFunc(func(context.Context) error { return errors.New("refused") }), false))

	status := hc.CheckHealth()
	if status.Status != StatusDegraded {
		t.Fatalf("expected degraded with optional dependency down, got %s", status.Status)
	}
	if status.Checks["redis"].Status != StatusDegraded {
		t.Fatalf("expected redis degraded, got %+v", status.Checks["redis"])
	}

	hc.AddCheck("mongo", PingHealthCheck("mongo", PingerFunc(func(context.Context) error { return errors.New("no primary") }), true))
	if status := hc.CheckHealth(); status.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy with critical dependency down, got %s", status.Status)
	}
}

func TestPingHealthCheck_NilPinger(t *testing.T) {
	res := PingHealthCheck("kafka", nil, false)()
	if res.Status != StatusDegraded || !strings.Contains(res.Message, "not configured") {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestUpstreamRateLimitCheck(t *testing.T) {
	blocked := 90 * time.Second
	check := UpstreamRateLimitCheck("xapi", func() time.Duration { return blocked })
	if res := check(); res.Status != StatusDegraded {
		t.Fatalf("expected degraded while blocked, got %+v", res)
	}
	blocked = 0
	if res := check(); res.Status != StatusHealthy {
		t.Fatalf("expected healthy after reset, got %+v", res)
	}
}

func TestConfigurationHealthCheck(t *testing.T) {
	res := ConfigurationHealthCheck(map[string]string{"MONGODB_URI": "", "PORT": "1"})()
	if res.Status != StatusUnhealthy || !strings.Contains(res.Message, "MONGODB_URI") {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestHealthHandler_ServiceUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hc := NewHealthChecker("blabz", "test")
	hc.AddCheck("mongo", func() CheckResult { return CheckResult{Status: StatusUnhealthy} })

	r := gin.New()
	r.GET("/health", hc.Handler())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var body HealthStatus
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Service != "blabz" || body.Status != StatusUnhealthy {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestMetricsCollector_CountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mc := NewMetricsCollector("blabz-test", "v1", "abc")
	counter := mc.NewCounter("widgets_total", "widgets", []string{"kind"})
	counter.WithLabelValues("a").Inc()

	r := gin.New()
	r.Use(mc.MetricsMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", mc.Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if got := testutil.ToFloat64(mc.httpRequestsTotal.WithLabelValues("GET", "/ping", "200")); got != 1 {
		t.Fatalf("expected 1 request counted, got %v", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), "blabz_test_widgets_total") {
		t.Fatalf("expected custom metric in exposition output")
	}
}

func TestMetricsCollector_GaugeFunc(t *testing.T) {
	mc := NewMetricsCollector("blabz-test", "v1", "abc")
	entries := 3
	mc.NewGaugeFunc("cache_entries", "entries", func() float64 { return float64(entries) })

	expected := `
# HELP blabz_test_cache_entries entries
# TYPE blabz_test_cache_entries gauge
blabz_test_cache_entries 3
`
	if err := testutil.GatherAndCompare(mc.Registry(), strings.NewReader(expected), "blabz_test_cache_entries"); err != nil {
		t.Fatalf("unexpected gauge output: %v", err)
	}
}
