package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vlmd/internal/pool"
)

func scrapeMetrics(t *testing.T) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsMiddlewareCountsRequests(t *testing.T) {
	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(http.MethodGet, "/teapot", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	body := scrapeMetrics(t)
	if !strings.Contains(body, "vlmd_http_requests_total") {
		t.Fatalf("requests counter missing from scrape")
	}
	if !strings.Contains(body, `path="/teapot"`) || !strings.Contains(body, `status="418"`) {
		t.Fatalf("labels missing from scrape")
	}
}

func TestMetricsUsesRoutePattern(t *testing.T) {
	mux := newTestMux(&fakeService{})
	req := httptest.NewRequest(http.MethodGet, "/v1/models/qwen3-vl-instruct", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	body := scrapeMetrics(t)
	if !strings.Contains(body, `path="/v1/models/{id}"`) {
		t.Fatalf("route pattern label missing; scrape lacks /v1/models/{id}")
	}
	if strings.Contains(body, `vlmd_http_requests_total{method="GET",path="/v1/models/qwen3-vl-instruct"`) {
		t.Fatalf("raw path leaked into request counter labels")
	}
}

func TestStatusRecorderPassesFlushThrough(t *testing.T) {
	rr := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rr, status: 200}
	f, ok := interface{}(sr).(http.Flusher)
	if !ok {
		t.Fatalf("statusRecorder does not implement http.Flusher")
	}
	f.Flush()
	if !rr.Flushed {
		t.Fatalf("flush did not reach the underlying writer")
	}
}

func TestIncrementBackpressure(t *testing.T) {
	IncrementBackpressure("slot_wait_timeout")
	IncrementBackpressure("")

	body := scrapeMetrics(t)
	if !strings.Contains(body, `vlmd_http_backpressure_total{reason="slot_wait_timeout"}`) {
		t.Fatalf("backpressure counter missing")
	}
	if !strings.Contains(body, `reason="unspecified"`) {
		t.Fatalf("empty reason not normalized")
	}
}

// Registers the gauges exactly once for the whole test binary.
func TestRegisterPoolMetrics(t *testing.T) {
	RegisterPoolMetrics(func() pool.Stats {
		return pool.Stats{Size: 4, Free: 3, Busy: 1, Broken: 0}
	})

	body := scrapeMetrics(t)
	for _, m := range []string{
		"vlmd_pool_slots_total 4",
		"vlmd_pool_slots_free 3",
		"vlmd_pool_slots_busy 1",
		"vlmd_pool_slots_broken 0",
	} {
		if !strings.Contains(body, m) {
			t.Fatalf("scrape missing %q", m)
		}
	}
}

func TestItoa(t *testing.T) {
	cases := map[int]string{0: "0", 200: "200", 404: "404", 503: "503", 7: "7"}
	for n, want := range cases {
		if got := itoa(n); got != want {
			t.Errorf("itoa(%d) = %q, want %q", n, got, want)
		}
	}
}
