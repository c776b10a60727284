package ops

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

type fakePinger struct {
	err error
}

func (p *fakePinger) PingContext(ctx context.Context) error {
	return p.err
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// TestHealthz_HealthyReturns200 はDB疎通時に200が返ることを検証する。
func TestHealthz_HealthyReturns200(t *testing.T) {
	var buf bytes.Buffer
	router := NewRouter(&fakePinger{}, prometheus.NewRegistry(), newTestLogger(&buf))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

// TestHealthz_UnhealthyReturns503 はDB疎通失敗時に503が返ることを検証する。
func TestHealthz_UnhealthyReturns503(t *testing.T) {
	var buf bytes.Buffer
	router := NewRouter(&fakePinger{err: errors.New("connection refused")}, prometheus.NewRegistry(), newTestLogger(&buf))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

// TestMetrics_ReturnsPrometheusFormat は/metricsがPrometheus形式で
// 返ることを検証する。
func TestMetrics_ReturnsPrometheusFormat(t *testing.T) {
	var buf bytes.Buffer
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter_total",
		Help: "テスト用カウンタ",
	})
	registry.MustRegister(counter)
	counter.Inc()

	router := NewRouter(&fakePinger{}, registry, newTestLogger(&buf))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test_counter_total 1") {
		t.Errorf("メトリクスが出力されていない: %q", rec.Body.String())
	}
}

// TestLoggingMiddleware_LogsRequests はリクエストログにmethod・path・statusが
// 含まれることを検証する。
func TestLoggingMiddleware_LogsRequests(t *testing.T) {
	var buf bytes.Buffer
	router := NewRouter(&fakePinger{}, prometheus.NewRegistry(), newTestLogger(&buf))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	logged := buf.String()
	for _, want := range []string{"http_request", `"method":"GET"`, `"path":"/healthz"`, `"status":200`} {
		if !strings.Contains(logged, want) {
			t.Errorf("ログに%qが含まれていない: %q", want, logged)
		}
	}
}
