package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tracker-backend/internal/domain"
)

func counterValue(t *testing.T, p *Prometheus, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := p.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			if m.GetGauge() != nil {
				return m.GetGauge().GetValue()
			}
		}
	}
	return 0
}

func TestPrometheusRecorder(t *testing.T) {
	p := NewPrometheus()

	p.ObserveEvaluation("1h", "ok")
	p.ObserveEvaluation("1h", "ok")
	p.ObserveEvaluation("1h", "price_unavailable")
	p.ObserveTransition(domain.StatusStopLoss)
	p.ObservePriceFailure("BTCUSDT")
	p.ObservePass("1h", 250*time.Millisecond)
	p.SetOpenOrders(7)

	if v := counterValue(t, p, "tracker_evaluations_total", map[string]string{"interval": "1h", "outcome": "ok"}); v != 2 {
		t.Fatalf("evaluations ok: %v", v)
	}
	if v := counterValue(t, p, "tracker_transitions_total", map[string]string{"status": "STOP_LOSS"}); v != 1 {
		t.Fatalf("transitions: %v", v)
	}
	if v := counterValue(t, p, "tracker_open_orders", nil); v != 7 {
		t.Fatalf("open orders: %v", v)
	}
}

func TestPrometheusHandler(t *testing.T) {
	p := NewPrometheus()
	p.ObservePass("30m", time.Second)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "tracker_pass_duration_seconds_count") {
		t.Fatalf("histogram missing from exposition:\n%s", body)
	}
}
