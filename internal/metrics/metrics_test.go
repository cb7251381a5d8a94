package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ClementHansel/fieldtalk/internal/model"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() == name {
			var total float64
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
			return total
		}
	}
	t.Fatalf("metric %q not found", name)
	return 0
}

// TestGateDecision_IncrementsCounterWithLabels はゲート判定カウンタがラベル付きで増加することを検証する。
func TestGateDecision_IncrementsCounterWithLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.GateDecision("allowed", "")
	c.GateDecision("blocked", "spam_detected")
	c.GateDecision("blocked", "spam_detected")

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() != "fieldtalk_gate_decisions_total" {
			continue
		}
		found = true
		if len(mf.GetMetric()) != 2 {
			t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
		}
		for _, m := range mf.GetMetric() {
			val := m.GetCounter().GetValue()
			var outcome string
			for _, label := range m.GetLabel() {
				if label.GetName() == "outcome" {
					outcome = label.GetValue()
				}
			}
			switch outcome {
			case "allowed":
				if val != 1 {
					t.Errorf("gate_decisions_total{outcome=allowed} = %v, want 1", val)
				}
			case "blocked":
				if val != 2 {
					t.Errorf("gate_decisions_total{outcome=blocked} = %v, want 2", val)
				}
			default:
				t.Errorf("unexpected outcome label: %s", outcome)
			}
		}
	}
	if !found {
		t.Error("fieldtalk_gate_decisions_total metric not found")
	}
}

// TestActivityWriteFailure_IncrementsCounter は書き込み失敗カウンタが増加することを検証する。
func TestActivityWriteFailure_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ActivityWriteFailure()
	c.ActivityWriteFailure()

	if val := counterValue(t, reg, "fieldtalk_activity_write_failures_total"); val != 2 {
		t.Errorf("activity_write_failures_total = %v, want 2", val)
	}
}

// TestModerationTransition_IncrementsCounter は遷移カウンタが種別・判定別に増加することを検証する。
func TestModerationTransition_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ModerationTransition(model.KindTopic, "approved")
	c.ModerationTransition(model.KindPost, "rejected")
	c.ModerationTransition(model.KindPost, "rejected")

	if val := counterValue(t, reg, "fieldtalk_moderation_transitions_total"); val != 3 {
		t.Errorf("moderation_transitions_total = %v, want 3", val)
	}
}

// TestSubscriberGauge は購読者ゲージが増減することを検証する。
func TestSubscriberGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.SubscriberConnected()
	c.SubscriberConnected()
	c.SubscriberDisconnected()

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "fieldtalk_status_subscribers" {
			found = true
			if val := mf.GetMetric()[0].GetGauge().GetValue(); val != 1 {
				t.Errorf("status_subscribers = %v, want 1", val)
			}
		}
	}
	if !found {
		t.Error("fieldtalk_status_subscribers metric not found")
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.GateDecision("allowed", "")
	c.ModerationTransition(model.KindTopic, "approved")
	c.StatusEventSent()
	c.ActivityWriteFailure()

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	expectedMetrics := []string{
		"fieldtalk_gate_decisions_total",
		"fieldtalk_moderation_transitions_total",
		"fieldtalk_status_events_sent_total",
		"fieldtalk_activity_write_failures_total",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}
