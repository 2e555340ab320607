package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metric:
		for _, mt := range f.GetMetric() {
			for _, lp := range mt.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metric
				}
			}
			if c := mt.GetCounter(); c != nil {
				return c.GetValue()
			}
			return mt.GetGauge().GetValue()
		}
	}
	return 0
}

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.UpstreamCall("fixtures", "success")
	m.UpstreamCall("fixtures", "success")
	m.GateDecision("")
	m.GateDecision("throttled")
	m.Read("cache", "fresh")
	m.Quota(3, 25, true)

	tests := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"fixturegate_upstream_calls_total", map[string]string{"kind": "fixtures", "class": "success"}, 2},
		{"fixturegate_gate_decisions_total", map[string]string{"reason": "allowed"}, 1},
		{"fixturegate_gate_decisions_total", map[string]string{"reason": "throttled"}, 1},
		{"fixturegate_snapshot_reads_total", map[string]string{"source": "cache", "state": "fresh"}, 1},
		{"fixturegate_quota_calls_made", nil, 3},
		{"fixturegate_quota_locked", nil, 1},
	}
	for _, tt := range tests {
		if got := counterValue(t, m, tt.name, tt.labels); got != tt.want {
			t.Errorf("%s%v = %v, want %v", tt.name, tt.labels, got, tt.want)
		}
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.UpstreamCall("fixtures", "success")
	m.GateDecision("locked")
	m.Read("live", "missing")
	m.WarmKey(true)
	m.Quota(1, 2, false)
}

func TestHandler(t *testing.T) {
	m := New()
	m.WarmKey(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `fixturegate_warm_keys_total{refreshed="true"} 1`) {
		t.Errorf("metrics output missing warm counter:\n%s", body)
	}
}
