package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordSubmission_IncrementsCounter は投入カウンタが種別・結果別に増加することを検証する。
func TestRecordSubmission_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSubmission("income", "ok")
	c.RecordSubmission("income", "ok")
	c.RecordSubmission("expense", "insufficient_balance")

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "exptra_submissions_total" {
			found = true
			if len(mf.GetMetric()) != 2 {
				t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
			}
			var total float64
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
			if total != 3 {
				t.Errorf("submissions_total sum = %v, want 3", total)
			}
		}
	}
	if !found {
		t.Error("exptra_submissions_total metric not found")
	}
}

// TestRecordSnapshotRefresh_IncrementsCounter は再取得カウンタが増加することを検証する。
func TestRecordSnapshotRefresh_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSnapshotRefresh()
	c.RecordSnapshotRefreshFailure()

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	checks := map[string]float64{
		"exptra_snapshot_refresh_total":      1,
		"exptra_snapshot_refresh_fail_total": 1,
	}
	for _, mf := range metrics {
		want, ok := checks[mf.GetName()]
		if !ok {
			continue
		}
		val := mf.GetMetric()[0].GetCounter().GetValue()
		if val != want {
			t.Errorf("%s = %v, want %v", mf.GetName(), val, want)
		}
		delete(checks, mf.GetName())
	}
	for name := range checks {
		t.Errorf("%s metric not found", name)
	}
}

// TestRecordHTTPStatus_LabelsByCode はステータスコード別にカウントされることを検証する。
func TestRecordHTTPStatus_LabelsByCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(422)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	for _, mf := range metrics {
		if mf.GetName() != "exptra_http_status_total" {
			continue
		}
		if len(mf.GetMetric()) != 2 {
			t.Fatalf("expected 2 status codes, got %d", len(mf.GetMetric()))
		}
		return
	}
	t.Error("exptra_http_status_total metric not found")
}

// TestRecordSubmitLatency_ObservesHistogram はレイテンシが記録されることを検証する。
func TestRecordSubmitLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSubmitLatency(150 * time.Millisecond)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	for _, mf := range metrics {
		if mf.GetName() != "exptra_submit_latency_seconds" {
			continue
		}
		count := mf.GetMetric()[0].GetHistogram().GetSampleCount()
		if count != 1 {
			t.Errorf("sample count = %d, want 1", count)
		}
		return
	}
	t.Error("exptra_submit_latency_seconds metric not found")
}

// TestRecordActiveLedgers_SetsGauge はゲージに現在値が設定されることを検証する。
func TestRecordActiveLedgers_SetsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordActiveLedgers(5)
	c.RecordActiveLedgers(3)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	for _, mf := range metrics {
		if mf.GetName() != "exptra_active_ledgers" {
			continue
		}
		val := mf.GetMetric()[0].GetGauge().GetValue()
		if val != 3 {
			t.Errorf("active_ledgers = %v, want 3", val)
		}
		return
	}
	t.Error("exptra_active_ledgers metric not found")
}
