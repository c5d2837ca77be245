package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCount(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRepayment("processed")
	m.ObserveRepayment("processed")
	m.ObserveAllocated("principal", 80000)
	m.ObserveAllocated("principal", 0)
	m.ObserveOverpayment(2500)
	m.SetUnprocessedPaybacks(3, 1700000000)

	if got := testutil.ToFloat64(m.repaymentsTotal.WithLabelValues("processed")); got != 2 {
		t.Errorf("processed_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.allocatedTotal.WithLabelValues("principal")); got != 80000 {
		t.Errorf("allocated principal = %v, want 80000", got)
	}
	if got := testutil.ToFloat64(m.overpaymentTotal); got != 2500 {
		t.Errorf("overpayment = %v, want 2500", got)
	}
	if got := testutil.ToFloat64(m.unprocessedPaybacks); got != 3 {
		t.Errorf("unprocessed = %v, want 3", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRepayment("processed")
	m.ObserveAllocated("interest", 10)
	m.ObserveWalletChange("used_on_payment", "ok")
	m.ObserveNotification("push", "error")
	m.ObserveIntake("manual", "created")
	m.SetUnprocessedPaybacks(1, 1)
}
