package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the repayment service collectors
type Metrics struct {
	repaymentsTotal     *prometheus.CounterVec
	allocatedTotal      *prometheus.CounterVec
	overpaymentTotal    prometheus.Counter
	walletChangesTotal  *prometheus.CounterVec
	notificationsTotal  *prometheus.CounterVec
	intakeTotal         *prometheus.CounterVec
	unprocessedPaybacks prometheus.Gauge
	sweepLastRunUnix    prometheus.Gauge
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		repaymentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "repayment",
				Subsystem: "allocation",
				Name:      "processed_total",
				Help:      "Repayment processing attempts partitioned by result.",
			},
			[]string{"result"},
		),
		allocatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "repayment",
				Subsystem: "allocation",
				Name:      "allocated_amount_total",
				Help:      "Rupiah allocated to installments partitioned by component.",
			},
			[]string{"component"},
		),
		overpaymentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "repayment",
				Subsystem: "allocation",
				Name:      "overpayment_amount_total",
				Help:      "Rupiah received beyond the outstanding installments.",
			},
		),
		walletChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "repayment",
				Subsystem: "wallet",
				Name:      "changes_total",
				Help:      "Cashback wallet changes partitioned by reason and result.",
			},
			[]string{"reason", "result"},
		),
		notificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "repayment",
				Subsystem: "notification",
				Name:      "sent_total",
				Help:      "Post-commit notifications partitioned by sink and result.",
			},
			[]string{"sink", "result"},
		),
		intakeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "repayment",
				Subsystem: "intake",
				Name:      "payback_transactions_total",
				Help:      "Payback intake attempts partitioned by service and result.",
			},
			[]string{"service", "result"},
		),
		unprocessedPaybacks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "repayment",
				Subsystem: "sweep",
				Name:      "unprocessed_paybacks",
				Help:      "Payback transactions left unprocessed past the staleness threshold.",
			},
		),
		sweepLastRunUnix: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "repayment",
				Subsystem: "sweep",
				Name:      "last_run_unix",
				Help:      "Unix time of the most recent unprocessed payback sweep.",
			},
		),
	}
	reg.MustRegister(
		m.repaymentsTotal,
		m.allocatedTotal,
		m.overpaymentTotal,
		m.walletChangesTotal,
		m.notificationsTotal,
		m.intakeTotal,
		m.unprocessedPaybacks,
		m.sweepLastRunUnix,
	)
	return m
}

// nil-safe so callers can run without metrics

func (m *Metrics) ObserveRepayment(result string) {
	if m == nil {
		return
	}
	m.repaymentsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveAllocated(component string, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.allocatedTotal.WithLabelValues(component).Add(float64(amount))
}

func (m *Metrics) ObserveOverpayment(amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.overpaymentTotal.Add(float64(amount))
}

func (m *Metrics) ObserveWalletChange(reason, result string) {
	if m == nil {
		return
	}
	m.walletChangesTotal.WithLabelValues(reason, result).Inc()
}

func (m *Metrics) ObserveNotification(sink, result string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(sink, result).Inc()
}

func (m *Metrics) ObserveIntake(service, result string) {
	if m == nil {
		return
	}
	m.intakeTotal.WithLabelValues(service, result).Inc()
}

func (m *Metrics) SetUnprocessedPaybacks(n int, runUnix int64) {
	if m == nil {
		return
	}
	m.unprocessedPaybacks.Set(float64(n))
	m.sweepLastRunUnix.Set(float64(runUnix))
}
