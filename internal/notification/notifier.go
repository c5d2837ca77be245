package notification

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/julo/repayment-service/internal/config"
	"github.com/julo/repayment-service/internal/metrics"
	"github.com/sirupsen/logrus"
)

// EventRepaymentProcessed is emitted once per committed repayment
const EventRepaymentProcessed = "repayment_processed"

// Event describes a committed repayment
type Event struct {
	ID                       string    `json:"event_id"`
	Type                     string    `json:"type"`
	CustomerID               int64     `json:"customer_id"`
	AccountID                int64     `json:"account_id"`
	Email                    string    `json:"-"`
	FullName                 string    `json:"-"`
	PaybackTransactionID     int64     `json:"payback_transaction_id"`
	AccountTransactionID     int64     `json:"account_transaction_id"`
	Service                  string    `json:"payback_service"`
	Amount                   int64     `json:"amount"`
	Applied                  int64     `json:"applied"`
	Overpayment              int64     `json:"overpayment"`
	UsingCashback            bool      `json:"using_cashback"`
	PaidOffAccountPaymentIDs []int64   `json:"paid_off_account_payment_ids"`
	OccurredAt               time.Time `json:"occurred_at"`
}

// NewEvent stamps a fresh event id
func NewEvent(eventType string, occurredAt time.Time) Event {
	return Event{ID: uuid.NewString(), Type: eventType, OccurredAt: occurredAt}
}

// Notifier receives events after the ledger transaction has committed.
// Notify must not block the caller on delivery.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Sink delivers an event to one downstream system
type Sink interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// Dispatcher fans events out to its sinks in the background. Delivery is best
// effort: failures are logged and counted, never retried.
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	log     *logrus.Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

// NewDispatcher initializes a dispatcher over sinks
func NewDispatcher(log *logrus.Logger, m *metrics.Metrics, timeout time.Duration, sinks ...Sink) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{sinks: sinks, timeout: timeout, log: log, metrics: m}
}

// Notify delivers ev to every sink without waiting. The caller's context only
// contributes its values; delivery outlives request cancellation.
func (d *Dispatcher) Notify(ctx context.Context, ev Event) {
	base := context.WithoutCancel(ctx)
	for _, sink := range d.sinks {
		d.wg.Add(1)
		go func(sink Sink) {
			defer d.wg.Done()
			sendCtx, cancel := context.WithTimeout(base, d.timeout)
			defer cancel()

			entry := d.log.WithFields(logrus.Fields{
				"sink":                   sink.Name(),
				"event_id":               ev.ID,
				"payback_transaction_id": ev.PaybackTransactionID,
			})
			if err := sink.Send(sendCtx, ev); err != nil {
				d.metrics.ObserveNotification(sink.Name(), "error")
				entry.WithError(err).Warn("Failed to deliver repayment notification")
				return
			}
			d.metrics.ObserveNotification(sink.Name(), "ok")
			entry.Debug("Repayment notification delivered")
		}(sink)
	}
}

// Wait blocks until in-flight deliveries finish
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// SinksFromConfig enables every sink that has an endpoint configured
func SinksFromConfig(cfg config.NotifyConfig) []Sink {
	client := &http.Client{Timeout: cfg.Timeout.Duration}
	var out []Sink
	if cfg.PushURL != "" {
		out = append(out, NewPushSink(cfg.PushURL, client))
	}
	if cfg.MoengageURL != "" {
		out = append(out, NewMoengageSink(cfg.MoengageURL, cfg.MoengageAppID, cfg.MoengageAPIKey, client))
	}
	if cfg.SMTPHost != "" {
		out = append(out, NewEmailSink(cfg))
	}
	return out
}
