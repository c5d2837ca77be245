package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/julo/repayment-service/internal/clock"
	"github.com/julo/repayment-service/internal/config"
	"github.com/julo/repayment-service/internal/metrics"
	"github.com/julo/repayment-service/internal/models"
	"github.com/julo/repayment-service/internal/notification"
	"github.com/julo/repayment-service/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	testCustomerID = int64(42)
	testAccountID  = int64(7)
	firstBucketID  = int64(11)
	secondBucketID = int64(12)
	faspayMethodID = int64(501)
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, ev notification.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) Events() []notification.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification.Event(nil), n.events...)
}

type fixture struct {
	svc      *Service
	store    *repository.MemoryStore
	notifier *recordingNotifier
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:      "test-jwt-secret",
		CallbackSecret: "test-callback-secret",
		Repayment: config.RepaymentConfig{
			GracePeriodDays:    5,
			MaxResolveAttempts: 3,
			Cascade:            true,
			AllocationOrder:    []string{"late_fee", "interest", "principal"},
		},
		Sweep: config.SweepConfig{Limit: 100},
	}
}

// newFixture seeds one account with two monthly buckets. The first bucket is
// overdue and owes 100,000 (late fee 5,000, interest 15,000, principal 80,000)
// across two loans; the second owes 95,000 and carries no late fee.
func newFixture(t *testing.T, tweak func(cfg *config.Config)) *fixture {
	t.Helper()
	cfg := testConfig()
	if tweak != nil {
		tweak(cfg)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	store := repository.NewMemoryStore()
	clk := clock.Fixed{At: testNow}
	store.SetNow(clk.Now)

	store.AddAccount(models.Account{
		ID:          testAccountID,
		CustomerID:  testCustomerID,
		ProductLine: "J1",
		Email:       "budi@example.com",
		FullName:    "Budi Santoso",
	})
	store.AddAccountPayment(
		models.AccountPayment{ID: firstBucketID, AccountID: testAccountID, Installment: installment(
			time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), 80000, 15000, 5000, models.StatusOverdue)},
		models.Payment{ID: 101, LoanID: 1, PaymentNumber: 3, Installment: installment(
			time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), 50000, 10000, 3000, models.StatusOverdue)},
		models.Payment{ID: 102, LoanID: 2, PaymentNumber: 1, Installment: installment(
			time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), 30000, 5000, 2000, models.StatusOverdue)},
	)
	store.AddAccountPayment(
		models.AccountPayment{ID: secondBucketID, AccountID: testAccountID, Installment: installment(
			time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), 80000, 15000, 0, models.StatusNotDue)},
		models.Payment{ID: 201, LoanID: 1, PaymentNumber: 4, Installment: installment(
			time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), 50000, 10000, 0, models.StatusNotDue)},
		models.Payment{ID: 202, LoanID: 2, PaymentNumber: 2, Installment: installment(
			time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), 30000, 5000, 0, models.StatusNotDue)},
	)
	store.AddPaymentMethod(models.PaymentMethod{
		ID:             faspayMethodID,
		CustomerID:     testCustomerID,
		Vendor:         models.VendorFaspay,
		BankCode:       "014",
		VirtualAccount: "8808001234567",
		IsActive:       true,
	})

	notifier := &recordingNotifier{}
	svc := NewService(store, log, cfg, clk, metrics.New(prometheus.NewRegistry()), notifier)
	return &fixture{svc: svc, store: store, notifier: notifier}
}

func installment(due time.Time, principal, interest, lateFee int64, status int) models.Installment {
	return models.Installment{
		DueDate:         due,
		DueAmount:       principal + interest + lateFee,
		PrincipalAmount: principal,
		InterestAmount:  interest,
		LateFeeAmount:   lateFee,
		Status:          status,
	}
}

func (f *fixture) intake(t *testing.T, amount int64, svc models.PaybackService) *models.PaybackTransaction {
	t.Helper()
	pt, err := f.svc.CreatePaybackTransaction(context.Background(), IntakeRequest{
		CustomerID: testCustomerID,
		AccountID:  testAccountID,
		Amount:     amount,
		Service:    svc,
	})
	if err != nil {
		t.Fatalf("CreatePaybackTransaction: %v", err)
	}
	return pt
}

func (f *fixture) bucket(t *testing.T, id int64) models.AccountPayment {
	t.Helper()
	ap, ok := f.store.AccountPayment(id)
	if !ok {
		t.Fatalf("account payment %d not found", id)
	}
	return ap
}

func (f *fixture) wallet(t *testing.T) *models.WalletBalance {
	t.Helper()
	w, err := f.svc.GetWallet(context.Background(), testCustomerID)
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	return w
}

func TestOldestUnpaid(t *testing.T) {
	f := newFixture(t, nil)

	ap, err := f.svc.OldestUnpaid(context.Background(), testAccountID)
	if err != nil {
		t.Fatalf("OldestUnpaid: %v", err)
	}
	if ap == nil || ap.ID != firstBucketID {
		t.Fatalf("OldestUnpaid = %+v, want bucket %d", ap, firstBucketID)
	}

	pt := f.intake(t, 100000, models.Manual())
	if _, err := f.svc.ProcessRepaymentTrx(context.Background(), pt.ID, "", false); err != nil {
		t.Fatalf("ProcessRepaymentTrx: %v", err)
	}
	ap, err = f.svc.OldestUnpaid(context.Background(), testAccountID)
	if err != nil {
		t.Fatalf("OldestUnpaid: %v", err)
	}
	if ap == nil || ap.ID != secondBucketID {
		t.Fatalf("OldestUnpaid after paying first bucket = %+v, want bucket %d", ap, secondBucketID)
	}
}

func TestOldestUnpaidUnknownAccount(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.svc.OldestUnpaid(context.Background(), 999); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("OldestUnpaid(999) error = %v, want not found", err)
	}
}

func TestListUnprocessed(t *testing.T) {
	f := newFixture(t, nil)
	pt := f.intake(t, 10000, models.Manual())

	got, err := f.svc.ListUnprocessed(context.Background(), -time.Minute, 0)
	if err != nil {
		t.Fatalf("ListUnprocessed: %v", err)
	}
	if len(got) != 1 || got[0].ID != pt.ID {
		t.Fatalf("ListUnprocessed = %+v, want payback %d", got, pt.ID)
	}

	got, err = f.svc.ListUnprocessed(context.Background(), time.Hour, 0)
	if err != nil {
		t.Fatalf("ListUnprocessed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("ListUnprocessed(1h) returned %d rows, want none younger than the cutoff", len(got))
	}
}

func TestResultLabel(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "processed"},
		{&models.ValidationError{Field: "amount", Reason: "must be positive"}, "validation_error"},
		{&models.DuplicateTransactionError{TransactionID: "x"}, "duplicate"},
		{&models.AllocationError{AccountID: 1, Reason: "no unpaid account payment"}, "allocation_error"},
		{&models.InsufficientCashbackError{CustomerID: 1}, "insufficient_cashback"},
		{models.ErrNotFound, "not_found"},
		{context.Canceled, "error"},
	}
	for _, tt := range tests {
		if got := resultLabel(tt.err); got != tt.want {
			t.Errorf("resultLabel(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
