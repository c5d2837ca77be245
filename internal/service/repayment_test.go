package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/julo/repayment-service/internal/config"
	"github.com/julo/repayment-service/internal/models"
)

func TestProcessRepaymentPaysOffBucket(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	pt := f.intake(t, 100000, models.Manual())

	res, err := f.svc.ProcessRepaymentTrx(ctx, pt.ID, "paid at branch", false)
	if err != nil {
		t.Fatalf("ProcessRepaymentTrx: %v", err)
	}

	at := res.AccountTransaction
	if at.TowardsLateFee != 5000 || at.TowardsInterest != 15000 || at.TowardsPrincipal != 80000 {
		t.Errorf("towards late fee/interest/principal = %d/%d/%d, want 5000/15000/80000",
			at.TowardsLateFee, at.TowardsInterest, at.TowardsPrincipal)
	}
	if at.Note != "paid at branch" {
		t.Errorf("Note = %q", at.Note)
	}
	if res.Overpayment != 0 {
		t.Errorf("Overpayment = %d, want 0", res.Overpayment)
	}
	if len(res.PaidOffAccountPaymentIDs) != 1 || res.PaidOffAccountPaymentIDs[0] != firstBucketID {
		t.Errorf("PaidOffAccountPaymentIDs = %v, want [%d]", res.PaidOffAccountPaymentIDs, firstBucketID)
	}
	if len(res.WalletHistory) != 0 {
		t.Errorf("exact payment should not touch the wallet, got %d history rows", len(res.WalletHistory))
	}

	ap := f.bucket(t, firstBucketID)
	if ap.DueAmount != 0 || ap.PaidAmount != 100000 {
		t.Errorf("bucket due/paid = %d/%d, want 0/100000", ap.DueAmount, ap.PaidAmount)
	}
	if ap.Status != models.StatusPaidOnTime {
		t.Errorf("bucket status = %d, want %d", ap.Status, models.StatusPaidOnTime)
	}
	if ap.PaidDate == nil || !ap.PaidDate.Equal(testNow) {
		t.Errorf("bucket paid date = %v, want %v", ap.PaidDate, testNow)
	}
	for _, p := range f.store.Payments(firstBucketID) {
		if p.DueAmount != 0 || p.Status != models.StatusPaidOnTime {
			t.Errorf("payment %d due/status = %d/%d, want 0/%d", p.ID, p.DueAmount, p.Status, models.StatusPaidOnTime)
		}
	}
	if next := f.bucket(t, secondBucketID); next.DueAmount != 95000 {
		t.Errorf("second bucket due = %d, want untouched 95000", next.DueAmount)
	}

	stored, err := f.svc.GetPaybackTransaction(ctx, pt.ID)
	if err != nil {
		t.Fatalf("GetPaybackTransaction: %v", err)
	}
	if !stored.IsProcessed {
		t.Error("payback transaction should be marked processed")
	}

	ledger := f.store.AccountTransactions(testAccountID)
	if len(ledger) != 1 {
		t.Fatalf("got %d account transactions, want 1", len(ledger))
	}
	if ledger[0].PaybackTransactionID != pt.ID || len(ledger[0].Allocations) != 2 {
		t.Errorf("account transaction = %+v, want 2 allocations for payback %d", ledger[0], pt.ID)
	}

	events := f.notifier.Events()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Applied != 100000 || ev.Service != "manual" || ev.Email != "budi@example.com" || ev.AccountTransactionID != at.ID {
		t.Errorf("event = %+v", ev)
	}
}

func TestProcessRepaymentComponentOrderAcrossPayments(t *testing.T) {
	f := newFixture(t, nil)
	pt := f.intake(t, 6000, models.Manual())

	res, err := f.svc.ProcessRepaymentTrx(context.Background(), pt.ID, "", false)
	if err != nil {
		t.Fatalf("ProcessRepaymentTrx: %v", err)
	}

	// every late fee is cleared before any interest is paid
	allocs := res.AccountTransaction.Allocations
	if len(allocs) != 2 {
		t.Fatalf("got %d allocations, want 2", len(allocs))
	}
	if allocs[0].PaymentID != 101 || allocs[0].TowardsLateFee != 3000 || allocs[0].TowardsInterest != 1000 {
		t.Errorf("first allocation = %+v, want payment 101 late fee 3000 interest 1000", allocs[0])
	}
	if allocs[1].PaymentID != 102 || allocs[1].TowardsLateFee != 2000 || allocs[1].TowardsInterest != 0 {
		t.Errorf("second allocation = %+v, want payment 102 late fee 2000", allocs[1])
	}

	ap := f.bucket(t, firstBucketID)
	if ap.DueAmount != 94000 || ap.Status != models.StatusOverdue || ap.PaidDate != nil {
		t.Errorf("bucket due/status/paid date = %d/%d/%v, want 94000/%d/nil",
			ap.DueAmount, ap.Status, ap.PaidDate, models.StatusOverdue)
	}
	if len(res.PaidOffAccountPaymentIDs) != 0 {
		t.Errorf("partial payment paid off %v", res.PaidOffAccountPaymentIDs)
	}
}

func TestProcessRepaymentProductAllocationOrder(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Repayment.ProductOrders = map[string][]string{
			"J1": {"principal", "interest", "late_fee"},
		}
	})
	pt := f.intake(t, 10000, models.Manual())

	res, err := f.svc.ProcessRepaymentTrx(context.Background(), pt.ID, "", false)
	if err != nil {
		t.Fatalf("ProcessRepaymentTrx: %v", err)
	}
	at := res.AccountTransaction
	if at.TowardsPrincipal != 10000 || at.TowardsLateFee != 0 || at.TowardsInterest != 0 {
		t.Errorf("towards late fee/interest/principal = %d/%d/%d, want 0/0/10000",
			at.TowardsLateFee, at.TowardsInterest, at.TowardsPrincipal)
	}
}

func TestProcessRepaymentCascades(t *testing.T) {
	f := newFixture(t, nil)
	pt := f.intake(t, 150000, models.Manual())

	res, err := f.svc.ProcessRepaymentTrx(context.Background(), pt.ID, "", false)
	if err != nil {
		t.Fatalf("ProcessRepaymentTrx: %v", err)
	}

	at := res.AccountTransaction
	if at.TowardsLateFee != 5000 || at.TowardsInterest != 30000 || at.TowardsPrincipal != 115000 {
		t.Errorf("towards late fee/interest/principal = %d/%d/%d, want 5000/30000/115000",
			at.TowardsLateFee, at.TowardsInterest, at.TowardsPrincipal)
	}
	if res.Overpayment != 0 {
		t.Errorf("Overpayment = %d, want 0", res.Overpayment)
	}

	next := f.bucket(t, secondBucketID)
	if next.DueAmount != 45000 || next.PaidInterest != 15000 || next.PaidPrincipal != 35000 {
		t.Errorf("second bucket due/interest/principal = %d/%d/%d, want 45000/15000/35000",
			next.DueAmount, next.PaidInterest, next.PaidPrincipal)
	}
	if next.Status != models.StatusNotDue {
		t.Errorf("second bucket status = %d, want %d", next.Status, models.StatusNotDue)
	}
	for _, p := range f.store.Payments(secondBucketID) {
		switch p.ID {
		case 201:
			if p.DueAmount != 15000 {
				t.Errorf("payment 201 due = %d, want 15000", p.DueAmount)
			}
		case 202:
			if p.DueAmount != 30000 {
				t.Errorf("payment 202 due = %d, want 30000", p.DueAmount)
			}
		}
	}
}

func TestProcessRepaymentWithoutCascadeCreditsOverpayment(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.Repayment.Cascade = false })
	pt := f.intake(t, 150000, models.Manual())

	res, err := f.svc.ProcessRepaymentTrx(context.Background(), pt.ID, "", false)
	if err != nil {
		t.Fatalf("ProcessRepaymentTrx: %v", err)
	}
	if res.Overpayment != 50000 {
		t.Errorf("Overpayment = %d, want 50000", res.Overpayment)
	}
	if next := f.bucket(t, secondBucketID); next.DueAmount != 95000 {
		t.Errorf("second bucket due = %d, want 95000 without cascade", next.DueAmount)
	}

	w := f.wallet(t)
	if w.Available != 50000 || w.Accruing != 50000 {
		t.Errorf("wallet available/accruing = %d/%d, want 50000/50000", w.Available, w.Accruing)
	}
	history := f.store.WalletHistory(testCustomerID)
	if len(history) != 1 {
		t.Fatalf("got %d wallet history rows, want 1", len(history))
	}
	h := history[0]
	if h.ChangeReason != models.ReasonCashbackOverPaid || h.AvailableOld != 0 || h.AvailableNew != 50000 {
		t.Errorf("history = %+v", h)
	}
	if h.PaybackTransactionID == nil || *h.PaybackTransactionID != pt.ID {
		t.Errorf("history payback transaction = %v, want %d", h.PaybackTransactionID, pt.ID)
	}
	if h.AccountPaymentID == nil || *h.AccountPaymentID != firstBucketID {
		t.Errorf("history account payment = %v, want %d", h.AccountPaymentID, firstBucketID)
	}
}

func TestProcessRepaymentOverpaysEverything(t *testing.T) {
	f := newFixture(t, nil)
	pt := f.intake(t, 250000, models.Manual())

	res, err := f.svc.ProcessRepaymentTrx(context.Background(), pt.ID, "", false)
	if err != nil {
		t.Fatalf("ProcessRepaymentTrx: %v", err)
	}
	if res.Overpayment != 55000 {
		t.Errorf("Overpayment = %d, want 55000", res.Overpayment)
	}
	if len(res.PaidOffAccountPaymentIDs) != 2 {
		t.Errorf("PaidOffAccountPaymentIDs = %v, want both buckets", res.PaidOffAccountPaymentIDs)
	}
	// paid a month ahead of its due date
	if next := f.bucket(t, secondBucketID); next.Status != models.StatusPaidOnTime {
		t.Errorf("second bucket status = %d, want %d", next.Status, models.StatusPaidOnTime)
	}
	if w := f.wallet(t); w.Available != 55000 {
		t.Errorf("wallet available = %d, want 55000", w.Available)
	}
	if ev := f.notifier.Events(); len(ev) != 1 || ev[0].Overpayment != 55000 {
		t.Errorf("events = %+v, want one with overpayment 55000", ev)
	}
}

func TestProcessRepaymentLateStatuses(t *testing.T) {
	tests := []struct {
		name     string
		paidDate time.Time
		want     int
	}{
		{"within grace", time.Date(2026, 3, 4, 23, 0, 0, 0, time.UTC), models.StatusPaidWithinGrace},
		{"last grace day", time.Date(2026, 3, 6, 8, 0, 0, 0, time.UTC), models.StatusPaidWithinGrace},
		{"after grace", time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC), models.StatusPaidLate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			pt, err := f.svc.CreatePaybackTransaction(context.Background(), IntakeRequest{
				CustomerID:      testCustomerID,
				AccountID:       testAccountID,
				Amount:          100000,
				Service:         models.Manual(),
				TransactionDate: tt.paidDate,
			})
			if err != nil {
				t.Fatalf("CreatePaybackTransaction: %v", err)
			}
			if _, err := f.svc.ProcessRepaymentTrx(context.Background(), pt.ID, "", false); err != nil {
				t.Fatalf("ProcessRepaymentTrx: %v", err)
			}
			ap := f.bucket(t, firstBucketID)
			if ap.Status != tt.want {
				t.Errorf("status = %d, want %d", ap.Status, tt.want)
			}
			if ap.PaidDate == nil || !ap.PaidDate.Equal(tt.paidDate) {
				t.Errorf("paid date = %v, want %v", ap.PaidDate, tt.paidDate)
			}
		})
	}
}

func TestProcessRepaymentInsufficientCashback(t *testing.T) {
	f := newFixture(t, nil)
	f.store.SetWallet(models.WalletBalance{CustomerID: testCustomerID, Accruing: 50000, Available: 50000})
	pt := f.intake(t, 60000, models.Cashback())

	res, err := f.svc.ProcessRepaymentTrx(context.Background(), pt.ID, "", true)
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
	var insufficient *models.InsufficientCashbackError
	if !errors.As(err, &insufficient) {
		t.Fatalf("error = %v, want InsufficientCashbackError", err)
	}
	if insufficient.Available != 50000 || insufficient.Requested != 60000 {
		t.Errorf("error = %+v, want available 50000 requested 60000", insufficient)
	}

	if ap := f.bucket(t, firstBucketID); ap.DueAmount != 100000 || ap.PaidAmount != 0 {
		t.Errorf("bucket due/paid = %d/%d, want untouched 100000/0", ap.DueAmount, ap.PaidAmount)
	}
	if w := f.wallet(t); w.Available != 50000 {
		t.Errorf("wallet available = %d, want 50000", w.Available)
	}
	if h := f.store.WalletHistory(testCustomerID); len(h) != 0 {
		t.Errorf("got %d wallet history rows, want none", len(h))
	}
	if n := len(f.store.AccountTransactions(testAccountID)); n != 0 {
		t.Errorf("got %d account transactions, want none", n)
	}
	stored, _ := f.svc.GetPaybackTransaction(context.Background(), pt.ID)
	if stored.IsProcessed {
		t.Error("failed payback transaction should stay unprocessed")
	}
	if ev := f.notifier.Events(); len(ev) != 0 {
		t.Errorf("got %d events for a failed repayment", len(ev))
	}
}

func TestProcessRepaymentCashbackDebitsAppliedAmount(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.Repayment.Cascade = false })
	f.store.SetWallet(models.WalletBalance{CustomerID: testCustomerID, Accruing: 150000, Available: 150000})
	pt := f.intake(t, 150000, models.Cashback())

	res, err := f.svc.ProcessRepaymentTrx(context.Background(), pt.ID, "", true)
	if err != nil {
		t.Fatalf("ProcessRepaymentTrx: %v", err)
	}
	if res.AccountTransaction.Applied() != 100000 || res.Overpayment != 50000 {
		t.Errorf("applied/overpayment = %d/%d, want 100000/50000", res.AccountTransaction.Applied(), res.Overpayment)
	}

	// only what reached an installment leaves the wallet
	w := f.wallet(t)
	if w.Available != 50000 || w.Accruing != 50000 {
		t.Errorf("wallet available/accruing = %d/%d, want 50000/50000", w.Available, w.Accruing)
	}
	history := f.store.WalletHistory(testCustomerID)
	if len(history) != 1 || history[0].ChangeReason != models.ReasonUsedOnPayment {
		t.Fatalf("history = %+v, want one used_on_payment row", history)
	}
	if history[0].AvailableOld != 150000 || history[0].AvailableNew != 50000 {
		t.Errorf("history available %d -> %d, want 150000 -> 50000", history[0].AvailableOld, history[0].AvailableNew)
	}
	if ev := f.notifier.Events(); len(ev) != 1 || !ev[0].UsingCashback || ev[0].Service != "cashback" {
		t.Errorf("events = %+v, want one cashback event", ev)
	}
}

func TestProcessRepaymentIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	pt := f.intake(t, 40000, models.Manual())

	if _, err := f.svc.ProcessRepaymentTrx(context.Background(), pt.ID, "", false); err != nil {
		t.Fatalf("first ProcessRepaymentTrx: %v", err)
	}
	res, err := f.svc.ProcessRepaymentTrx(context.Background(), pt.ID, "", false)
	if err != nil || res != nil {
		t.Fatalf("second ProcessRepaymentTrx = %+v, %v, want nil, nil", res, err)
	}

	if ap := f.bucket(t, firstBucketID); ap.DueAmount != 60000 {
		t.Errorf("bucket due = %d, want 60000 after a single allocation", ap.DueAmount)
	}
	if n := len(f.store.AccountTransactions(testAccountID)); n != 1 {
		t.Errorf("got %d account transactions, want 1", n)
	}
	if n := len(f.notifier.Events()); n != 1 {
		t.Errorf("got %d events, want 1", n)
	}
}

func TestProcessRepaymentNothingToPay(t *testing.T) {
	f := newFixture(t, nil)
	first := f.intake(t, 195000, models.Manual())
	if _, err := f.svc.ProcessRepaymentTrx(context.Background(), first.ID, "", false); err != nil {
		t.Fatalf("ProcessRepaymentTrx: %v", err)
	}

	pt := f.intake(t, 10000, models.Manual())
	_, err := f.svc.ProcessRepaymentTrx(context.Background(), pt.ID, "", false)
	if !errors.Is(err, models.ErrAllocation) {
		t.Fatalf("error = %v, want allocation error", err)
	}
	stored, _ := f.svc.GetPaybackTransaction(context.Background(), pt.ID)
	if stored.IsProcessed {
		t.Error("payback transaction with nothing to pay should stay unprocessed")
	}
	if w := f.wallet(t); w.Available != 0 {
		t.Errorf("wallet available = %d, want 0", w.Available)
	}
}

func TestProcessRepaymentServiceMismatch(t *testing.T) {
	f := newFixture(t, nil)
	f.store.SetWallet(models.WalletBalance{CustomerID: testCustomerID, Accruing: 100000, Available: 100000})

	manual := f.intake(t, 10000, models.Manual())
	if _, err := f.svc.ProcessRepaymentTrx(context.Background(), manual.ID, "", true); !errors.Is(err, models.ErrValidation) {
		t.Errorf("manual payback with usingCashback: error = %v, want validation error", err)
	}

	cashback := f.intake(t, 10000, models.Cashback())
	if _, err := f.svc.ProcessRepaymentTrx(context.Background(), cashback.ID, "", false); !errors.Is(err, models.ErrValidation) {
		t.Errorf("cashback payback without usingCashback: error = %v, want validation error", err)
	}
	if w := f.wallet(t); w.Available != 100000 {
		t.Errorf("wallet available = %d, want 100000", w.Available)
	}
}

func TestProcessRepaymentUnknownPayback(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.svc.ProcessRepaymentTrx(context.Background(), 9999, "", false); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("error = %v, want not found", err)
	}
}

func TestProcessRepaymentRejectsInconsistentBucket(t *testing.T) {
	f := newFixture(t, nil)
	const accountID, bucketID = int64(8), int64(31)
	f.store.AddAccount(models.Account{ID: accountID, CustomerID: testCustomerID, ProductLine: "J1"})
	// marked unpaid but owes nothing, so every resolve lands on it again
	f.store.AddAccountPayment(
		models.AccountPayment{ID: bucketID, AccountID: accountID, Installment: models.Installment{
			DueDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			Status:  models.StatusOverdue,
		}},
		models.Payment{ID: 301, LoanID: 3, PaymentNumber: 1},
	)

	pt, err := f.svc.CreatePaybackTransaction(context.Background(), IntakeRequest{
		CustomerID: testCustomerID,
		AccountID:  accountID,
		Amount:     1000,
		Service:    models.Manual(),
	})
	if err != nil {
		t.Fatalf("CreatePaybackTransaction: %v", err)
	}

	_, err = f.svc.ProcessRepaymentTrx(context.Background(), pt.ID, "", false)
	var allocErr *models.AllocationError
	if !errors.As(err, &allocErr) {
		t.Fatalf("error = %v, want AllocationError", err)
	}
	if allocErr.AccountPaymentID != bucketID {
		t.Errorf("AccountPaymentID = %d, want %d", allocErr.AccountPaymentID, bucketID)
	}
}

func TestProcessRepaymentConcurrent(t *testing.T) {
	f := newFixture(t, nil)
	const n = 10
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = f.intake(t, 10000, models.Manual()).ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, n*2)
	for _, id := range ids {
		// each payback is driven twice; only one run may allocate it
		for range 2 {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				if _, err := f.svc.ProcessRepaymentTrx(context.Background(), id, "", false); err != nil {
					errs <- err
				}
			}(id)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("ProcessRepaymentTrx: %v", err)
	}

	ap := f.bucket(t, firstBucketID)
	if ap.DueAmount != 0 || ap.PaidAmount != 100000 || !ap.IsPaid() {
		t.Errorf("bucket due/paid/status = %d/%d/%d, want fully paid", ap.DueAmount, ap.PaidAmount, ap.Status)
	}
	if next := f.bucket(t, secondBucketID); next.DueAmount != 95000 {
		t.Errorf("second bucket due = %d, want 95000", next.DueAmount)
	}
	ledger := f.store.AccountTransactions(testAccountID)
	if len(ledger) != n {
		t.Fatalf("got %d account transactions, want %d", len(ledger), n)
	}
	var total int64
	for _, at := range ledger {
		total += at.Applied()
	}
	if total != 100000 {
		t.Errorf("total applied = %d, want 100000", total)
	}
	if got := len(f.notifier.Events()); got != n {
		t.Errorf("got %d events, want %d", got, n)
	}
}
