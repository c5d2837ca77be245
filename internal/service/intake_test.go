package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/julo/repayment-service/internal/models"
)

func ptr[T any](v T) *T { return &v }

func TestCreatePaybackTransactionValidation(t *testing.T) {
	f := newFixture(t, nil)
	f.store.AddPaymentMethod(models.PaymentMethod{ID: 502, CustomerID: testCustomerID, Vendor: models.VendorFaspay, VirtualAccount: "8808000000002"})
	f.store.AddPaymentMethod(models.PaymentMethod{ID: 503, CustomerID: 43, Vendor: models.VendorFaspay, VirtualAccount: "8808000000003", IsActive: true})
	f.store.AddAccount(models.Account{ID: 9, CustomerID: 43})

	gateway := models.Gateway(models.VendorFaspay)
	tests := []struct {
		name  string
		req   IntakeRequest
		field string
	}{
		{"zero amount", IntakeRequest{CustomerID: testCustomerID, AccountID: testAccountID, Amount: 0, Service: models.Manual()}, "amount"},
		{"negative amount", IntakeRequest{CustomerID: testCustomerID, AccountID: testAccountID, Amount: -5, Service: models.Manual()}, "amount"},
		{"no service", IntakeRequest{CustomerID: testCustomerID, AccountID: testAccountID, Amount: 1000}, "payback_service"},
		{"unknown account", IntakeRequest{CustomerID: testCustomerID, AccountID: 999, Amount: 1000, Service: models.Manual()}, "account_id"},
		{"foreign account", IntakeRequest{CustomerID: testCustomerID, AccountID: 9, Amount: 1000, Service: models.Manual()}, "account_id"},
		{"gateway without method", IntakeRequest{CustomerID: testCustomerID, AccountID: testAccountID, Amount: 1000, Service: gateway, TransactionID: "FP-1"}, "payment_method_id"},
		{"gateway without receipt", IntakeRequest{CustomerID: testCustomerID, AccountID: testAccountID, Amount: 1000, Service: gateway, PaymentMethodID: ptr(faspayMethodID)}, "transaction_id"},
		{"gateway vendor mismatch", IntakeRequest{CustomerID: testCustomerID, AccountID: testAccountID, Amount: 1000, Service: models.Gateway(models.VendorDoku), PaymentMethodID: ptr(faspayMethodID), TransactionID: "DK-1"}, "payment_method_id"},
		{"inactive method", IntakeRequest{CustomerID: testCustomerID, AccountID: testAccountID, Amount: 1000, Service: gateway, PaymentMethodID: ptr(int64(502)), TransactionID: "FP-2"}, "payment_method_id"},
		{"foreign method", IntakeRequest{CustomerID: testCustomerID, AccountID: testAccountID, Amount: 1000, Service: models.Manual(), PaymentMethodID: ptr(int64(503))}, "payment_method_id"},
		{"unknown method", IntakeRequest{CustomerID: testCustomerID, AccountID: testAccountID, Amount: 1000, Service: models.Manual(), PaymentMethodID: ptr(int64(777))}, "payment_method_id"},
		{"cashback with method", IntakeRequest{CustomerID: testCustomerID, AccountID: testAccountID, Amount: 1000, Service: models.Cashback(), PaymentMethodID: ptr(faspayMethodID)}, "payment_method_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreatePaybackTransaction(context.Background(), tt.req)
			var verr *models.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Field = %q, want %q", verr.Field, tt.field)
			}
		})
	}

	if got, _ := f.svc.ListUnprocessed(context.Background(), 0, 0); len(got) != 0 {
		t.Errorf("rejected intakes stored %d payback transactions", len(got))
	}
}

func TestCreatePaybackTransactionGateway(t *testing.T) {
	f := newFixture(t, nil)
	req := IntakeRequest{
		CustomerID:      testCustomerID,
		AccountID:       testAccountID,
		Amount:          100000,
		Service:         models.Gateway(models.VendorFaspay),
		PaymentMethodID: ptr(faspayMethodID),
		TransactionID:   " FP-20260301-0001 ",
	}

	pt, err := f.svc.CreatePaybackTransaction(context.Background(), req)
	if err != nil {
		t.Fatalf("CreatePaybackTransaction: %v", err)
	}
	if pt.ID == 0 || pt.IsProcessed {
		t.Errorf("payback transaction = %+v, want stored and unprocessed", pt)
	}
	if pt.TransactionID != "FP-20260301-0001" {
		t.Errorf("TransactionID = %q, want trimmed receipt id", pt.TransactionID)
	}
	if !pt.TransactionDate.Equal(testNow) {
		t.Errorf("TransactionDate = %v, want %v", pt.TransactionDate, testNow)
	}

	_, err = f.svc.CreatePaybackTransaction(context.Background(), req)
	var dup *models.DuplicateTransactionError
	if !errors.As(err, &dup) {
		t.Fatalf("second intake error = %v, want DuplicateTransactionError", err)
	}
	if dup.TransactionID != "FP-20260301-0001" {
		t.Errorf("duplicate TransactionID = %q", dup.TransactionID)
	}
}

func TestCreatePaybackTransactionGeneratesReceiptID(t *testing.T) {
	f := newFixture(t, nil)
	a := f.intake(t, 1000, models.Manual())
	b := f.intake(t, 1000, models.Cashback())

	if !strings.HasPrefix(a.TransactionID, "manual-") {
		t.Errorf("manual receipt id = %q, want manual- prefix", a.TransactionID)
	}
	if !strings.HasPrefix(b.TransactionID, "cashback-") {
		t.Errorf("cashback receipt id = %q, want cashback- prefix", b.TransactionID)
	}
	if a.TransactionID == b.TransactionID {
		t.Error("generated receipt ids should differ")
	}
}
