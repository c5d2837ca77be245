package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/julo/repayment-service/internal/integrations/gateway"
	"github.com/julo/repayment-service/internal/models"
	"github.com/sirupsen/logrus"
)

// CallbackOutcome reports what a gateway callback did
type CallbackOutcome struct {
	PaybackTransaction *models.PaybackTransaction
	Result             *RepaymentResult
	// Duplicate is set when the receipt was already recorded by an earlier callback
	Duplicate bool
	// Ignored is set for notifications about unpaid or failed payments
	Ignored bool
	// ProcessErr holds an allocation failure after the payback was recorded.
	// The money is kept on the unprocessed payback for an operator to re-drive.
	ProcessErr error
}

// HandleGatewayCallback records a gateway payment against the virtual
// account's owner and processes it
func (s *Service) HandleGatewayCallback(ctx context.Context, cb *gateway.Callback) (*CallbackOutcome, error) {
	log := s.log.WithFields(logrus.Fields{
		"vendor":         cb.Vendor,
		"transaction_id": cb.TransactionID,
	})
	if !cb.Paid {
		log.Info("Ignoring gateway callback for an unpaid transaction")
		return &CallbackOutcome{Ignored: true}, nil
	}

	pm, err := s.store.FindPaymentMethodByVirtualAccount(ctx, cb.Vendor, cb.VirtualAccount)
	if err != nil {
		return nil, err
	}
	accountID, err := s.accountForCustomer(ctx, pm.CustomerID, cb)
	if err != nil {
		return nil, err
	}

	pmID := pm.ID
	pt, err := s.CreatePaybackTransaction(ctx, IntakeRequest{
		CustomerID:      pm.CustomerID,
		AccountID:       accountID,
		Amount:          cb.Amount,
		Service:         models.Gateway(cb.Vendor),
		PaymentMethodID: &pmID,
		TransactionID:   cb.TransactionID,
		TransactionDate: cb.PaidAt,
	})
	if errors.Is(err, models.ErrDuplicateTransaction) {
		existing, findErr := s.store.FindPaybackTransactionByReceipt(ctx, models.Gateway(cb.Vendor), cb.TransactionID)
		if findErr != nil {
			return nil, findErr
		}
		log.Info("Gateway callback already recorded")
		return &CallbackOutcome{PaybackTransaction: existing, Duplicate: true}, nil
	}
	if err != nil {
		return nil, err
	}

	out := &CallbackOutcome{PaybackTransaction: pt}
	out.Result, out.ProcessErr = s.ProcessRepaymentTrx(ctx, pt.ID, fmt.Sprintf("%s callback", cb.Vendor), false)
	return out, nil
}

// accountForCustomer picks the account a virtual account payment settles.
// Virtual accounts are issued per customer, and a customer has one account.
func (s *Service) accountForCustomer(ctx context.Context, customerID int64, cb *gateway.Callback) (int64, error) {
	account, err := s.store.FindAccountByCustomer(ctx, customerID)
	if err != nil {
		return 0, fmt.Errorf("no account for virtual account %s: %w", cb.VirtualAccount, err)
	}
	return account.ID, nil
}

// PayWithCashback settles an account's installments from the customer's
// cashback wallet
func (s *Service) PayWithCashback(ctx context.Context, accountID, amount int64, note string) (*models.PaybackTransaction, *RepaymentResult, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	pt, err := s.CreatePaybackTransaction(ctx, IntakeRequest{
		CustomerID: account.CustomerID,
		AccountID:  account.ID,
		Amount:     amount,
		Service:    models.Cashback(),
	})
	if err != nil {
		return nil, nil, err
	}
	result, err := s.ProcessRepaymentTrx(ctx, pt.ID, note, true)
	if err != nil {
		return pt, nil, err
	}
	return pt, result, nil
}
