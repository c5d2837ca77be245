package service

import (
	"context"
	"fmt"

	"github.com/julo/repayment-service/internal/metrics"
	"github.com/julo/repayment-service/internal/models"
	"github.com/julo/repayment-service/internal/repository"
)

// WalletChange is a signed change to a customer's cashback wallet
type WalletChange struct {
	CustomerID           int64
	Accruing             int64
	Available            int64
	Reason               models.WalletChangeReason
	AccountPaymentID     *int64
	PaymentID            *int64
	PaybackTransactionID *int64
}

// WalletAdjuster changes cashback balances under the wallet row lock and
// writes the audit history
type WalletAdjuster struct {
	metrics *metrics.Metrics
}

// Adjust applies ch. The balances are checked before anything is written, so
// an InsufficientCashbackError leaves the wallet untouched.
func (w *WalletAdjuster) Adjust(ctx context.Context, tx repository.Tx, ch WalletChange) (*models.WalletHistory, error) {
	if ch.Reason == "" {
		return nil, &models.ValidationError{Field: "reason", Reason: "is required"}
	}
	if ch.Accruing == 0 && ch.Available == 0 {
		return nil, &models.ValidationError{Field: "amount", Reason: "wallet change must not be zero"}
	}

	wallet, err := tx.GetWalletForUpdate(ctx, ch.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}

	newAccruing := wallet.Accruing + ch.Accruing
	newAvailable := wallet.Available + ch.Available
	if newAvailable < 0 || newAccruing < 0 {
		w.metrics.ObserveWalletChange(string(ch.Reason), "insufficient")
		requested := -ch.Available
		if newAvailable >= 0 {
			requested = -ch.Accruing
		}
		return nil, &models.InsufficientCashbackError{
			CustomerID: ch.CustomerID,
			Available:  wallet.Available,
			Requested:  requested,
		}
	}
	// available cashback is the spendable part of the accruing balance
	if newAvailable > newAccruing {
		w.metrics.ObserveWalletChange(string(ch.Reason), "rejected")
		return nil, &models.ValidationError{
			Field:  "available",
			Reason: fmt.Sprintf("available balance %d would exceed accruing balance %d", newAvailable, newAccruing),
		}
	}

	history := &models.WalletHistory{
		CustomerID:           ch.CustomerID,
		AccruingOld:          wallet.Accruing,
		AccruingNew:          newAccruing,
		AvailableOld:         wallet.Available,
		AvailableNew:         newAvailable,
		ChangeReason:         ch.Reason,
		AccountPaymentID:     ch.AccountPaymentID,
		PaymentID:            ch.PaymentID,
		PaybackTransactionID: ch.PaybackTransactionID,
	}

	wallet.Accruing = newAccruing
	wallet.Available = newAvailable
	if err := tx.UpdateWallet(ctx, wallet); err != nil {
		return nil, fmt.Errorf("failed to update wallet: %w", err)
	}
	if err := tx.CreateWalletHistory(ctx, history); err != nil {
		return nil, err
	}
	w.metrics.ObserveWalletChange(string(ch.Reason), "ok")
	return history, nil
}

// RequireAvailable locks the wallet and fails if less than amount is available
func (w *WalletAdjuster) RequireAvailable(ctx context.Context, tx repository.Tx, customerID, amount int64) error {
	wallet, err := tx.GetWalletForUpdate(ctx, customerID)
	if err != nil {
		return fmt.Errorf("failed to lock wallet: %w", err)
	}
	if wallet.Available < amount {
		w.metrics.ObserveWalletChange(string(models.ReasonUsedOnPayment), "insufficient")
		return &models.InsufficientCashbackError{
			CustomerID: customerID,
			Available:  wallet.Available,
			Requested:  amount,
		}
	}
	return nil
}

// AdjustWallet applies an operator or cashback-earning change on its own
// transaction
func (s *Service) AdjustWallet(ctx context.Context, ch WalletChange) (*models.WalletHistory, error) {
	switch ch.Reason {
	case models.ReasonAdminAdjustment, models.ReasonCashbackEarned:
	default:
		return nil, &models.ValidationError{Field: "reason", Reason: fmt.Sprintf("%q cannot be applied directly", ch.Reason)}
	}

	var history *models.WalletHistory
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		history, err = s.wallet.Adjust(ctx, tx, ch)
		return err
	})
	if err != nil {
		s.log.WithError(err).WithField("customer_id", ch.CustomerID).Warn("Wallet adjustment rejected")
		return nil, err
	}
	s.log.WithField("customer_id", ch.CustomerID).Infof("Wallet adjusted (%s): available %d -> %d",
		ch.Reason, history.AvailableOld, history.AvailableNew)
	return history, nil
}
