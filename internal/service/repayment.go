package service

import (
	"context"
	"fmt"

	"github.com/julo/repayment-service/internal/models"
	"github.com/julo/repayment-service/internal/notification"
	"github.com/julo/repayment-service/internal/repository"
	"github.com/sirupsen/logrus"
)

// RepaymentResult is what one processed payback transaction did to the ledger
type RepaymentResult struct {
	AccountTransaction *models.AccountTransaction
	Service            models.PaybackService
	// Overpayment is the part of the payback no unpaid installment could take.
	// For cash paybacks it was credited to the cashback wallet.
	Overpayment              int64
	PaidOffAccountPaymentIDs []int64
	WalletHistory            []models.WalletHistory
}

// ProcessRepaymentTrx allocates a payback transaction to the account's unpaid
// installments, oldest first, and debits or credits the cashback wallet, all
// in one database transaction. A payback that was already processed returns
// nil, nil. On any error nothing is written and the payback stays unprocessed.
// Notification happens only after commit.
func (s *Service) ProcessRepaymentTrx(ctx context.Context, paybackID int64, note string, usingCashback bool) (*RepaymentResult, error) {
	log := s.log.WithFields(logrus.Fields{
		"payback_transaction_id": paybackID,
		"using_cashback":         usingCashback,
	})

	result, account, err := s.processRepayment(ctx, paybackID, note, usingCashback)
	if err != nil {
		s.metrics.ObserveRepayment(resultLabel(err))
		log.WithError(err).Error("Repayment processing failed")
		return nil, err
	}
	if result == nil {
		s.metrics.ObserveRepayment("already_processed")
		log.Info("Payback transaction already processed")
		return nil, nil
	}

	at := result.AccountTransaction
	s.metrics.ObserveRepayment("processed")
	s.metrics.ObserveAllocated(string(models.ComponentLateFee), at.TowardsLateFee)
	s.metrics.ObserveAllocated(string(models.ComponentInterest), at.TowardsInterest)
	s.metrics.ObserveAllocated(string(models.ComponentPrincipal), at.TowardsPrincipal)
	s.metrics.ObserveOverpayment(result.Overpayment)
	log.WithFields(logrus.Fields{
		"account_transaction_id": at.ID,
		"account_id":             at.AccountID,
		"applied":                at.Applied(),
		"overpayment":            result.Overpayment,
		"paid_off":               len(result.PaidOffAccountPaymentIDs),
	}).Info("Repayment processed")

	s.notifier.Notify(ctx, s.repaymentEvent(account, result, usingCashback))
	return result, nil
}

func (s *Service) processRepayment(ctx context.Context, paybackID int64, note string, usingCashback bool) (*RepaymentResult, *models.Account, error) {
	pt, err := s.store.GetPaybackTransaction(ctx, paybackID)
	if err != nil {
		return nil, nil, err
	}
	account, err := s.store.GetAccount(ctx, pt.AccountID)
	if err != nil {
		return nil, nil, err
	}

	var result *RepaymentResult
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		locked, err := tx.GetPaybackTransactionForUpdate(ctx, paybackID)
		if err != nil {
			return err
		}
		if locked.IsProcessed {
			return nil
		}
		if usingCashback != locked.Service.IsCashback() {
			return &models.ValidationError{
				Field:  "using_cashback",
				Reason: fmt.Sprintf("does not match payback service %s", locked.Service),
			}
		}

		// Both paths may write the wallet, so it is locked before any
		// installment. Lock order is payback, wallet, account payment.
		if usingCashback {
			if err := s.wallet.RequireAvailable(ctx, tx, locked.CustomerID, locked.Amount); err != nil {
				return err
			}
		} else if _, err := tx.GetWalletForUpdate(ctx, locked.CustomerID); err != nil {
			return fmt.Errorf("failed to lock wallet: %w", err)
		}

		r, err := s.allocate(ctx, tx, locked, account, note)
		if err != nil {
			return err
		}

		if err := s.settleWallet(ctx, tx, locked, r, usingCashback); err != nil {
			return err
		}
		if err := tx.CreateAccountTransaction(ctx, r.AccountTransaction); err != nil {
			return err
		}
		if err := tx.MarkPaybackTransactionProcessed(ctx, locked.ID); err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return result, account, nil
}

// allocate walks the unpaid buckets oldest first until the money runs out or,
// without cascade, after the first bucket
func (s *Service) allocate(ctx context.Context, tx repository.Tx, pt *models.PaybackTransaction, account *models.Account, note string) (*RepaymentResult, error) {
	at := &models.AccountTransaction{
		AccountID:            pt.AccountID,
		PaybackTransactionID: pt.ID,
		TransactionDate:      pt.TransactionDate,
		Amount:               pt.Amount,
		Note:                 note,
	}
	result := &RepaymentResult{AccountTransaction: at, Service: pt.Service}
	order := s.allocationOrder(account.ProductLine)

	remaining := pt.Amount
	for remaining > 0 {
		alloc, err := s.allocateNext(ctx, tx, AllocationInput{Payback: pt, Amount: remaining, Order: order})
		if err != nil {
			return nil, err
		}
		if alloc == nil {
			if len(at.Allocations) == 0 {
				return nil, &models.AllocationError{AccountID: pt.AccountID, Reason: "no unpaid account payment"}
			}
			break
		}

		for _, d := range alloc.Details {
			at.TowardsLateFee += d.TowardsLateFee
			at.TowardsInterest += d.TowardsInterest
			at.TowardsPrincipal += d.TowardsPrincipal
		}
		at.Allocations = append(at.Allocations, alloc.Details...)
		if alloc.PaidOff {
			result.PaidOffAccountPaymentIDs = append(result.PaidOffAccountPaymentIDs, alloc.AccountPayment.ID)
		}
		remaining = alloc.Remaining

		if !s.config.Repayment.Cascade {
			break
		}
	}

	if at.Applied()+remaining != pt.Amount {
		return nil, fmt.Errorf("allocation of payback transaction %d does not balance: applied %d, remaining %d, amount %d",
			pt.ID, at.Applied(), remaining, pt.Amount)
	}
	result.Overpayment = remaining
	return result, nil
}

// settleWallet debits what cashback actually paid, or credits a cash
// overpayment back to the customer as cashback
func (s *Service) settleWallet(ctx context.Context, tx repository.Tx, pt *models.PaybackTransaction, r *RepaymentResult, usingCashback bool) error {
	ptID := pt.ID
	var lastBucket *int64
	if n := len(r.AccountTransaction.Allocations); n > 0 {
		id := r.AccountTransaction.Allocations[n-1].AccountPaymentID
		lastBucket = &id
	}

	var change *WalletChange
	switch {
	case usingCashback:
		applied := r.AccountTransaction.Applied()
		change = &WalletChange{
			CustomerID:           pt.CustomerID,
			Accruing:             -applied,
			Available:            -applied,
			Reason:               models.ReasonUsedOnPayment,
			AccountPaymentID:     lastBucket,
			PaybackTransactionID: &ptID,
		}
	case r.Overpayment > 0:
		change = &WalletChange{
			CustomerID:           pt.CustomerID,
			Accruing:             r.Overpayment,
			Available:            r.Overpayment,
			Reason:               models.ReasonCashbackOverPaid,
			AccountPaymentID:     lastBucket,
			PaybackTransactionID: &ptID,
		}
	default:
		return nil
	}

	history, err := s.wallet.Adjust(ctx, tx, *change)
	if err != nil {
		return err
	}
	r.WalletHistory = append(r.WalletHistory, *history)
	return nil
}

func (s *Service) repaymentEvent(account *models.Account, r *RepaymentResult, usingCashback bool) notification.Event {
	at := r.AccountTransaction
	ev := notification.NewEvent(notification.EventRepaymentProcessed, s.clock.Now())
	ev.CustomerID = account.CustomerID
	ev.AccountID = account.ID
	ev.Email = account.Email
	ev.FullName = account.FullName
	ev.PaybackTransactionID = at.PaybackTransactionID
	ev.AccountTransactionID = at.ID
	ev.Amount = at.Amount
	ev.Applied = at.Applied()
	ev.Overpayment = r.Overpayment
	ev.UsingCashback = usingCashback
	ev.PaidOffAccountPaymentIDs = r.PaidOffAccountPaymentIDs
	ev.Service = r.Service.String()
	return ev
}
