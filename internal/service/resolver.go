package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/julo/repayment-service/internal/models"
	"github.com/julo/repayment-service/internal/repository"
	"github.com/sirupsen/logrus"
)

// Resolver finds the installment bucket a payment should go to. It does not
// lock; the allocator locks the row it is handed and rejects it if a
// concurrent payment already settled it.
type Resolver struct{}

// Resolve returns the unpaid account payment with the earliest due date, or
// nil when everything is paid
func (Resolver) Resolve(ctx context.Context, tx repository.Tx, accountID int64) (*models.AccountPayment, error) {
	ap, err := tx.GetOldestUnpaidAccountPayment(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve oldest unpaid account payment: %w", err)
	}
	return ap, nil
}

// OldestUnpaid looks up the next installment an account would pay
func (s *Service) OldestUnpaid(ctx context.Context, accountID int64) (*models.AccountPayment, error) {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	var ap *models.AccountPayment
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		ap, err = s.resolver.Resolve(ctx, tx, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ap, nil
}

// allocateNext resolves the next bucket and allocates amount to it. A target
// that turns out to be already paid once locked is re-resolved, up to the
// configured number of attempts. Returns nil, nil when no unpaid bucket is left.
func (s *Service) allocateNext(ctx context.Context, tx repository.Tx, in AllocationInput) (*BucketAllocation, error) {
	attempts := s.config.Repayment.MaxResolveAttempts
	var lastErr error
	for i := 0; i < attempts; i++ {
		target, err := s.resolver.Resolve(ctx, tx, in.Payback.AccountID)
		if err != nil {
			return nil, err
		}
		if target == nil {
			return nil, nil
		}

		in.Target = target
		alloc, err := s.allocator.Allocate(ctx, tx, in)
		var allocErr *models.AllocationError
		if errors.As(err, &allocErr) && allocErr.AccountPaymentID != 0 {
			s.log.WithFields(logrus.Fields{
				"account_payment_id": allocErr.AccountPaymentID,
				"attempt":            i + 1,
			}).Warn("Resolved account payment was already paid, re-resolving")
			lastErr = err
			continue
		}
		return alloc, err
	}
	return nil, lastErr
}
