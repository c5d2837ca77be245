package service

import (
	"context"
	"fmt"
	"time"

	"github.com/julo/repayment-service/internal/models"
	"github.com/julo/repayment-service/internal/repository"
)

// AllocationInput is one allocation against one installment bucket
type AllocationInput struct {
	Payback *models.PaybackTransaction
	Target  *models.AccountPayment
	Amount  int64
	Order   []models.Component
}

// BucketAllocation is the outcome of paying into one account payment
type BucketAllocation struct {
	AccountPayment models.AccountPayment
	Details        []models.AllocationDetail
	Applied        int64
	Remaining      int64
	PaidOff        bool
}

// Allocator applies money to an installment bucket and its loan-level payments
type Allocator struct {
	GracePeriodDays int
	// Location is the zone due dates are written in; nil means UTC
	Location *time.Location
}

// Allocate locks the target, pays its components in order and persists the
// bucket and its payments. The target is re-read under the lock; if it is
// already settled an AllocationError carrying its id is returned so the
// caller can resolve again.
func (a *Allocator) Allocate(ctx context.Context, tx repository.Tx, in AllocationInput) (*BucketAllocation, error) {
	if in.Amount <= 0 {
		return nil, &models.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	order := in.Order
	if len(order) == 0 {
		order = models.DefaultAllocationOrder
	}

	ap, err := tx.GetAccountPaymentForUpdate(ctx, in.Target.ID)
	if err != nil {
		return nil, err
	}
	if ap.IsPaid() || ap.DueAmount <= 0 {
		return nil, &models.AllocationError{
			AccountID:        ap.AccountID,
			AccountPaymentID: ap.ID,
			Reason:           "already paid",
		}
	}

	payments, err := tx.ListPaymentsForUpdate(ctx, ap.ID)
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, fmt.Errorf("account payment %d has no payments", ap.ID)
	}

	details := make([]models.AllocationDetail, len(payments))
	remaining := in.Amount
	for _, c := range order {
		for i := range payments {
			if remaining == 0 {
				break
			}
			owed := payments[i].Remaining(c)
			if owed <= 0 {
				continue
			}
			pay := min(owed, remaining)
			payments[i].Apply(c, pay)
			ap.Apply(c, pay)
			details[i].Add(c, pay)
			remaining -= pay
		}
	}

	applied := in.Amount - remaining
	if applied == 0 {
		return nil, fmt.Errorf("account payment %d has a due amount but nothing outstanding on its payments", ap.ID)
	}
	for _, c := range order {
		if ap.Remaining(c) < 0 {
			return nil, fmt.Errorf("account payment %d is out of sync with its payments on %s", ap.ID, c)
		}
	}
	if ap.DueAmount < 0 {
		return nil, fmt.Errorf("account payment %d due amount would go negative", ap.ID)
	}

	paidAt := in.Payback.TransactionDate
	out := &BucketAllocation{Applied: applied, Remaining: remaining}
	for i := range payments {
		if details[i].Total() == 0 {
			continue
		}
		p := &payments[i]
		if p.DueAmount == 0 {
			settle(&p.Installment, paidAt, a.GracePeriodDays, a.Location)
		}
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return nil, err
		}
		details[i].AccountPaymentID = ap.ID
		details[i].PaymentID = p.ID
		out.Details = append(out.Details, details[i])
	}

	if ap.DueAmount == 0 {
		settle(&ap.Installment, paidAt, a.GracePeriodDays, a.Location)
		out.PaidOff = true
	}
	if err := tx.UpdateAccountPayment(ctx, ap); err != nil {
		return nil, err
	}
	out.AccountPayment = *ap
	return out, nil
}

// settle moves a fully paid installment to its paid status
func settle(inst *models.Installment, paidAt time.Time, graceDays int, loc *time.Location) {
	inst.Status = paidStatus(inst.DueDate, paidAt, graceDays, loc)
	paid := paidAt
	inst.PaidDate = &paid
}

// paidStatus compares calendar days, not instants. The due date is a plain
// date; paidAt is moved into loc before its day is taken.
func paidStatus(dueDate, paidAt time.Time, graceDays int, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	local := paidAt.In(loc)
	due := time.Date(dueDate.Year(), dueDate.Month(), dueDate.Day(), 0, 0, 0, 0, time.UTC)
	paid := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	late := int(paid.Sub(due).Hours() / 24)
	switch {
	case late <= 0:
		return models.StatusPaidOnTime
	case late <= graceDays:
		return models.StatusPaidWithinGrace
	default:
		return models.StatusPaidLate
	}
}
