package models

import "time"

// AccountTransaction is the append-only ledger entry written for a processed
// payback transaction
type AccountTransaction struct {
	ID                   int64              `json:"id"`
	AccountID            int64              `json:"account_id"`
	PaybackTransactionID int64              `json:"payback_transaction_id"`
	TransactionDate      time.Time          `json:"transaction_date"`
	Amount               int64              `json:"amount"`
	TowardsPrincipal     int64              `json:"towards_principal"`
	TowardsInterest      int64              `json:"towards_interest"`
	TowardsLateFee       int64              `json:"towards_late_fee"`
	Note                 string             `json:"note"`
	Allocations          []AllocationDetail `json:"allocations"`
	CreatedAt            time.Time          `json:"created_at"`
}

// AllocationDetail records how much of a transaction went to one loan-level
// payment inside one account payment
type AllocationDetail struct {
	AccountPaymentID int64 `json:"account_payment_id"`
	PaymentID        int64 `json:"payment_id"`
	TowardsPrincipal int64 `json:"towards_principal"`
	TowardsInterest  int64 `json:"towards_interest"`
	TowardsLateFee   int64 `json:"towards_late_fee"`
}

// Total is the amount the detail applied
func (d AllocationDetail) Total() int64 {
	return d.TowardsPrincipal + d.TowardsInterest + d.TowardsLateFee
}

// Add credits amount to the given component
func (d *AllocationDetail) Add(c Component, amount int64) {
	switch c {
	case ComponentLateFee:
		d.TowardsLateFee += amount
	case ComponentInterest:
		d.TowardsInterest += amount
	case ComponentPrincipal:
		d.TowardsPrincipal += amount
	}
}

// Applied is the sum of the component splits
func (t *AccountTransaction) Applied() int64 {
	return t.TowardsPrincipal + t.TowardsInterest + t.TowardsLateFee
}
