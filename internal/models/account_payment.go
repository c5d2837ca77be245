package models

import "time"

// Installment status codes. Anything below StatusPaidOnTime is unpaid.
const (
	StatusNotDue          = 310
	StatusDue             = 312
	StatusOverdue         = 320
	StatusPaidOnTime      = 330
	StatusPaidWithinGrace = 331
	StatusPaidLate        = 332
)

// IsPaidStatus reports whether a status code is one of the paid statuses
func IsPaidStatus(status int) bool {
	return status >= StatusPaidOnTime
}

// Component is one part of an installment's due amount
type Component string

const (
	ComponentLateFee   Component = "late_fee"
	ComponentInterest  Component = "interest"
	ComponentPrincipal Component = "principal"
)

// DefaultAllocationOrder pays late fee first and principal last
var DefaultAllocationOrder = []Component{ComponentLateFee, ComponentInterest, ComponentPrincipal}

// Account groups a customer's loans and their installment buckets
type Account struct {
	ID          int64  `json:"id"`
	CustomerID  int64  `json:"customer_id"`
	ProductLine string `json:"product_line"`
	Email       string `json:"email"`
	FullName    string `json:"full_name"`
}

// Installment holds the component amounts shared by AccountPayment and Payment
type Installment struct {
	DueDate         time.Time  `json:"due_date"`
	DueAmount       int64      `json:"due_amount"`
	PrincipalAmount int64      `json:"principal_amount"`
	InterestAmount  int64      `json:"interest_amount"`
	LateFeeAmount   int64      `json:"late_fee_amount"`
	PaidAmount      int64      `json:"paid_amount"`
	PaidPrincipal   int64      `json:"paid_principal"`
	PaidInterest    int64      `json:"paid_interest"`
	PaidLateFee     int64      `json:"paid_late_fee"`
	Status          int        `json:"status"`
	PaidDate        *time.Time `json:"paid_date,omitempty"`
}

// Remaining returns what is still owed on a component
func (i *Installment) Remaining(c Component) int64 {
	switch c {
	case ComponentLateFee:
		return i.LateFeeAmount - i.PaidLateFee
	case ComponentInterest:
		return i.InterestAmount - i.PaidInterest
	case ComponentPrincipal:
		return i.PrincipalAmount - i.PaidPrincipal
	}
	return 0
}

// Apply records amount against a component and lowers the due amount
func (i *Installment) Apply(c Component, amount int64) {
	switch c {
	case ComponentLateFee:
		i.PaidLateFee += amount
	case ComponentInterest:
		i.PaidInterest += amount
	case ComponentPrincipal:
		i.PaidPrincipal += amount
	default:
		return
	}
	i.PaidAmount += amount
	i.DueAmount -= amount
}

// IsPaid reports whether the installment is settled
func (i *Installment) IsPaid() bool {
	return IsPaidStatus(i.Status)
}

// AccountPayment is an account-level installment bucket aggregating the
// loan-level payments due on the same date.
type AccountPayment struct {
	ID        int64 `json:"id"`
	AccountID int64 `json:"account_id"`
	Installment
}

// Payment is a loan-level installment. It moves in lockstep with its
// AccountPayment.
type Payment struct {
	ID               int64 `json:"id"`
	LoanID           int64 `json:"loan_id"`
	AccountPaymentID int64 `json:"account_payment_id"`
	PaymentNumber    int   `json:"payment_number"`
	Installment
}
