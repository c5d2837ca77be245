package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrValidation           = errors.New("validation failed")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrAllocation           = errors.New("allocation failed")
	ErrInsufficientCashback = errors.New("insufficient cashback")
)

// ValidationError rejects bad input before anything is written
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// DuplicateTransactionError is returned when a receipt id was already taken in
type DuplicateTransactionError struct {
	TransactionID string
}

func (e *DuplicateTransactionError) Error() string {
	return fmt.Sprintf("payback transaction %q already exists", e.TransactionID)
}

func (e *DuplicateTransactionError) Unwrap() error { return ErrDuplicateTransaction }

// AllocationError means there is nothing to allocate against. When
// AccountPaymentID is set when the target was already paid and must be re-resolved.
type AllocationError struct {
	AccountID        int64
	AccountPaymentID int64
	Reason           string
}

func (e *AllocationError) Error() string {
	if e.AccountPaymentID != 0 {
		return fmt.Sprintf("account payment %d: %s", e.AccountPaymentID, e.Reason)
	}
	return fmt.Sprintf("account %d: %s", e.AccountID, e.Reason)
}

func (e *AllocationError) Unwrap() error { return ErrAllocation }

// InsufficientCashbackError is returned when a wallet change would take a
// balance below zero
type InsufficientCashbackError struct {
	CustomerID int64
	Available  int64
	Requested  int64
}

func (e *InsufficientCashbackError) Error() string {
	return fmt.Sprintf("customer %d has %d cashback available, %d requested", e.CustomerID, e.Available, e.Requested)
}

func (e *InsufficientCashbackError) Unwrap() error { return ErrInsufficientCashback }
