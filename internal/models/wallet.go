package models

import "time"

// WalletChangeReason explains a cashback balance change
type WalletChangeReason string

const (
	ReasonUsedOnPayment    WalletChangeReason = "used_on_payment"
	ReasonCashbackOverPaid WalletChangeReason = "cashback_over_paid"
	ReasonCashbackEarned   WalletChangeReason = "cashback_earned"
	ReasonAdminAdjustment  WalletChangeReason = "admin_adjustment"
)

// WalletBalance is a customer's cashback wallet
type WalletBalance struct {
	CustomerID int64     `json:"customer_id"`
	Accruing   int64     `json:"accruing"`
	Available  int64     `json:"available"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// WalletHistory is the audit row written for every wallet change
type WalletHistory struct {
	ID                   int64              `json:"id"`
	CustomerID           int64              `json:"customer_id"`
	AccruingOld          int64              `json:"accruing_old"`
	AccruingNew          int64              `json:"accruing_new"`
	AvailableOld         int64              `json:"available_old"`
	AvailableNew         int64              `json:"available_new"`
	ChangeReason         WalletChangeReason `json:"change_reason"`
	AccountPaymentID     *int64             `json:"account_payment_id,omitempty"`
	PaymentID            *int64             `json:"payment_id,omitempty"`
	PaybackTransactionID *int64             `json:"payback_transaction_id,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
}
