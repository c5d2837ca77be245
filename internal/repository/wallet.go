package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/julo/repayment-service/internal/models"
)

// GetWallet retrieves a customer's wallet; a customer without one has a zero wallet
func (r *Repository) GetWallet(ctx context.Context, customerID int64) (*models.WalletBalance, error) {
	query := `SELECT customer_id, accruing, available, updated_at FROM ops.customer_wallet WHERE customer_id = $1`
	w := &models.WalletBalance{}
	err := r.db.QueryRowContext(ctx, query, customerID).Scan(&w.CustomerID, &w.Accruing, &w.Available, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.WalletBalance{CustomerID: customerID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return w, nil
}

func (t *pgTx) GetWalletForUpdate(ctx context.Context, customerID int64) (*models.WalletBalance, error) {
	ensure := `
		INSERT INTO ops.customer_wallet (customer_id, accruing, available, updated_at)
		VALUES ($1, 0, 0, CURRENT_TIMESTAMP)
		ON CONFLICT (customer_id) DO NOTHING`
	if _, err := t.tx.ExecContext(ctx, ensure, customerID); err != nil {
		return nil, fmt.Errorf("failed to ensure wallet: %w", err)
	}

	query := `
		SELECT customer_id, accruing, available, updated_at
		FROM ops.customer_wallet
		WHERE customer_id = $1
		FOR UPDATE`
	w := &models.WalletBalance{}
	err := t.tx.QueryRowContext(ctx, query, customerID).Scan(&w.CustomerID, &w.Accruing, &w.Available, &w.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "wallet", customerID)
	}
	return w, nil
}

func (t *pgTx) UpdateWallet(ctx context.Context, w *models.WalletBalance) error {
	query := `
		UPDATE ops.customer_wallet
		SET accruing = $2, available = $3, updated_at = CURRENT_TIMESTAMP
		WHERE customer_id = $1
		RETURNING updated_at`
	err := t.tx.QueryRowContext(ctx, query, w.CustomerID, w.Accruing, w.Available).Scan(&w.UpdatedAt)
	if err != nil {
		return notFound(err, "wallet", w.CustomerID)
	}
	return nil
}

func (t *pgTx) CreateWalletHistory(ctx context.Context, h *models.WalletHistory) error {
	query := `
		INSERT INTO ops.customer_wallet_history (customer_id, accruing_old, accruing_new, available_old,
			available_new, change_reason, account_payment_id, payment_id, payback_transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := t.tx.QueryRowContext(ctx, query, h.CustomerID, h.AccruingOld, h.AccruingNew, h.AvailableOld,
		h.AvailableNew, string(h.ChangeReason), h.AccountPaymentID, h.PaymentID, h.PaybackTransactionID).
		Scan(&h.ID, &h.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create wallet history: %w", err)
	}
	return nil
}
