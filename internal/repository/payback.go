package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/julo/repayment-service/internal/models"
)

const paybackColumns = `id, customer_id, account_id, amount, payment_method_id, transaction_id,
		transaction_date, payback_service, is_processed, created_at`

func scanPaybackTransaction(row rowScanner) (*models.PaybackTransaction, error) {
	var (
		pt       models.PaybackTransaction
		methodID sql.NullInt64
		service  string
	)
	err := row.Scan(&pt.ID, &pt.CustomerID, &pt.AccountID, &pt.Amount, &methodID, &pt.TransactionID,
		&pt.TransactionDate, &service, &pt.IsProcessed, &pt.CreatedAt)
	if err != nil {
		return nil, err
	}
	if methodID.Valid {
		id := methodID.Int64
		pt.PaymentMethodID = &id
	}
	if pt.Service, err = models.ParsePaybackService(service); err != nil {
		return nil, fmt.Errorf("payback transaction %d: %w", pt.ID, err)
	}
	return &pt, nil
}

// CreatePaybackTransaction inserts a new unprocessed payback transaction
func (r *Repository) CreatePaybackTransaction(ctx context.Context, pt *models.PaybackTransaction) error {
	query := `
		INSERT INTO ops.payback_transaction (customer_id, account_id, amount, payment_method_id,
			transaction_id, transaction_date, payback_service, is_processed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	var methodID sql.NullInt64
	if pt.PaymentMethodID != nil {
		methodID = sql.NullInt64{Int64: *pt.PaymentMethodID, Valid: true}
	}
	err := r.db.QueryRowContext(ctx, query, pt.CustomerID, pt.AccountID, pt.Amount, methodID,
		pt.TransactionID, pt.TransactionDate, pt.Service.String()).
		Scan(&pt.ID, &pt.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &models.DuplicateTransactionError{TransactionID: pt.TransactionID}
		}
		return fmt.Errorf("failed to create payback transaction: %w", err)
	}
	pt.IsProcessed = false
	return nil
}

// GetPaybackTransaction retrieves a payback transaction by id
func (r *Repository) GetPaybackTransaction(ctx context.Context, id int64) (*models.PaybackTransaction, error) {
	query := `SELECT ` + paybackColumns + ` FROM ops.payback_transaction WHERE id = $1`
	pt, err := scanPaybackTransaction(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "payback transaction", id)
	}
	return pt, nil
}

// FindPaybackTransactionByReceipt retrieves a payback transaction by its
// service and receipt id
func (r *Repository) FindPaybackTransactionByReceipt(ctx context.Context, service models.PaybackService, transactionID string) (*models.PaybackTransaction, error) {
	query := `SELECT ` + paybackColumns + ` FROM ops.payback_transaction
		WHERE payback_service = $1 AND transaction_id = $2`
	pt, err := scanPaybackTransaction(r.db.QueryRowContext(ctx, query, service.String(), transactionID))
	if err != nil {
		return nil, notFound(err, "payback transaction", transactionID)
	}
	return pt, nil
}

// ListUnprocessedPaybackTransactions returns paybacks still unprocessed that
// were created before the cutoff, oldest first
func (r *Repository) ListUnprocessedPaybackTransactions(ctx context.Context, createdBefore time.Time, limit int) ([]models.PaybackTransaction, error) {
	query := `SELECT ` + paybackColumns + `
		FROM ops.payback_transaction
		WHERE NOT is_processed AND created_at < $1
		ORDER BY created_at, id
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed payback transactions: %w", err)
	}
	defer rows.Close()

	var out []models.PaybackTransaction
	for rows.Next() {
		pt, err := scanPaybackTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payback transaction: %w", err)
		}
		out = append(out, *pt)
	}
	return out, rows.Err()
}

func (t *pgTx) GetPaybackTransactionForUpdate(ctx context.Context, id int64) (*models.PaybackTransaction, error) {
	query := `SELECT ` + paybackColumns + ` FROM ops.payback_transaction WHERE id = $1 FOR UPDATE`
	pt, err := scanPaybackTransaction(t.tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "payback transaction", id)
	}
	return pt, nil
}

func (t *pgTx) MarkPaybackTransactionProcessed(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE ops.payback_transaction SET is_processed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark payback transaction processed: %w", err)
	}
	return expectOneRow(res, "payback transaction", id)
}
