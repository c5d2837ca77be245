package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/julo/repayment-service/internal/models"
)

const installmentColumns = `due_date, due_amount, principal_amount, interest_amount, late_fee_amount,
		paid_amount, paid_principal, paid_interest, paid_late_fee, status, paid_date`

func installmentDest(i *models.Installment, paidDate *sql.NullTime) []any {
	return []any{&i.DueDate, &i.DueAmount, &i.PrincipalAmount, &i.InterestAmount, &i.LateFeeAmount,
		&i.PaidAmount, &i.PaidPrincipal, &i.PaidInterest, &i.PaidLateFee, &i.Status, paidDate}
}

func scanAccountPayment(row rowScanner) (*models.AccountPayment, error) {
	var (
		ap       models.AccountPayment
		paidDate sql.NullTime
	)
	dest := append([]any{&ap.ID, &ap.AccountID}, installmentDest(&ap.Installment, &paidDate)...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if paidDate.Valid {
		ap.PaidDate = &paidDate.Time
	}
	return &ap, nil
}

func (t *pgTx) GetOldestUnpaidAccountPayment(ctx context.Context, accountID int64) (*models.AccountPayment, error) {
	query := `SELECT id, account_id, ` + installmentColumns + `
		FROM ops.account_payment
		WHERE account_id = $1 AND status < $2
		ORDER BY due_date, id
		LIMIT 1`
	ap, err := scanAccountPayment(t.tx.QueryRowContext(ctx, query, accountID, models.StatusPaidOnTime))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get oldest unpaid account payment: %w", err)
	}
	return ap, nil
}

func (t *pgTx) GetAccountPaymentForUpdate(ctx context.Context, id int64) (*models.AccountPayment, error) {
	query := `SELECT id, account_id, ` + installmentColumns + `
		FROM ops.account_payment
		WHERE id = $1
		FOR UPDATE`
	ap, err := scanAccountPayment(t.tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "account payment", id)
	}
	return ap, nil
}

func (t *pgTx) ListPaymentsForUpdate(ctx context.Context, accountPaymentID int64) ([]models.Payment, error) {
	query := `SELECT id, loan_id, account_payment_id, payment_number, ` + installmentColumns + `
		FROM ops.payment
		WHERE account_payment_id = $1
		ORDER BY loan_id, payment_number, id
		FOR UPDATE`
	rows, err := t.tx.QueryContext(ctx, query, accountPaymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var out []models.Payment
	for rows.Next() {
		var (
			p        models.Payment
			paidDate sql.NullTime
		)
		dest := append([]any{&p.ID, &p.LoanID, &p.AccountPaymentID, &p.PaymentNumber}, installmentDest(&p.Installment, &paidDate)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		if paidDate.Valid {
			p.PaidDate = &paidDate.Time
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *pgTx) UpdateAccountPayment(ctx context.Context, ap *models.AccountPayment) error {
	query := `
		UPDATE ops.account_payment
		SET due_amount = $2, paid_amount = $3, paid_principal = $4, paid_interest = $5,
			paid_late_fee = $6, status = $7, paid_date = $8, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`
	res, err := t.tx.ExecContext(ctx, query, ap.ID, ap.DueAmount, ap.PaidAmount, ap.PaidPrincipal,
		ap.PaidInterest, ap.PaidLateFee, ap.Status, ap.PaidDate)
	if err != nil {
		return fmt.Errorf("failed to update account payment %d: %w", ap.ID, err)
	}
	return expectOneRow(res, "account payment", ap.ID)
}

func (t *pgTx) UpdatePayment(ctx context.Context, p *models.Payment) error {
	query := `
		UPDATE ops.payment
		SET due_amount = $2, paid_amount = $3, paid_principal = $4, paid_interest = $5,
			paid_late_fee = $6, status = $7, paid_date = $8, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`
	res, err := t.tx.ExecContext(ctx, query, p.ID, p.DueAmount, p.PaidAmount, p.PaidPrincipal,
		p.PaidInterest, p.PaidLateFee, p.Status, p.PaidDate)
	if err != nil {
		return fmt.Errorf("failed to update payment %d: %w", p.ID, err)
	}
	return expectOneRow(res, "payment", p.ID)
}

func (t *pgTx) CreateAccountTransaction(ctx context.Context, at *models.AccountTransaction) error {
	query := `
		INSERT INTO ops.account_transaction (account_id, payback_transaction_id, transaction_date, amount,
			towards_principal, towards_interest, towards_late_fee, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := t.tx.QueryRowContext(ctx, query, at.AccountID, at.PaybackTransactionID, at.TransactionDate,
		at.Amount, at.TowardsPrincipal, at.TowardsInterest, at.TowardsLateFee, at.Note).
		Scan(&at.ID, &at.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account transaction: %w", err)
	}

	detail := `
		INSERT INTO ops.account_transaction_allocation (account_transaction_id, account_payment_id,
			payment_id, towards_principal, towards_interest, towards_late_fee)
		VALUES ($1, $2, $3, $4, $5, $6)`
	for _, d := range at.Allocations {
		_, err := t.tx.ExecContext(ctx, detail, at.ID, d.AccountPaymentID, d.PaymentID,
			d.TowardsPrincipal, d.TowardsInterest, d.TowardsLateFee)
		if err != nil {
			return fmt.Errorf("failed to create allocation detail: %w", err)
		}
	}
	return nil
}
