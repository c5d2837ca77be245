package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/julo/repayment-service/internal/models"
	"github.com/lib/pq"
)

// Tx is the set of operations that must run inside one database transaction.
// Methods named ForUpdate take a row lock held until commit or rollback.
type Tx interface {
	GetPaybackTransactionForUpdate(ctx context.Context, id int64) (*models.PaybackTransaction, error)
	MarkPaybackTransactionProcessed(ctx context.Context, id int64) error

	// GetOldestUnpaidAccountPayment returns nil, nil when the account has no
	// unpaid bucket. It does not lock.
	GetOldestUnpaidAccountPayment(ctx context.Context, accountID int64) (*models.AccountPayment, error)
	GetAccountPaymentForUpdate(ctx context.Context, id int64) (*models.AccountPayment, error)
	ListPaymentsForUpdate(ctx context.Context, accountPaymentID int64) ([]models.Payment, error)
	UpdateAccountPayment(ctx context.Context, ap *models.AccountPayment) error
	UpdatePayment(ctx context.Context, p *models.Payment) error

	CreateAccountTransaction(ctx context.Context, at *models.AccountTransaction) error

	// GetWalletForUpdate creates an empty wallet when the customer has none.
	GetWalletForUpdate(ctx context.Context, customerID int64) (*models.WalletBalance, error)
	UpdateWallet(ctx context.Context, w *models.WalletBalance) error
	CreateWalletHistory(ctx context.Context, h *models.WalletHistory) error
}

// Store is the persistence boundary of the repayment service
type Store interface {
	// WithinTx runs fn in one transaction, committing only if fn returns nil.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	CreatePaybackTransaction(ctx context.Context, pt *models.PaybackTransaction) error
	GetPaybackTransaction(ctx context.Context, id int64) (*models.PaybackTransaction, error)
	// FindPaybackTransactionByReceipt looks up a receipt id within one payback
	// service. Receipt ids are unique per service, not globally.
	FindPaybackTransactionByReceipt(ctx context.Context, service models.PaybackService, transactionID string) (*models.PaybackTransaction, error)
	ListUnprocessedPaybackTransactions(ctx context.Context, createdBefore time.Time, limit int) ([]models.PaybackTransaction, error)

	GetAccount(ctx context.Context, id int64) (*models.Account, error)
	FindAccountByCustomer(ctx context.Context, customerID int64) (*models.Account, error)
	GetPaymentMethod(ctx context.Context, id int64) (*models.PaymentMethod, error)
	FindPaymentMethodByVirtualAccount(ctx context.Context, vendor models.GatewayVendor, virtualAccount string) (*models.PaymentMethod, error)
	GetWallet(ctx context.Context, customerID int64) (*models.WalletBalance, error)
	FindOperatorByEmail(ctx context.Context, email string) (*models.Operator, error)
}

//go:embed schema.sql
var schema string

// Repository is the Postgres Store
type Repository struct {
	db *sql.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the tables the service needs if they are missing
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// WithinTx runs fn inside a read-committed transaction
func (r *Repository) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx *sql.Tx
}

type rowScanner interface {
	Scan(dest ...any) error
}

// isUniqueViolation understands both drivers the service is run with
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Name() == "unique_violation"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func notFound(err error, what string, id any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", what, id, models.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s %v: %w", what, id, err)
}

func expectOneRow(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, models.ErrNotFound)
	}
	return nil
}
