package repository

import (
	"context"

	"github.com/julo/repayment-service/internal/models"
)

// GetAccount retrieves an account by id
func (r *Repository) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	a := &models.Account{}
	query := `SELECT id, customer_id, product_line, email, full_name FROM ops.account WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&a.ID, &a.CustomerID, &a.ProductLine, &a.Email, &a.FullName)
	if err != nil {
		return nil, notFound(err, "account", id)
	}
	return a, nil
}

// FindAccountByCustomer retrieves a customer's account, the earliest if the
// customer has several
func (r *Repository) FindAccountByCustomer(ctx context.Context, customerID int64) (*models.Account, error) {
	a := &models.Account{}
	query := `
		SELECT id, customer_id, product_line, email, full_name
		FROM ops.account
		WHERE customer_id = $1
		ORDER BY id
		LIMIT 1`
	err := r.db.QueryRowContext(ctx, query, customerID).Scan(&a.ID, &a.CustomerID, &a.ProductLine, &a.Email, &a.FullName)
	if err != nil {
		return nil, notFound(err, "account for customer", customerID)
	}
	return a, nil
}

// GetPaymentMethod retrieves a payment method by id
func (r *Repository) GetPaymentMethod(ctx context.Context, id int64) (*models.PaymentMethod, error) {
	query := `
		SELECT id, customer_id, vendor, bank_code, virtual_account, is_active
		FROM ops.payment_method
		WHERE id = $1`
	pm := &models.PaymentMethod{}
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&pm.ID, &pm.CustomerID, &pm.Vendor, &pm.BankCode, &pm.VirtualAccount, &pm.IsActive)
	if err != nil {
		return nil, notFound(err, "payment method", id)
	}
	return pm, nil
}

// FindPaymentMethodByVirtualAccount retrieves the payment method a gateway
// callback refers to
func (r *Repository) FindPaymentMethodByVirtualAccount(ctx context.Context, vendor models.GatewayVendor, virtualAccount string) (*models.PaymentMethod, error) {
	query := `
		SELECT id, customer_id, vendor, bank_code, virtual_account, is_active
		FROM ops.payment_method
		WHERE vendor = $1 AND virtual_account = $2`
	pm := &models.PaymentMethod{}
	err := r.db.QueryRowContext(ctx, query, string(vendor), virtualAccount).
		Scan(&pm.ID, &pm.CustomerID, &pm.Vendor, &pm.BankCode, &pm.VirtualAccount, &pm.IsActive)
	if err != nil {
		return nil, notFound(err, "virtual account", virtualAccount)
	}
	return pm, nil
}

// FindOperatorByEmail retrieves an operator by email
func (r *Repository) FindOperatorByEmail(ctx context.Context, email string) (*models.Operator, error) {
	op := &models.Operator{}
	query := `SELECT id, email, password_hash FROM ops.operator WHERE email = $1`
	if err := r.db.QueryRowContext(ctx, query, email).Scan(&op.ID, &op.Email, &op.PasswordHash); err != nil {
		return nil, notFound(err, "operator", email)
	}
	return op, nil
}
