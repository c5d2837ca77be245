package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/julo/repayment-service/internal/models"
)

// MemoryStore is an in-process Store. Transactions are serialized and work on a
// copy of the state that replaces the committed state only when fn succeeds,
// which gives the same all-or-nothing behaviour as the Postgres store.
type MemoryStore struct {
	txMu   sync.Mutex
	dataMu sync.RWMutex
	state  *memState
	now    func() time.Time
}

type memState struct {
	nextID          int64
	accounts        map[int64]models.Account
	accountPayments map[int64]models.AccountPayment
	payments        map[int64]models.Payment
	paybacks        map[int64]models.PaybackTransaction
	accountTxs      []models.AccountTransaction
	wallets         map[int64]models.WalletBalance
	walletHistory   []models.WalletHistory
	paymentMethods  map[int64]models.PaymentMethod
	operators       map[string]models.Operator
}

// NewMemoryStore returns an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			accounts:        map[int64]models.Account{},
			accountPayments: map[int64]models.AccountPayment{},
			payments:        map[int64]models.Payment{},
			paybacks:        map[int64]models.PaybackTransaction{},
			wallets:         map[int64]models.WalletBalance{},
			paymentMethods:  map[int64]models.PaymentMethod{},
			operators:       map[string]models.Operator{},
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// SetNow replaces the clock used for created_at and updated_at stamps
func (m *MemoryStore) SetNow(now func() time.Time) {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.now = now
}

func (s *memState) clone() *memState {
	return &memState{
		nextID:          s.nextID,
		accounts:        maps.Clone(s.accounts),
		accountPayments: maps.Clone(s.accountPayments),
		payments:        maps.Clone(s.payments),
		paybacks:        maps.Clone(s.paybacks),
		accountTxs:      slices.Clone(s.accountTxs),
		wallets:         maps.Clone(s.wallets),
		walletHistory:   slices.Clone(s.walletHistory),
		paymentMethods:  maps.Clone(s.paymentMethods),
		operators:       maps.Clone(s.operators),
	}
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

// mutate runs fn against a working copy and publishes it if fn succeeds
func (m *MemoryStore) mutate(fn func(s *memState) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.dataMu.RLock()
	work := m.state.clone()
	m.dataMu.RUnlock()

	if err := fn(work); err != nil {
		return err
	}

	m.dataMu.Lock()
	m.state = work
	m.dataMu.Unlock()
	return nil
}

func (m *MemoryStore) read(fn func(s *memState)) {
	m.dataMu.RLock()
	defer m.dataMu.RUnlock()
	fn(m.state)
}

// WithinTx runs fn in a serialized transaction. fn must not call write
// methods of the MemoryStore itself.
func (m *MemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	return m.mutate(func(s *memState) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(&memTx{s: s, now: m.now})
	})
}

// AddAccount seeds an account
func (m *MemoryStore) AddAccount(a models.Account) {
	_ = m.mutate(func(s *memState) error {
		s.accounts[a.ID] = a
		return nil
	})
}

// AddAccountPayment seeds an installment bucket and its loan-level payments
func (m *MemoryStore) AddAccountPayment(ap models.AccountPayment, payments ...models.Payment) {
	_ = m.mutate(func(s *memState) error {
		s.accountPayments[ap.ID] = ap
		for _, p := range payments {
			p.AccountPaymentID = ap.ID
			s.payments[p.ID] = p
		}
		return nil
	})
}

// SetWallet seeds a customer's wallet
func (m *MemoryStore) SetWallet(w models.WalletBalance) {
	_ = m.mutate(func(s *memState) error {
		s.wallets[w.CustomerID] = w
		return nil
	})
}

// AddPaymentMethod seeds a payment method
func (m *MemoryStore) AddPaymentMethod(pm models.PaymentMethod) {
	_ = m.mutate(func(s *memState) error {
		s.paymentMethods[pm.ID] = pm
		return nil
	})
}

// AddOperator seeds an operator
func (m *MemoryStore) AddOperator(op models.Operator) {
	_ = m.mutate(func(s *memState) error {
		s.operators[op.Email] = op
		return nil
	})
}

// AccountPayment returns the committed state of an installment bucket
func (m *MemoryStore) AccountPayment(id int64) (ap models.AccountPayment, ok bool) {
	m.read(func(s *memState) { ap, ok = s.accountPayments[id] })
	return ap, ok
}

// Payments returns the committed loan-level payments of a bucket
func (m *MemoryStore) Payments(accountPaymentID int64) []models.Payment {
	var out []models.Payment
	m.read(func(s *memState) { out = paymentsOf(s, accountPaymentID) })
	return out
}

// AccountTransactions returns the committed ledger rows of an account
func (m *MemoryStore) AccountTransactions(accountID int64) []models.AccountTransaction {
	var out []models.AccountTransaction
	m.read(func(s *memState) {
		for _, at := range s.accountTxs {
			if at.AccountID == accountID {
				out = append(out, at)
			}
		}
	})
	return out
}

// WalletHistory returns the committed wallet audit rows of a customer
func (m *MemoryStore) WalletHistory(customerID int64) []models.WalletHistory {
	var out []models.WalletHistory
	m.read(func(s *memState) {
		for _, h := range s.walletHistory {
			if h.CustomerID == customerID {
				out = append(out, h)
			}
		}
	})
	return out
}

func (m *MemoryStore) CreatePaybackTransaction(ctx context.Context, pt *models.PaybackTransaction) error {
	return m.mutate(func(s *memState) error {
		for _, existing := range s.paybacks {
			if existing.Service == pt.Service && existing.TransactionID == pt.TransactionID {
				return &models.DuplicateTransactionError{TransactionID: pt.TransactionID}
			}
		}
		pt.ID = s.id()
		pt.IsProcessed = false
		pt.CreatedAt = m.now()
		s.paybacks[pt.ID] = *pt
		return nil
	})
}

func (m *MemoryStore) GetPaybackTransaction(ctx context.Context, id int64) (*models.PaybackTransaction, error) {
	var (
		pt models.PaybackTransaction
		ok bool
	)
	m.read(func(s *memState) { pt, ok = s.paybacks[id] })
	if !ok {
		return nil, fmt.Errorf("payback transaction %d: %w", id, models.ErrNotFound)
	}
	return &pt, nil
}

func (m *MemoryStore) FindPaybackTransactionByReceipt(ctx context.Context, service models.PaybackService, transactionID string) (*models.PaybackTransaction, error) {
	var found *models.PaybackTransaction
	m.read(func(s *memState) {
		for _, pt := range s.paybacks {
			if pt.Service == service && pt.TransactionID == transactionID {
				found = &pt
				return
			}
		}
	})
	if found == nil {
		return nil, fmt.Errorf("payback transaction %s: %w", transactionID, models.ErrNotFound)
	}
	return found, nil
}

func (m *MemoryStore) ListUnprocessedPaybackTransactions(ctx context.Context, createdBefore time.Time, limit int) ([]models.PaybackTransaction, error) {
	var out []models.PaybackTransaction
	m.read(func(s *memState) {
		for _, pt := range s.paybacks {
			if !pt.IsProcessed && pt.CreatedAt.Before(createdBefore) {
				out = append(out, pt)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	var (
		a  models.Account
		ok bool
	)
	m.read(func(s *memState) { a, ok = s.accounts[id] })
	if !ok {
		return nil, fmt.Errorf("account %d: %w", id, models.ErrNotFound)
	}
	return &a, nil
}

func (m *MemoryStore) FindAccountByCustomer(ctx context.Context, customerID int64) (*models.Account, error) {
	var found *models.Account
	m.read(func(s *memState) {
		for _, a := range s.accounts {
			if a.CustomerID == customerID && (found == nil || a.ID < found.ID) {
				candidate := a
				found = &candidate
			}
		}
	})
	if found == nil {
		return nil, fmt.Errorf("account for customer %d: %w", customerID, models.ErrNotFound)
	}
	return found, nil
}

func (m *MemoryStore) GetPaymentMethod(ctx context.Context, id int64) (*models.PaymentMethod, error) {
	var (
		pm models.PaymentMethod
		ok bool
	)
	m.read(func(s *memState) { pm, ok = s.paymentMethods[id] })
	if !ok {
		return nil, fmt.Errorf("payment method %d: %w", id, models.ErrNotFound)
	}
	return &pm, nil
}

func (m *MemoryStore) FindPaymentMethodByVirtualAccount(ctx context.Context, vendor models.GatewayVendor, virtualAccount string) (*models.PaymentMethod, error) {
	var found *models.PaymentMethod
	m.read(func(s *memState) {
		for _, pm := range s.paymentMethods {
			if pm.Vendor == vendor && pm.VirtualAccount == virtualAccount {
				found = &pm
				return
			}
		}
	})
	if found == nil {
		return nil, fmt.Errorf("virtual account %s: %w", virtualAccount, models.ErrNotFound)
	}
	return found, nil
}

func (m *MemoryStore) GetWallet(ctx context.Context, customerID int64) (*models.WalletBalance, error) {
	var (
		w  models.WalletBalance
		ok bool
	)
	m.read(func(s *memState) { w, ok = s.wallets[customerID] })
	if !ok {
		return &models.WalletBalance{CustomerID: customerID}, nil
	}
	return &w, nil
}

func (m *MemoryStore) FindOperatorByEmail(ctx context.Context, email string) (*models.Operator, error) {
	var (
		op models.Operator
		ok bool
	)
	m.read(func(s *memState) { op, ok = s.operators[email] })
	if !ok {
		return nil, fmt.Errorf("operator %s: %w", email, models.ErrNotFound)
	}
	return &op, nil
}

func paymentsOf(s *memState, accountPaymentID int64) []models.Payment {
	var out []models.Payment
	for _, p := range s.payments {
		if p.AccountPaymentID == accountPaymentID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LoanID != out[j].LoanID {
			return out[i].LoanID < out[j].LoanID
		}
		if out[i].PaymentNumber != out[j].PaymentNumber {
			return out[i].PaymentNumber < out[j].PaymentNumber
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type memTx struct {
	s   *memState
	now func() time.Time
}

func (t *memTx) GetPaybackTransactionForUpdate(ctx context.Context, id int64) (*models.PaybackTransaction, error) {
	pt, ok := t.s.paybacks[id]
	if !ok {
		return nil, fmt.Errorf("payback transaction %d: %w", id, models.ErrNotFound)
	}
	return &pt, nil
}

func (t *memTx) MarkPaybackTransactionProcessed(ctx context.Context, id int64) error {
	pt, ok := t.s.paybacks[id]
	if !ok {
		return fmt.Errorf("payback transaction %d: %w", id, models.ErrNotFound)
	}
	pt.IsProcessed = true
	t.s.paybacks[id] = pt
	return nil
}

func (t *memTx) GetOldestUnpaidAccountPayment(ctx context.Context, accountID int64) (*models.AccountPayment, error) {
	var oldest *models.AccountPayment
	for _, ap := range t.s.accountPayments {
		if ap.AccountID != accountID || ap.IsPaid() {
			continue
		}
		if oldest == nil || ap.DueDate.Before(oldest.DueDate) ||
			(ap.DueDate.Equal(oldest.DueDate) && ap.ID < oldest.ID) {
			candidate := ap
			oldest = &candidate
		}
	}
	return oldest, nil
}

func (t *memTx) GetAccountPaymentForUpdate(ctx context.Context, id int64) (*models.AccountPayment, error) {
	ap, ok := t.s.accountPayments[id]
	if !ok {
		return nil, fmt.Errorf("account payment %d: %w", id, models.ErrNotFound)
	}
	return &ap, nil
}

func (t *memTx) ListPaymentsForUpdate(ctx context.Context, accountPaymentID int64) ([]models.Payment, error) {
	return paymentsOf(t.s, accountPaymentID), nil
}

func (t *memTx) UpdateAccountPayment(ctx context.Context, ap *models.AccountPayment) error {
	if _, ok := t.s.accountPayments[ap.ID]; !ok {
		return fmt.Errorf("account payment %d: %w", ap.ID, models.ErrNotFound)
	}
	if ap.DueAmount < 0 {
		return fmt.Errorf("account payment %d: due amount would be negative", ap.ID)
	}
	t.s.accountPayments[ap.ID] = *ap
	return nil
}

func (t *memTx) UpdatePayment(ctx context.Context, p *models.Payment) error {
	if _, ok := t.s.payments[p.ID]; !ok {
		return fmt.Errorf("payment %d: %w", p.ID, models.ErrNotFound)
	}
	if p.DueAmount < 0 {
		return fmt.Errorf("payment %d: due amount would be negative", p.ID)
	}
	t.s.payments[p.ID] = *p
	return nil
}

func (t *memTx) CreateAccountTransaction(ctx context.Context, at *models.AccountTransaction) error {
	for _, existing := range t.s.accountTxs {
		if existing.PaybackTransactionID == at.PaybackTransactionID {
			return fmt.Errorf("payback transaction %d already has an account transaction", at.PaybackTransactionID)
		}
	}
	at.ID = t.s.id()
	at.CreatedAt = t.now()
	stored := *at
	stored.Allocations = slices.Clone(at.Allocations)
	t.s.accountTxs = append(t.s.accountTxs, stored)
	return nil
}

func (t *memTx) GetWalletForUpdate(ctx context.Context, customerID int64) (*models.WalletBalance, error) {
	w, ok := t.s.wallets[customerID]
	if !ok {
		w = models.WalletBalance{CustomerID: customerID, UpdatedAt: t.now()}
		t.s.wallets[customerID] = w
	}
	return &w, nil
}

func (t *memTx) UpdateWallet(ctx context.Context, w *models.WalletBalance) error {
	if w.Available < 0 || w.Accruing < 0 {
		return fmt.Errorf("wallet %d: balance would be negative", w.CustomerID)
	}
	if w.Available > w.Accruing {
		return fmt.Errorf("wallet %d: available exceeds accruing", w.CustomerID)
	}
	w.UpdatedAt = t.now()
	t.s.wallets[w.CustomerID] = *w
	return nil
}

func (t *memTx) CreateWalletHistory(ctx context.Context, h *models.WalletHistory) error {
	h.ID = t.s.id()
	h.CreatedAt = t.now()
	t.s.walletHistory = append(t.s.walletHistory, *h)
	return nil
}
