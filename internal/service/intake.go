package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/julo/repayment-service/internal/models"
	"github.com/sirupsen/logrus"
)

// IntakeRequest is an inbound payment event
type IntakeRequest struct {
	CustomerID      int64
	AccountID       int64
	Amount          int64
	Service         models.PaybackService
	PaymentMethodID *int64
	// TransactionID is the external receipt id. Generated for manual and
	// cashback intakes when empty.
	TransactionID   string
	TransactionDate time.Time
}

// CreatePaybackTransaction validates an inbound payment and records it as an
// unprocessed payback transaction. It does not allocate.
func (s *Service) CreatePaybackTransaction(ctx context.Context, req IntakeRequest) (*models.PaybackTransaction, error) {
	pt, err := s.createPaybackTransaction(ctx, req)
	label := "created"
	if err != nil {
		label = resultLabel(err)
	}
	s.metrics.ObserveIntake(serviceLabel(req.Service), label)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"account_id":     req.AccountID,
			"transaction_id": req.TransactionID,
		}).Warn("Payback transaction rejected")
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"payback_transaction_id": pt.ID,
		"account_id":             pt.AccountID,
		"service":                pt.Service.String(),
	}).Infof("Payback transaction created: %d", pt.Amount)
	return pt, nil
}

func (s *Service) createPaybackTransaction(ctx context.Context, req IntakeRequest) (*models.PaybackTransaction, error) {
	if err := s.validateIntake(ctx, &req); err != nil {
		return nil, err
	}

	if _, err := s.store.FindPaybackTransactionByReceipt(ctx, req.Service, req.TransactionID); err == nil {
		return nil, &models.DuplicateTransactionError{TransactionID: req.TransactionID}
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for duplicate payback transaction: %w", err)
	}

	pt := &models.PaybackTransaction{
		CustomerID:      req.CustomerID,
		AccountID:       req.AccountID,
		Amount:          req.Amount,
		PaymentMethodID: req.PaymentMethodID,
		TransactionID:   req.TransactionID,
		TransactionDate: req.TransactionDate,
		Service:         req.Service,
	}
	// a racing intake with the same service and receipt id loses on the unique constraint
	if err := s.store.CreatePaybackTransaction(ctx, pt); err != nil {
		return nil, err
	}
	return pt, nil
}

func (s *Service) validateIntake(ctx context.Context, req *IntakeRequest) error {
	if req.Amount <= 0 {
		return &models.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if err := req.Service.Validate(); err != nil {
		return &models.ValidationError{Field: "payback_service", Reason: err.Error()}
	}

	account, err := s.store.GetAccount(ctx, req.AccountID)
	if errors.Is(err, models.ErrNotFound) {
		return &models.ValidationError{Field: "account_id", Reason: "account does not exist"}
	}
	if err != nil {
		return err
	}
	if account.CustomerID != req.CustomerID {
		return &models.ValidationError{Field: "account_id", Reason: "account does not belong to customer"}
	}

	switch req.Service.Kind {
	case models.ServiceGateway:
		if req.PaymentMethodID == nil {
			return &models.ValidationError{Field: "payment_method_id", Reason: "required for gateway payments"}
		}
		if strings.TrimSpace(req.TransactionID) == "" {
			return &models.ValidationError{Field: "transaction_id", Reason: "required for gateway payments"}
		}
		if err := s.validatePaymentMethod(ctx, req, req.Service.Vendor); err != nil {
			return err
		}
	case models.ServiceCashback:
		if req.PaymentMethodID != nil {
			return &models.ValidationError{Field: "payment_method_id", Reason: "must be empty for cashback payments"}
		}
	case models.ServiceManual:
		if req.PaymentMethodID != nil {
			if err := s.validatePaymentMethod(ctx, req, ""); err != nil {
				return err
			}
		}
	}

	req.TransactionID = strings.TrimSpace(req.TransactionID)
	if req.TransactionID == "" {
		req.TransactionID = req.Service.String() + "-" + uuid.NewString()
	}
	if req.TransactionDate.IsZero() {
		req.TransactionDate = s.clock.Now()
	}
	return nil
}

// validatePaymentMethod checks ownership and, when vendor is set, that the
// method belongs to that vendor
func (s *Service) validatePaymentMethod(ctx context.Context, req *IntakeRequest, vendor models.GatewayVendor) error {
	pm, err := s.store.GetPaymentMethod(ctx, *req.PaymentMethodID)
	if errors.Is(err, models.ErrNotFound) {
		return &models.ValidationError{Field: "payment_method_id", Reason: "payment method does not exist"}
	}
	if err != nil {
		return err
	}
	if pm.CustomerID != req.CustomerID {
		return &models.ValidationError{Field: "payment_method_id", Reason: "payment method does not belong to customer"}
	}
	if !pm.IsActive {
		return &models.ValidationError{Field: "payment_method_id", Reason: "payment method is inactive"}
	}
	if vendor != "" && pm.Vendor != vendor {
		return &models.ValidationError{Field: "payment_method_id", Reason: fmt.Sprintf("payment method belongs to %s, not %s", pm.Vendor, vendor)}
	}
	return nil
}

func serviceLabel(p models.PaybackService) string {
	switch p.Kind {
	case models.ServiceManual:
		return "manual"
	case models.ServiceCashback:
		return "cashback"
	case models.ServiceGateway:
		return "gateway"
	default:
		return "unknown"
	}
}
