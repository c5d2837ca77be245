package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/julo/repayment-service/internal/clock"
	"github.com/julo/repayment-service/internal/config"
	"github.com/julo/repayment-service/internal/metrics"
	"github.com/julo/repayment-service/internal/models"
	"github.com/julo/repayment-service/internal/notification"
	"github.com/julo/repayment-service/internal/repository"
	"github.com/sirupsen/logrus"
)

// Service handles repayment business logic
type Service struct {
	store    repository.Store
	log      *logrus.Logger
	config   *config.Config
	clock    clock.Clock
	metrics  *metrics.Metrics
	notifier notification.Notifier

	resolver  Resolver
	allocator *Allocator
	wallet    *WalletAdjuster

	defaultOrder  []models.Component
	productOrders map[string][]models.Component
}

// NewService initializes a new service. A nil notifier drops post-commit events.
func NewService(
	store repository.Store,
	log *logrus.Logger,
	cfg *config.Config,
	clk clock.Clock,
	m *metrics.Metrics,
	notifier notification.Notifier,
) *Service {
	if notifier == nil {
		notifier = discardNotifier{}
	}
	loc, err := cfg.Repayment.Location()
	if err != nil {
		log.WithError(err).Warn("Unknown repayment timezone, judging paid dates in UTC")
		loc = time.UTC
	}
	def, byProduct := cfg.AllocationOrders()
	if len(def) == 0 {
		def = models.DefaultAllocationOrder
	}
	return &Service{
		store:         store,
		log:           log,
		config:        cfg,
		clock:         clk,
		metrics:       m,
		notifier:      notifier,
		allocator:     &Allocator{GracePeriodDays: cfg.Repayment.GracePeriodDays, Location: loc},
		wallet:        &WalletAdjuster{metrics: m},
		defaultOrder:  def,
		productOrders: byProduct,
	}
}

type discardNotifier struct{}

func (discardNotifier) Notify(context.Context, notification.Event) {}

func (s *Service) allocationOrder(productLine string) []models.Component {
	if order, ok := s.productOrders[productLine]; ok && len(order) > 0 {
		return order
	}
	return s.defaultOrder
}

// GetPaybackTransaction retrieves a payback transaction
func (s *Service) GetPaybackTransaction(ctx context.Context, id int64) (*models.PaybackTransaction, error) {
	return s.store.GetPaybackTransaction(ctx, id)
}

// GetWallet returns a customer's cashback balance
func (s *Service) GetWallet(ctx context.Context, customerID int64) (*models.WalletBalance, error) {
	return s.store.GetWallet(ctx, customerID)
}

// ListUnprocessed returns payback transactions that have stayed unprocessed
// for longer than olderThan. These need an operator to re-drive or close them.
func (s *Service) ListUnprocessed(ctx context.Context, olderThan time.Duration, limit int) ([]models.PaybackTransaction, error) {
	if limit <= 0 {
		limit = s.config.Sweep.Limit
	}
	cutoff := s.clock.Now().Add(-olderThan)
	pts, err := s.store.ListUnprocessedPaybackTransactions(ctx, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed payback transactions: %w", err)
	}
	return pts, nil
}

// resultLabel buckets an error for metrics
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "processed"
	case errors.Is(err, models.ErrValidation):
		return "validation_error"
	case errors.Is(err, models.ErrDuplicateTransaction):
		return "duplicate"
	case errors.Is(err, models.ErrAllocation):
		return "allocation_error"
	case errors.Is(err, models.ErrInsufficientCashback):
		return "insufficient_cashback"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
