package service

import (
	"context"
	"fmt"

	"github.com/julo/repayment-service/internal/config"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Sweeper periodically reports payback transactions that were received but
// never processed. It does not re-drive them; an operator decides.
type Sweeper struct {
	svc  *Service
	cfg  config.SweepConfig
	cron *cron.Cron
}

// NewSweeper creates a sweeper for the configured schedule
func NewSweeper(svc *Service, cfg config.SweepConfig) *Sweeper {
	return &Sweeper{svc: svc, cfg: cfg, cron: cron.New()}
}

// Start schedules the sweep
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.svc.log.WithError(err).Error("Unprocessed payback sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep %q: %w", s.cfg.Schedule, err)
	}
	s.cron.Start()
	s.svc.log.Infof("Unprocessed payback sweep scheduled: %s", s.cfg.Schedule)
	return nil
}

// Stop halts the schedule and returns a context that is done once a running
// sweep has finished
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}

// Sweep counts stale unprocessed payback transactions, logs each one and
// publishes the count
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	pts, err := s.svc.ListUnprocessed(ctx, s.cfg.StaleAfter.Duration, s.cfg.Limit)
	if err != nil {
		return 0, err
	}

	for _, pt := range pts {
		s.svc.log.WithFields(logrus.Fields{
			"payback_transaction_id": pt.ID,
			"account_id":             pt.AccountID,
			"transaction_id":         pt.TransactionID,
			"service":                pt.Service.String(),
			"created_at":             pt.CreatedAt,
		}).Warn("Payback transaction still unprocessed")
	}
	s.svc.metrics.SetUnprocessedPaybacks(len(pts), s.svc.clock.Now().Unix())
	if len(pts) > 0 {
		s.svc.log.Warnf("Unprocessed payback sweep found %d stale payback transactions", len(pts))
	}
	return len(pts), nil
}
