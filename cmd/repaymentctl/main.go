package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/julo/repayment-service/internal/clock"
	"github.com/julo/repayment-service/internal/config"
	"github.com/julo/repayment-service/internal/notification"
	"github.com/julo/repayment-service/internal/repository"
	"github.com/julo/repayment-service/internal/service"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "repaymentctl",
	Short: "Operate the repayment ledger",
	Long: `Operator tool for the repayment service. It talks to the ledger database
directly, using the same configuration as the API (CONFIG_FILE and environment).`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openService builds a service over the configured database. The returned
// close func waits for receipts of re-driven paybacks to go out.
func openService() (*service.Service, func(), error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stderr)

	cfg, err := config.NewConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	svc, wait := buildService(repository.NewRepository(db), cfg, logger)
	return svc, func() {
		wait()
		db.Close()
	}, nil
}

// buildService wires the service with the same notification sinks as the API.
// wait blocks until queued notifications are delivered.
func buildService(store repository.Store, cfg *config.Config, logger *logrus.Logger) (*service.Service, func()) {
	dispatcher := notification.NewDispatcher(logger, nil, cfg.Notify.Timeout.Duration, notification.SinksFromConfig(cfg.Notify)...)
	return service.NewService(store, logger, cfg, clock.RealClock{}, nil, dispatcher), dispatcher.Wait
}
