package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/julo/repayment-service/internal/clock"
	"github.com/julo/repayment-service/internal/config"
	"github.com/julo/repayment-service/internal/handler"
	"github.com/julo/repayment-service/internal/metrics"
	"github.com/julo/repayment-service/internal/notification"
	"github.com/julo/repayment-service/internal/repository"
	"github.com/julo/repayment-service/internal/service"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	repo := repository.NewRepository(db)
	if cfg.AutoMigrate {
		if err := repo.Migrate(context.Background()); err != nil {
			logger.Fatalf("Failed to migrate database: %v", err)
		}
		logger.Info("Database schema is up to date")
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Post-commit notifications
	sinks := notification.SinksFromConfig(cfg.Notify)
	if len(sinks) == 0 {
		logger.Warn("No notification sinks configured; repayment events will be dropped")
	}
	dispatcher := notification.NewDispatcher(logger, m, cfg.Notify.Timeout.Duration, sinks...)

	// Initialize layers
	svc := service.NewService(repo, logger, cfg, clock.RealClock{}, m, dispatcher)
	h := handler.NewHandler(svc, logger, cfg.CallbackSecret)

	// Setup router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")
	h.RegisterRoutes(r)

	// Unprocessed payback sweep
	sweeper := service.NewSweeper(svc, cfg.Sweep)
	if err := sweeper.Start(); err != nil {
		logger.Fatalf("Failed to start sweeper: %v", err)
	}

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	<-sweeper.Stop().Done()
	dispatcher.Wait()
	logger.Info("Server stopped")
}
