package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/cashflow/course-payments/internal/adapter/primary/http"
	"github.com/cashflow/course-payments/internal/adapter/secondary/database"
	"github.com/cashflow/course-payments/internal/adapter/secondary/gateway"
	"github.com/cashflow/course-payments/internal/adapter/secondary/memory"
	"github.com/cashflow/course-payments/internal/adapter/secondary/messaging"
	"github.com/cashflow/course-payments/internal/config"
	"github.com/cashflow/course-payments/internal/constant/model/db"
	"github.com/cashflow/course-payments/internal/core"
	"github.com/cashflow/course-payments/internal/core/service"
	"github.com/cashflow/course-payments/internal/logger"
	"github.com/cashflow/course-payments/internal/port/output"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4/middleware"
	"github.com/shopspring/decimal"
)

func main() {
	if err := run(); err != nil {
		logger.Get().Error("api stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.ValidateAPI(); err != nil {
		return err
	}

	// Secondary adapters: ledger (implements LedgerStore, PaymentReader, EnrollmentStore)
	var (
		ledger      output.LedgerStore
		reader      output.PaymentReader
		enrollStore output.EnrollmentStore
	)
	switch cfg.LedgerDriver {
	case "memory":
		mem := memory.NewLedger()
		course := core.Course{ID: uuid.New(), Title: "Demo course", Price: decimal.NewFromInt(100), Currency: core.CurrencyEGP}
		mem.AddCourse(course)
		log.Warn("using in-memory ledger, data is lost on exit", "demo_course_id", course.ID)
		ledger, reader, enrollStore = mem, mem, mem
	default:
		dbConn, err := db.NewDB(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer dbConn.Close()
		gormReader := database.NewGormPaymentReader(dbConn.DB)
		ledger, reader, enrollStore = database.NewGormLedger(dbConn.DB), gormReader, gormReader
	}

	// Secondary adapters: payment provider and notifier
	stripeGateway := gateway.NewStripeGateway(gateway.StripeConfig{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
	})

	var notifier output.Notifier = messaging.LogNotifier{}
	if cfg.RabbitMQURL != "" {
		msgClient, err := messaging.NewRabbitMQClient(cfg.RabbitMQURL)
		if err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		defer msgClient.Close()
		notifier = msgClient
	} else {
		log.Warn("RABBITMQ_URL not set, notifications are only logged")
	}

	// Core services (implement input ports)
	settlement := service.NewSettlementEngine(ledger, stripeGateway, notifier, service.SettlementOptions{
		SuccessURL:   cfg.PaymentSuccessURL,
		CancelURL:    cfg.PaymentCancelURL,
		RefundWindow: cfg.RefundWindow,
	})
	payments := service.NewPaymentService(reader, ledger, stripeGateway)
	enrollments := service.NewEnrollmentService(enrollStore, nil)

	// Primary adapter: HTTP
	e := httpadapter.NewServer()
	e.Use(middleware.RequestID())
	e.Use(httpadapter.RequestLogContext())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	httpadapter.RegisterRoutes(e,
		httpadapter.NewPaymentHandler(settlement, payments),
		httpadapter.NewEnrollmentHandler(enrollments),
		httpadapter.JWTAuth([]byte(cfg.JWTSecret)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%s", cfg.Port)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting API server", "addr", addr, "ledger", cfg.LedgerDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
