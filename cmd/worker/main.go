package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cashflow/course-payments/internal/adapter/secondary/mailer"
	"github.com/cashflow/course-payments/internal/adapter/secondary/messaging"
	"github.com/cashflow/course-payments/internal/config"
	"github.com/cashflow/course-payments/internal/core/service"
	"github.com/cashflow/course-payments/internal/logger"
)

func main() {
	if err := run(); err != nil {
		logger.Get().Error("worker stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.ValidateWorker(); err != nil {
		return err
	}

	// Secondary adapter: SMTP sender (implements NotificationSender)
	sender := mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	dispatcher := service.NewNotificationDispatcher(sender)

	msgClient, err := messaging.NewRabbitMQClient(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer msgClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumerDone, err := msgClient.ConsumeNotifications(ctx, dispatcher.Dispatch)
	if err != nil {
		return fmt.Errorf("failed to start consuming notifications: %w", err)
	}

	log.Info("notification worker started, press CTRL+C to exit")
	select {
	case <-ctx.Done():
		log.Info("shutting down worker")
		return nil
	case err := <-consumerDone:
		if err != nil {
			return fmt.Errorf("notification consumer stopped: %w", err)
		}
		return nil
	}
}
