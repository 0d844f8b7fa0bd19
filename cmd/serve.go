package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"lineecho/pkg/bus"
	"lineecho/pkg/channel"
	"lineecho/pkg/channel/line"
	"lineecho/pkg/config"
	"lineecho/pkg/echo"
	"lineecho/pkg/gateway"
	"lineecho/pkg/logger"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the LINE webhook receiver",
	Long:  "Serves the LINE webhook callback plus health and readiness endpoints, echoing text messages back to their sender.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.serve")

		if err := cfg.Validate(); err != nil {
			log.Error("Configuration invalid", "error", err)
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		events := bus.NewEventBus()
		defer events.Close()
		go logEvents(runCtx, events, log)

		adapters, err := enabledAdapters(cfg, events, log)
		if err != nil {
			log.Error("Failed to configure channels", "error", err)
			return
		}

		svc, err := gateway.NewService(cfg, adapters, echo.Reply, events, log)
		if err != nil {
			log.Error("Failed to initialize gateway service", "error", err)
			return
		}

		log.Info("Webhook receiver starting", "address", cfg.Server.Address(), "callback_path", cfg.Line.CallbackPath)
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Webhook receiver failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func enabledAdapters(cfg *config.Config, events *bus.EventBus, log *slog.Logger) ([]channel.Adapter, error) {
	replier, err := line.NewMessagingReplier(cfg.Line)
	if err != nil {
		return nil, fmt.Errorf("configure line replier: %w", err)
	}

	adapter, err := line.NewAdapter(cfg.Line, cfg.Server.MaxBodyBytes, replier, events, log)
	if err != nil {
		return nil, fmt.Errorf("configure line channel: %w", err)
	}

	return []channel.Adapter{adapter}, nil
}

func logEvents(ctx context.Context, events *bus.EventBus, log *slog.Logger) {
	stream, unsubscribe := events.SubscribeEvents(ctx, 0)
	defer unsubscribe()

	for event := range stream {
		logEvent(log, event)
	}
}

func logEvent(log *slog.Logger, event bus.Event) {
	attrs := []any{"type", event.Type, "channel", event.Channel, "request_id", event.RequestID}
	if event.EventType != "" {
		attrs = append(attrs, "event_type", event.EventType)
	}

	switch event.Type {
	case bus.EventReplyFailed:
		log.Error("Reply failed", append(attrs, "error", event.Error)...)
	case bus.EventSignatureRejected:
		log.Warn("Signature rejected", attrs...)
	case bus.EventReplySent:
		log.Info("Reply sent", attrs...)
	case bus.EventWebhookReceived:
		log.Info("Webhook received", append(attrs, "events", event.Payload["events"])...)
	default:
		log.Info("Webhook event", attrs...)
	}
}
