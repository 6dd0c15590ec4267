/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/healthspend/apiserver/config"
	"github.com/healthspend/apiserver/internal/logging"
	"github.com/healthspend/apiserver/internal/mq"
	"github.com/spf13/cobra"
)

// eventsCmd represents the events command.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect domain events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Log every domain event published by a service",
	RunE: func(cmd *cobra.Command, args []string) error {
		service, _ := cmd.Flags().GetString("service")
		logger := logging.Setup("events")
		cfg := config.LoadConfig(service)
		if cfg.MQ.Backend == "" {
			return errors.New("MQ_BACKEND is not set")
		}

		channel := mq.ChannelPredictions
		if service == config.ServiceSpend {
			channel = mq.ChannelExpenses
		}

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return fmt.Errorf("open message queue: %w", err)
		}
		defer queue.Close()

		logger.Info("tailing events", "backend", cfg.MQ.Backend, "channel", channel)
		err = queue.SubscribeEvents(ctx, channel, func(ctx context.Context, event mq.Event) error {
			logger.InfoContext(ctx, "event",
				"type", event.Type,
				"id", event.ID,
				"user_id", event.UserID,
				"occurred_at", event.OccurredAt,
			)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)

	eventsTailCmd.Flags().String("service", config.ServiceHeart, "service whose channel is tailed (heart or spend)")
}
