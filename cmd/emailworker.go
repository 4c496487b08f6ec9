/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/trailtours/apiserver/config"
	"github.com/trailtours/apiserver/internal/email"
	"github.com/trailtours/apiserver/internal/mq"
	"github.com/trailtours/apiserver/internal/server"
)

// emailWorkerCmd consumes queued email jobs and delivers them via SendGrid.
// Only useful when the API runs with EMAIL_PROVIDER=queue.
var emailWorkerCmd = &cobra.Command{
	Use:   "emailworker",
	Short: "Consume queued email jobs and deliver them",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		backend, err := server.NewMQBackend(cmd.Context(), cfg.MQ)
		if err != nil {
			return fmt.Errorf("connect to broker: %w", err)
		}
		queue := mq.New(backend)
		defer func() {
			_ = queue.Close()
		}()

		sender := email.NewSendGridSender(cfg.Email)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		slog.Info("email worker started", slog.String("channel", email.Channel))
		err = queue.Subscribe(ctx, email.Channel, func(ctx context.Context, msg mq.Message) error {
			job, err := email.DecodeJob(msg.Data)
			if err != nil {
				// Drop malformed jobs instead of redelivering them forever.
				slog.Error("dropping malformed email job", slog.String("id", msg.ID), slog.String("error", err.Error()))
				return nil
			}
			if err := sender.Send(ctx, job); err != nil {
				slog.Error("email delivery failed", slog.String("to", job.To), slog.String("error", err.Error()))
				return err
			}
			slog.Info("email delivered", slog.String("to", job.To))
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(emailWorkerCmd)
}
