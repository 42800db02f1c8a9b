package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dolabb/dolabb-sub001/internal/app"
	"github.com/dolabb/dolabb-sub001/internal/config"
	"github.com/dolabb/dolabb-sub001/internal/logging"
	"github.com/dolabb/dolabb-sub001/internal/reconcile"
	"github.com/dolabb/dolabb-sub001/internal/verification"
)

func verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [paymentId]",
		Short: "Ask the verification proxy for a payment's status once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, _ := cmd.Flags().GetString("base-url")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			c := verification.New(base)
			c.HTTP.Timeout = timeout
			p, err := c.Verify(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}
	cmd.Flags().String("base-url", "http://localhost:8080", "Service base URL serving "+verification.DefaultPath)
	cmd.Flags().Duration("timeout", 10*time.Second, "Request timeout")
	return cmd
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [sessionId] [callback query]",
		Short: "Replay a gateway callback for a session and print the outcome",
		Long: `Runs the reconciliation engine exactly as GET /payment/callback would,
using the configured stores, gateway and webhook. Example:

  paymentctl reconcile 6f1c... 'id=pay_123&status=paid&orderId=42'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := url.ParseQuery(strings.TrimPrefix(args[1], "?"))
			if err != nil {
				return fmt.Errorf("parse callback query: %w", err)
			}
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Logger.Sync() }()

			out := a.Engine.Reconcile(cmd.Context(), args[0], reconcile.ParseCallback(q))
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"outcome":  out.Kind,
				"reason":   out.Reason,
				"message":  out.Message,
				"verified": out.Verified,
				"warning":  out.Warning,
				"attempts": out.Attempts,
				"record":   out.Record,
				"location": out.Location(reconcile.Destinations{
					Success: a.Config.Redirect.SuccessURL,
					Error:   a.Config.Redirect.ErrorURL,
				}),
			})
		},
	}
}

func ledgerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ledger [sessionId]",
		Short: "List the ledger mirror for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			list, err := a.Ledger.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), list)
		},
	}
}

func buildApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.AppEnv)
	if err != nil {
		return nil, err
	}
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("build app", zap.Error(err))
		return nil, err
	}
	return a, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
