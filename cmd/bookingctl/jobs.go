package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/event-booking/internal/app"
	"github.com/iliyamo/event-booking/internal/config"
)

func withApp(timeout time.Duration, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a, err := app.New(cfg, config.NewLogger(cfg))
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return fn(ctx, a)
}

func sweepCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire pending reservations past their hold window once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(timeout, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.CleanupExpired(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("found=%d expired=%d intents_cancelled=%d errors=%d\n",
					res.Found, res.Expired, res.IntentsCancelled, len(res.Errors))
				for _, e := range res.Errors {
					fmt.Println("  ", e)
				}
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "abort the sweep after this long")
	return cmd
}

func drainCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "drain-emails",
		Short: "Send due messages from the email queue once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(timeout, func(ctx context.Context, a *app.App) error {
				res, err := a.Drainer.DrainOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("processed=%d sent=%d failed=%d\n", res.Processed, res.Sent, res.Failed)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "abort the pass after this long")
	return cmd
}
