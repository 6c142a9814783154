package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dutyflow/internal/identity"
	"dutyflow/internal/platform/postgres"
)

func newMigrateCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := requireDatabase(cfg, "migrate"); err != nil {
				return err
			}
			db, err := openDatabase(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := postgres.Migrate(cmd.Context(), db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
			return nil
		},
	}
}

// newRelayCmd runs only the notification relay, for deployments that scale it
// separately from the API.
func newRelayCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Publish queued notifications to the broker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := requireDatabase(cfg, "relay"); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			worker, err := a.relayWorker(ctx)
			if err != nil {
				return err
			}
			a.logger.Info("starting notification relay", "interval", cfg.Relay.Interval, "batch_size", cfg.Relay.BatchSize)
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

// newTokenCmd mints a development access token signed with the configured key.
func newTokenCmd(load configLoader) *cobra.Command {
	var p identity.Profile
	cmd := &cobra.Command{
		Use:   "token <external-id>",
		Short: "Issue an access token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			p.ExternalID = args[0]
			jwt := identity.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
			token, err := jwt.GenerateAccessToken(p, cfg.Auth.TokenTTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&p.Name, "name", "", "display name claim")
	cmd.Flags().StringVar(&p.Email, "email", "", "email claim")
	return cmd
}

// newGrantAdminCmd promotes a user to admin, creating the account if needed.
func newGrantAdminCmd(load configLoader) *cobra.Command {
	var p identity.Profile
	cmd := &cobra.Command{
		Use:   "grant-admin <external-id>",
		Short: "Give a user the admin role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := requireDatabase(cfg, "grant-admin"); err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			p.ExternalID = args[0]
			u, err := a.userService().GrantAdmin(cmd.Context(), p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) is now an admin\n", u.ID, u.DisplayName())
			return nil
		},
	}
	cmd.Flags().StringVar(&p.Name, "name", "", "display name for a new account")
	cmd.Flags().StringVar(&p.Email, "email", "", "email for a new account")
	return cmd
}
