package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"dutyflow/internal/platform/httpserver"
	"dutyflow/internal/platform/postgres"
)

func newServeCmd(v *viper.Viper, load configLoader) *cobra.Command {
	var (
		withRelay bool
		migrate   bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if migrate && a.db != nil {
				n, err := postgres.Migrate(ctx, a.db)
				if err != nil {
					return err
				}
				a.logger.Info("migrations applied", "count", n)
			}

			router, err := a.router()
			if err != nil {
				return err
			}
			srv := httpserver.New(cfg.Server.Addr, router, cfg.Server.ReadHeaderTimeout)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.logger.Info("starting dutyflow",
					"addr", cfg.Server.Addr,
					"transition_policy", cfg.Duty.TransitionPolicy,
					"locking", cfg.Duty.Locking,
					"persistent", a.db != nil,
				)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			// The in-memory outbox is only visible to this process, so the relay
			// always runs in-process without a database.
			if withRelay || a.db == nil {
				worker, err := a.relayWorker(ctx)
				if err != nil {
					return err
				}
				g.Go(func() error {
					if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
						return err
					}
					return nil
				})
			}
			g.Go(func() error {
				<-gctx.Done()
				a.logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&withRelay, "relay", true, "run the notification relay in this process")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply database migrations before serving")
	bindFlag(v, cmd, "server.addr", "addr")
	return cmd
}
