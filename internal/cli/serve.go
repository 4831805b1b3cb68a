package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func newServeCmd(o *options) *cobra.Command {
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduler and the operator API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := o.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if !noScheduler {
				if err := a.Jobs.Start(ctx); err != nil {
					return err
				}
				defer a.Jobs.Stop()
			}

			handler, stop := a.Handler()
			defer stop()

			cfg := o.cfg.Server
			srv := &http.Server{
				Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
				Handler:      handler,
				ReadTimeout:  cfg.ReadTimeout,
				WriteTimeout: cfg.WriteTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				o.log.Infof("Operator API listening on %s", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
				o.log.Info("Shutting down")
			case err := <-errCh:
				return fmt.Errorf("operator API: %w", err)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "serve the API without running scheduled passes")
	return cmd
}
