package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"printvault/internal/core"
	"printvault/internal/web"
)

// serveCommand creates the serve command running the HTTP server.
func (c *CLI) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the printvault HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runServe(cmd.Context())
		},
	}
}

func (c *CLI) runServe(ctx context.Context) error {
	metrics, err := core.NewPrometheusMetricsRecorder(nil)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	svc, cleanup, err := c.openService(ctx,
		core.WithMetricsRecorder(metrics),
		core.WithAuditRecorder(core.NewSlogAuditRecorder(c.logger)),
	)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := web.NewServer(svc, c.cfg.Server)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	c.logger.Info("server listening",
		"addr", c.cfg.Server.Addr,
		"storage", c.cfg.Storage.Driver,
		"blob", c.cfg.Blob.Driver)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.Server.ShutdownTimeout.Duration)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	c.logger.Info("server stopped")
	return nil
}
