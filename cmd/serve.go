package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"oidworker/internal/bootstrap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the control HTTP server until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := bootstrap.NewContainer()
			c.MustInit()

			if err := c.Start(); err != nil {
				c.Log.Errorw("Startup failed", "error", err)
				c.Shutdown()
				return err
			}

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-quit:
				c.Log.Infow("Received shutdown signal", "signal", sig.String())
			case <-c.Context.Done():
				c.Log.Warn("Application context cancelled")
			}

			c.Shutdown()
			return nil
		},
	}
}
