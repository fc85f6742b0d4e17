package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "oidworker",
	Short: "Scheduled relation and options open-interest snapshot worker",
	Long: `oidworker computes 30-minute relation snapshots across XAUUSD, THBUSD and BTCUSD,
captures options open-interest chart views with deltas against the previous snapshot,
and prunes expired rows. Configuration is read from the environment (and .env when present).`,
	SilenceUsage: true,
}

// Execute runs the root command. Interrupts cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.AddCommand(newServeCmd(), newRunOnceCmd(), newSanityCmd())
}
